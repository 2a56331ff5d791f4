package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/IdentityService/internal/models"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const insertUserTokenQuery = `INSERT INTO user_tokens (user_id, purpose, token_hash, expires_at) VALUES ($1, $2, $3, $4) RETURNING id, created_at`

type PostgresUserTokenRepository struct {
	db *sql.DB
}

func NewPostgresUserTokenRepository(db *sql.DB) *PostgresUserTokenRepository {
	return &PostgresUserTokenRepository{db: db}
}

func (r *PostgresUserTokenRepository) Create(ctx context.Context, token *models.UserToken) (err error) {
	ctx, span := startSpan(ctx, "user-token-repository", "CreateUserToken")
	defer finish(span, "CreateUserToken", time.Now(), &err)

	if token == nil {
		err = pkgerrors.ErrNilToken
		return err
	}
	span.SetAttributes(attribute.Int64("user_id", token.UserID), attribute.String("purpose", string(token.Purpose)))

	err = r.db.QueryRowContext(ctx, insertUserTokenQuery,
		token.UserID, token.Purpose, token.TokenHash, token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		slog.Error("failed to create user token", "method", "Create", "user_id", token.UserID, "error", err)
		return fmt.Errorf("failed to create user token: %w", err)
	}
	return nil
}

// Consume is a single conditional UPDATE, so two concurrent callers with the
// same token cannot both succeed.
func (r *PostgresUserTokenRepository) Consume(ctx context.Context, tokenHash string, purpose models.TokenPurpose) (token *models.UserToken, err error) {
	ctx, span := startSpan(ctx, "user-token-repository", "ConsumeUserToken")
	span.SetAttributes(attribute.String("purpose", string(purpose)))
	defer finish(span, "ConsumeUserToken", time.Now(), &err)

	query := `
		UPDATE user_tokens
		SET used_at = NOW()
		WHERE token_hash = $1
		AND purpose = $2
		AND used_at IS NULL
		AND expires_at > NOW()
		RETURNING id, user_id, purpose, token_hash, expires_at, used_at, created_at
	`
	var t models.UserToken
	err = r.db.QueryRowContext(ctx, query, tokenHash, purpose).Scan(
		&t.ID, &t.UserID, &t.Purpose, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTokenNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to consume user token", "method", "Consume", "purpose", purpose, "error", err)
		return nil, fmt.Errorf("failed to consume user token: %w", err)
	}

	slog.Info("user token consumed", "method", "Consume", "user_id", t.UserID, "purpose", purpose)
	return &t, nil
}

// DeleteByUser drops the user's outstanding tokens for purpose.
func (r *PostgresUserTokenRepository) DeleteByUser(ctx context.Context, userID int64, purpose models.TokenPurpose) (err error) {
	ctx, span := startSpan(ctx, "user-token-repository", "DeleteUserTokens")
	span.SetAttributes(attribute.Int64("user_id", userID), attribute.String("purpose", string(purpose)))
	defer finish(span, "DeleteUserTokens", time.Now(), &err)

	_, err = r.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL`, userID, purpose)
	if err != nil {
		slog.Error("failed to delete user tokens", "method", "DeleteByUser", "user_id", userID, "error", err)
		return fmt.Errorf("failed to delete user tokens: %w", err)
	}
	return nil
}
