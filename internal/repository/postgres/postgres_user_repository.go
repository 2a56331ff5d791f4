package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/honeynil/IdentityService/internal/models"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const userColumns = `id, email, name, password_hash, role, active, verified, created_at, updated_at`

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func validateUser(user *models.User) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("%w: email is required", pkgerrors.ErrInvalidInput)
	}
	if user.PasswordHash == "" {
		return fmt.Errorf("%w: password_hash is required", pkgerrors.ErrInvalidInput)
	}
	if !user.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", pkgerrors.ErrInvalidInput, user.Role)
	}
	return nil
}

const insertUserQuery = `INSERT INTO users (email, name, password_hash, role, active, verified) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) (err error) {
	ctx, span := startSpan(ctx, "user-repository", "CreateUser")
	defer finish(span, "CreateUser", time.Now(), &err)

	if err = validateUser(user); err != nil {
		slog.Error("failed to create user", "method", "Create", "error", err)
		return err
	}
	span.SetAttributes(attribute.String("email", user.Email))

	err = r.db.QueryRowContext(ctx, insertUserQuery,
		user.Email, user.Name, user.PasswordHash, user.Role, user.Active, user.Verified,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		err = pkgerrors.ErrUserAlreadyExists
		slog.Warn("user already exists", "method", "Create", "email", user.Email)
		return err
	}
	if err != nil {
		slog.Error("failed to create user", "method", "Create", "email", user.Email, "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "method", "Create", "user_id", user.ID)
	return nil
}

func (r *PostgresUserRepository) CreateWithToken(ctx context.Context, user *models.User, token *models.UserToken) (err error) {
	ctx, span := startSpan(ctx, "user-repository", "CreateUserWithToken")
	defer finish(span, "CreateUserWithToken", time.Now(), &err)

	if err = validateUser(user); err != nil {
		slog.Error("failed to create user", "method", "CreateWithToken", "error", err)
		return err
	}
	if token == nil {
		err = pkgerrors.ErrNilToken
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "CreateWithToken", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	rollback := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "method", "CreateWithToken", "error", rbErr)
			return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, cause)
		}
		return cause
	}

	err = tx.QueryRowContext(ctx, insertUserQuery,
		user.Email, user.Name, user.PasswordHash, user.Role, user.Active, user.Verified,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			err = rollback(pkgerrors.ErrUserAlreadyExists)
			return err
		}
		slog.Error("failed to create user", "method", "CreateWithToken", "email", user.Email, "error", err)
		err = rollback(fmt.Errorf("failed to create user: %w", err))
		return err
	}

	token.UserID = user.ID
	err = tx.QueryRowContext(ctx, insertUserTokenQuery,
		token.UserID, token.Purpose, token.TokenHash, token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		slog.Error("failed to create user token", "method", "CreateWithToken", "user_id", user.ID, "error", err)
		err = rollback(fmt.Errorf("failed to create user token: %w", err))
		return err
	}

	if err = tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "CreateWithToken", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("user created", "method", "CreateWithToken", "user_id", user.ID, "purpose", token.Purpose)
	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Active, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (user *models.User, err error) {
	ctx, span := startSpan(ctx, "user-repository", "GetUserByID")
	span.SetAttributes(attribute.Int64("user_id", id))
	defer finish(span, "GetUserByID", time.Now(), &err)

	user, err = scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrUserNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get user by id", "method", "GetByID", "user_id", id, "error", err)
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

// GetByEmail matches case-insensitively; emails are stored lower-cased.
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (user *models.User, err error) {
	ctx, span := startSpan(ctx, "user-repository", "GetUserByEmail")
	defer finish(span, "GetUserByEmail", time.Now(), &err)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		err = fmt.Errorf("%w: email cannot be empty", pkgerrors.ErrInvalidInput)
		return nil, err
	}

	user, err = scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrUserNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get user by email", "method", "GetByEmail", "error", err)
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *models.User) (err error) {
	ctx, span := startSpan(ctx, "user-repository", "UpdateUser")
	defer finish(span, "UpdateUser", time.Now(), &err)

	if user == nil {
		err = pkgerrors.ErrNilUser
		return err
	}
	span.SetAttributes(attribute.Int64("user_id", user.ID))

	query := `UPDATE users SET email = $1, name = $2, role = $3, active = $4, verified = $5, updated_at = NOW() WHERE id = $6 RETURNING updated_at`
	err = r.db.QueryRowContext(ctx, query,
		user.Email, user.Name, user.Role, user.Active, user.Verified, user.ID,
	).Scan(&user.UpdatedAt)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		err = pkgerrors.ErrUserNotFound
		return err
	case isUniqueViolation(err):
		err = pkgerrors.ErrUserAlreadyExists
		return err
	case err != nil:
		slog.Error("failed to update user", "method", "Update", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to update user: %w", err)
	}

	slog.Info("user updated", "method", "Update", "user_id", user.ID)
	return nil
}

func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) (err error) {
	ctx, span := startSpan(ctx, "user-repository", "UpdateUserPassword")
	span.SetAttributes(attribute.Int64("user_id", id))
	defer finish(span, "UpdateUserPassword", time.Now(), &err)

	if passwordHash == "" {
		err = fmt.Errorf("%w: password_hash is required", pkgerrors.ErrInvalidInput)
		return err
	}
	err = r.execOne(ctx, "UpdatePassword", `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, passwordHash, id)
	return err
}

func (r *PostgresUserRepository) MarkVerified(ctx context.Context, id int64) (err error) {
	ctx, span := startSpan(ctx, "user-repository", "MarkUserVerified")
	span.SetAttributes(attribute.Int64("user_id", id))
	defer finish(span, "MarkUserVerified", time.Now(), &err)

	err = r.execOne(ctx, "MarkVerified", `UPDATE users SET verified = TRUE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *PostgresUserRepository) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := startSpan(ctx, "user-repository", "DeleteUser")
	span.SetAttributes(attribute.Int64("user_id", id))
	defer finish(span, "DeleteUser", time.Now(), &err)

	err = r.execOne(ctx, "Delete", `DELETE FROM users WHERE id = $1`, id)
	if err == nil {
		slog.Info("user deleted", "method", "Delete", "user_id", id)
	}
	return err
}

// execOne runs a statement that must touch exactly one user row.
func (r *PostgresUserRepository) execOne(ctx context.Context, method, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("failed to execute user statement", "method", method, "error", err)
		return fmt.Errorf("failed to %s: %w", strings.ToLower(method), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return pkgerrors.ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepository) List(ctx context.Context, limit, offset int) (users []*models.User, total int, err error) {
	ctx, span := startSpan(ctx, "user-repository", "ListUsers")
	span.SetAttributes(attribute.Int("limit", limit), attribute.Int("offset", offset))
	defer finish(span, "ListUsers", time.Now(), &err)

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		slog.Error("failed to count users", "method", "List", "error", err)
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		slog.Error("failed to list users", "method", "List", "error", err)
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users = make([]*models.User, 0, limit)
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan user: %w", scanErr)
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, total, nil
}
