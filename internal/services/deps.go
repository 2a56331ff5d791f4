package service

import (
	"context"
	"time"

	"github.com/honeynil/IdentityService/internal/infrastructure/auth"
	"github.com/honeynil/IdentityService/internal/models"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TokenManager is the part of auth.TokenService the services use.
type TokenManager interface {
	IssuePair(ctx context.Context, user *models.User) (*models.TokenPair, error)
	ValidateToken(token string) (*auth.Claims, error)
	ValidateRefreshToken(ctx context.Context, token string) (*auth.Claims, error)
	IssueRotatedPair(ctx context.Context, user *models.User, epoch int64) (*models.TokenPair, error)
	ConsumeRefreshToken(ctx context.Context, claims *auth.Claims) (int64, error)
	RevokeRefreshToken(ctx context.Context, jti string) error
	BlockToken(ctx context.Context, jti string, exp time.Time) error
	InvalidateAllUserRefreshTokens(ctx context.Context, userID int64) error
}

type MailPublisher interface {
	PublishMail(ctx context.Context, event models.MailEvent) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns pkgerrors.ErrInvalidCredentials on mismatch.
	Compare(hash, password string) error
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// fail records err on span and returns it.
func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}
