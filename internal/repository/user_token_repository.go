package repository

import (
	"context"

	"github.com/honeynil/IdentityService/internal/models"
)

type UserTokenRepository interface {
	Create(ctx context.Context, token *models.UserToken) error
	// Consume marks an unused, unexpired token as used and returns it.
	// A token can be consumed once.
	Consume(ctx context.Context, tokenHash string, purpose models.TokenPurpose) (*models.UserToken, error)
	DeleteByUser(ctx context.Context, userID int64, purpose models.TokenPurpose) error
}
