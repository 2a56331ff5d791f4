package repository

import (
	"context"

	"github.com/honeynil/IdentityService/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	// CreateWithToken inserts user and its first one-time token atomically.
	CreateWithToken(ctx context.Context, user *models.User, token *models.UserToken) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	MarkVerified(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*models.User, int, error)
}
