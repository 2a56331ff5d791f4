package repository

import (
	"context"

	"github.com/honeynil/IdentityService/internal/models"
)

type ErrorLogRepository interface {
	Create(ctx context.Context, entry *models.ErrorLog) error
	GetByID(ctx context.Context, id int64) (*models.ErrorLog, error)
	List(ctx context.Context, limit, offset int) ([]*models.ErrorLog, int, error)
	Delete(ctx context.Context, id int64) error
}
