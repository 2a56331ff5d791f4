package service

import (
	"context"

	stderrors "errors"

	"github.com/honeynil/IdentityService/internal/models"
	"github.com/honeynil/IdentityService/internal/repository"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"go.opentelemetry.io/otel"
)

type ErrorLogService interface {
	Record(ctx context.Context, entry *models.ErrorLog) error
	List(ctx context.Context, page, perPage int) (*models.Page[*models.ErrorLog], error)
	Get(ctx context.Context, id int64) (*models.ErrorLog, error)
	Delete(ctx context.Context, id int64) error
}

const maxLoggedMessage = 1000

type errorLogService struct {
	logs repository.ErrorLogRepository
}

func NewErrorLogService(logs repository.ErrorLogRepository) *errorLogService {
	return &errorLogService{logs: logs}
}

var errErrorLogNotFound = pkgerrors.NewNotFound("Error log not found", pkgerrors.ErrErrorLogNotFound)

func (s *errorLogService) Record(ctx context.Context, entry *models.ErrorLog) error {
	if entry == nil {
		return pkgerrors.ErrNilErrorLog
	}
	if len(entry.Message) > maxLoggedMessage {
		entry.Message = entry.Message[:maxLoggedMessage]
	}
	return s.logs.Create(ctx, entry)
}

func (s *errorLogService) List(ctx context.Context, page, perPage int) (*models.Page[*models.ErrorLog], error) {
	tracer := otel.Tracer("error-log-service")
	ctx, span := tracer.Start(ctx, "ListErrorLogs")
	defer span.End()

	page, perPage = normalizePage(page, perPage)
	entries, total, err := s.logs.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fail(span, err, "list failed")
	}
	return &models.Page[*models.ErrorLog]{Items: entries, Total: total, Page: page, PerPage: perPage}, nil
}

func (s *errorLogService) Get(ctx context.Context, id int64) (*models.ErrorLog, error) {
	tracer := otel.Tracer("error-log-service")
	ctx, span := tracer.Start(ctx, "GetErrorLog")
	defer span.End()

	entry, err := s.logs.GetByID(ctx, id)
	if stderrors.Is(err, pkgerrors.ErrErrorLogNotFound) {
		return nil, fail(span, errErrorLogNotFound, "not found")
	}
	if err != nil {
		return nil, fail(span, err, "get failed")
	}
	return entry, nil
}

func (s *errorLogService) Delete(ctx context.Context, id int64) error {
	tracer := otel.Tracer("error-log-service")
	ctx, span := tracer.Start(ctx, "DeleteErrorLog")
	defer span.End()

	err := s.logs.Delete(ctx, id)
	if stderrors.Is(err, pkgerrors.ErrErrorLogNotFound) {
		return fail(span, errErrorLogNotFound, "not found")
	}
	if err != nil {
		return fail(span, err, "delete failed")
	}
	return nil
}
