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

const errorLogColumns = `id, status, message, method, path, user_id, client_ip, created_at`

type PostgresErrorLogRepository struct {
	db *sql.DB
}

func NewPostgresErrorLogRepository(db *sql.DB) *PostgresErrorLogRepository {
	return &PostgresErrorLogRepository{db: db}
}

func (r *PostgresErrorLogRepository) Create(ctx context.Context, entry *models.ErrorLog) (err error) {
	ctx, span := startSpan(ctx, "error-log-repository", "CreateErrorLog")
	defer finish(span, "CreateErrorLog", time.Now(), &err)

	if entry == nil {
		err = pkgerrors.ErrNilErrorLog
		return err
	}
	span.SetAttributes(attribute.Int("status", entry.Status), attribute.String("path", entry.Path))

	query := `INSERT INTO error_logs (status, message, method, path, user_id, client_ip) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query,
		entry.Status, entry.Message, entry.Method, entry.Path, nullableID(entry.UserID), entry.ClientIP,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		slog.Error("failed to create error log", "method", "Create", "error", err)
		return fmt.Errorf("failed to create error log: %w", err)
	}
	return nil
}

func scanErrorLog(row rowScanner) (*models.ErrorLog, error) {
	var (
		e      models.ErrorLog
		userID sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.Status, &e.Message, &e.Method, &e.Path, &userID, &e.ClientIP, &e.CreatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		id := userID.Int64
		e.UserID = &id
	}
	return &e, nil
}

func (r *PostgresErrorLogRepository) GetByID(ctx context.Context, id int64) (entry *models.ErrorLog, err error) {
	ctx, span := startSpan(ctx, "error-log-repository", "GetErrorLogByID")
	span.SetAttributes(attribute.Int64("error_log_id", id))
	defer finish(span, "GetErrorLogByID", time.Now(), &err)

	entry, err = scanErrorLog(r.db.QueryRowContext(ctx, `SELECT `+errorLogColumns+` FROM error_logs WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrErrorLogNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get error log", "method", "GetByID", "error_log_id", id, "error", err)
		return nil, fmt.Errorf("failed to get error log: %w", err)
	}
	return entry, nil
}

// List returns the newest entries first.
func (r *PostgresErrorLogRepository) List(ctx context.Context, limit, offset int) (entries []*models.ErrorLog, total int, err error) {
	ctx, span := startSpan(ctx, "error-log-repository", "ListErrorLogs")
	span.SetAttributes(attribute.Int("limit", limit), attribute.Int("offset", offset))
	defer finish(span, "ListErrorLogs", time.Now(), &err)

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_logs`).Scan(&total); err != nil {
		slog.Error("failed to count error logs", "method", "List", "error", err)
		return nil, 0, fmt.Errorf("failed to count error logs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+errorLogColumns+` FROM error_logs ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		slog.Error("failed to list error logs", "method", "List", "error", err)
		return nil, 0, fmt.Errorf("failed to list error logs: %w", err)
	}
	defer rows.Close()

	entries = make([]*models.ErrorLog, 0, limit)
	for rows.Next() {
		e, scanErr := scanErrorLog(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan error log: %w", scanErr)
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate error logs: %w", err)
	}
	return entries, total, nil
}

func (r *PostgresErrorLogRepository) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := startSpan(ctx, "error-log-repository", "DeleteErrorLog")
	span.SetAttributes(attribute.Int64("error_log_id", id))
	defer finish(span, "DeleteErrorLog", time.Now(), &err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM error_logs WHERE id = $1`, id)
	if err != nil {
		slog.Error("failed to delete error log", "method", "Delete", "error_log_id", id, "error", err)
		return fmt.Errorf("failed to delete error log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		err = pkgerrors.ErrErrorLogNotFound
		return err
	}
	return nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
