package repository_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/IdentityService/internal/models"
	repository "github.com/honeynil/IdentityService/internal/repository/postgres"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errorLogColumns = []string{"id", "status", "message", "method", "path", "user_id", "client_ip", "created_at"}

func TestPostgresErrorLogRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresErrorLogRepository(db)
	ctx := context.Background()

	assert.ErrorIs(t, repo.Create(ctx, nil), pkgerrors.ErrNilErrorLog)

	t.Run("Anonymous", func(t *testing.T) {
		entry := &models.ErrorLog{Status: 401, Message: "Invalid Authorization header", Method: "GET", Path: "/profile", ClientIP: "1.2.3.4"}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO error_logs`)).
			WithArgs(401, "Invalid Authorization header", "GET", "/profile", nil, "1.2.3.4").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

		require.NoError(t, repo.Create(ctx, entry))
		assert.Equal(t, int64(1), entry.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WithUser", func(t *testing.T) {
		uid := int64(8)
		entry := &models.ErrorLog{Status: 403, Message: "nope", Method: "DELETE", Path: "/admin/users/8", UserID: &uid}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO error_logs`)).
			WithArgs(403, "nope", "DELETE", "/admin/users/8", int64(8), "").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), time.Now()))

		require.NoError(t, repo.Create(ctx, entry))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresErrorLogRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresErrorLogRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM error_logs WHERE id = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(errorLogColumns).AddRow(int64(1), 500, "boom", "GET", "/x", nil, "::1", now))

	entry, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, entry.UserID)
	assert.Equal(t, 500, entry.Status)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM error_logs WHERE id = $1`)).
		WithArgs(int64(2)).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(ctx, 2)
	assert.ErrorIs(t, err, pkgerrors.ErrErrorLogNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresErrorLogRepository_ListAndDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresErrorLogRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM error_logs`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`)).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(errorLogColumns).AddRow(int64(3), 404, "User not found", "GET", "/admin/users/3", int64(1), "", now))

	entries, total, err := repo.List(ctx, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, int64(1), *entries[0].UserID)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM error_logs WHERE id = $1`)).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Delete(ctx, 3))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM error_logs WHERE id = $1`)).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(ctx, 3), pkgerrors.ErrErrorLogNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
