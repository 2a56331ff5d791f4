package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/honeynil/IdentityService/internal/infrastructure/auth"
	infraredis "github.com/honeynil/IdentityService/internal/infrastructure/redis"
	"github.com/honeynil/IdentityService/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) CreateWithToken(ctx context.Context, user *models.User, token *models.UserToken) error {
	return m.Called(ctx, user, token).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

func (m *MockUserRepository) MarkVerified(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	args := m.Called(ctx, limit, offset)
	users, _ := args.Get(0).([]*models.User)
	return users, args.Int(1), args.Error(2)
}

type MockUserTokenRepository struct {
	mock.Mock
}

func (m *MockUserTokenRepository) Create(ctx context.Context, token *models.UserToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockUserTokenRepository) Consume(ctx context.Context, tokenHash string, purpose models.TokenPurpose) (*models.UserToken, error) {
	args := m.Called(ctx, tokenHash, purpose)
	token, _ := args.Get(0).(*models.UserToken)
	return token, args.Error(1)
}

func (m *MockUserTokenRepository) DeleteByUser(ctx context.Context, userID int64, purpose models.TokenPurpose) error {
	return m.Called(ctx, userID, purpose).Error(0)
}

type MockErrorLogRepository struct {
	mock.Mock
}

func (m *MockErrorLogRepository) Create(ctx context.Context, entry *models.ErrorLog) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockErrorLogRepository) GetByID(ctx context.Context, id int64) (*models.ErrorLog, error) {
	args := m.Called(ctx, id)
	entry, _ := args.Get(0).(*models.ErrorLog)
	return entry, args.Error(1)
}

func (m *MockErrorLogRepository) List(ctx context.Context, limit, offset int) ([]*models.ErrorLog, int, error) {
	args := m.Called(ctx, limit, offset)
	entries, _ := args.Get(0).([]*models.ErrorLog)
	return entries, args.Int(1), args.Error(2)
}

func (m *MockErrorLogRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type MockMailPublisher struct {
	mock.Mock
}

func (m *MockMailPublisher) PublishMail(ctx context.Context, event models.MailEvent) error {
	return m.Called(ctx, event).Error(0)
}

func newTokenService(t *testing.T) (*auth.TokenService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     "service-test-secret-123",
		Algorithm:  "HS256",
		Issuer:     "identity-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	return auth.NewTokenService(codec, infraredis.Wrap(rdb, time.Second)), mr
}

var testHasher = NewBcryptHasher(bcrypt.MinCost)

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := testHasher.Hash(password)
	require.NoError(t, err)
	return h
}

func mailOfType(typ models.MailType) interface{} {
	return mock.MatchedBy(func(e models.MailEvent) bool { return e.Type == typ })
}
