package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	stderrors "errors"

	"github.com/honeynil/IdentityService/internal/models"
	"github.com/honeynil/IdentityService/internal/repository"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type UserService interface {
	GetProfile(ctx context.Context, userID int64) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (*models.User, error)
	DeleteAccount(ctx context.Context, in DeleteAccountInput) error

	ListUsers(ctx context.Context, page, perPage int) (*models.Page[*models.User], error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*models.User, error)
	DeleteUser(ctx context.Context, actorID, id int64) error
}

// UpdateProfileInput holds optional fields; nil leaves a field unchanged.
type UpdateProfileInput struct {
	Name  *string
	Email *string
}

type DeleteAccountInput struct {
	UserID    int64
	Password  string
	TokenID   string
	ExpiresAt time.Time
}

type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     models.Role
	Active   bool
	Verified bool
}

type UpdateUserInput struct {
	Name     *string
	Email    *string
	Role     *models.Role
	Active   *bool
	Verified *bool
}

type userService struct {
	users  repository.UserRepository
	jwt    TokenManager
	hasher PasswordHasher
}

func NewUserService(users repository.UserRepository, jwt TokenManager, hasher PasswordHasher) *userService {
	return &userService{users: users, jwt: jwt, hasher: hasher}
}

var errUserNotFound = pkgerrors.NewNotFound("User not found", pkgerrors.ErrUserNotFound)

func (s *userService) load(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		return nil, errUserNotFound
	}
	return user, err
}

func (s *userService) GetProfile(ctx context.Context, userID int64) (*models.User, error) {
	tracer := otel.Tracer("user-service")
	ctx, span := tracer.Start(ctx, "GetProfile")
	defer span.End()

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, fail(span, err, "user lookup failed")
	}
	return user, nil
}

// UpdateProfile clears the verified flag when the email changes.
func (s *userService) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (*models.User, error) {
	tracer := otel.Tracer("user-service")
	ctx, span := tracer.Start(ctx, "UpdateProfile")
	defer span.End()

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, fail(span, err, "user lookup failed")
	}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		if email := normalizeEmail(*in.Email); email != user.Email {
			user.Email = email
			user.Verified = false
		}
	}

	if err := s.save(ctx, user); err != nil {
		return nil, fail(span, err, "user update failed")
	}
	slog.Info("profile updated", "user_id", user.ID)
	return user, nil
}

// DeleteAccount requires the current password and ends every session.
func (s *userService) DeleteAccount(ctx context.Context, in DeleteAccountInput) error {
	tracer := otel.Tracer("user-service")
	ctx, span := tracer.Start(ctx, "DeleteAccount")
	defer span.End()

	user, err := s.load(ctx, in.UserID)
	if err != nil {
		return fail(span, err, "user lookup failed")
	}
	if err := s.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		if stderrors.Is(err, pkgerrors.ErrInvalidCredentials) {
			return fail(span, pkgerrors.NewValidation("Password is incorrect", map[string]string{"password": "is incorrect"}), "wrong password")
		}
		return fail(span, err, "password check failed")
	}

	if err := s.jwt.InvalidateAllUserRefreshTokens(ctx, user.ID); err != nil {
		return fail(span, err, "invalidate refresh tokens failed")
	}
	if err := s.jwt.BlockToken(ctx, in.TokenID, in.ExpiresAt); err != nil {
		return fail(span, err, "block access token failed")
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return fail(span, err, "delete failed")
	}
	slog.Info("account deleted", "user_id", user.ID)
	return nil
}

func (s *userService) ListUsers(ctx context.Context, page, perPage int) (*models.Page[*models.User], error) {
	tracer := otel.Tracer("user-service")
	ctx, span := tracer.Start(ctx, "ListUsers")
	defer span.End()

	page, perPage = normalizePage(page, perPage)
	users, total, err := s.users.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fail(span, err, "list failed")
	}
	return &models.Page[*models.User]{Items: users, Total: total, Page: page, PerPage: perPage}, nil
}

func (s *userService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	tracer := otel.Tracer("user-service")
	ctx, span := tracer.Start(ctx, "GetUser")
	span.SetAttributes(attribute.Int64("user_id", id))
	defer span.End()

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, fail(span, err, "user lookup failed")
	}
	return user, nil
}

func (s *userService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	tracer := otel.Tracer("user-service")
	ctx, span := tracer.Start(ctx, "CreateUser")
	defer span.End()

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fail(span, err, "password hashing failed")
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	user := &models.User{
		Email:        normalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         role,
		Active:       in.Active,
		Verified:     in.Verified,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if stderrors.Is(err, pkgerrors.ErrUserAlreadyExists) {
			return nil, fail(span, pkgerrors.NewConflict("Email already registered", err), "email exists")
		}
		return nil, fail(span, err, "create failed")
	}
	slog.Info("user created by admin", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// UpdateUser invalidates the refresh tokens of a user whose role changes or
// who is deactivated. Access tokens still carrying the old role are refused
// by the auth middleware, which compares them with the stored user.
func (s *userService) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*models.User, error) {
	tracer := otel.Tracer("user-service")
	ctx, span := tracer.Start(ctx, "UpdateUser")
	span.SetAttributes(attribute.Int64("user_id", id))
	defer span.End()

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, fail(span, err, "user lookup failed")
	}
	before := *user

	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		user.Email = normalizeEmail(*in.Email)
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, fail(span, pkgerrors.NewValidation("Validation failed", map[string]string{"role": "must be a valid value"}), "bad role")
		}
		user.Role = *in.Role
	}
	if in.Active != nil {
		user.Active = *in.Active
	}
	if in.Verified != nil {
		user.Verified = *in.Verified
	}

	if err := s.save(ctx, user); err != nil {
		return nil, fail(span, err, "user update failed")
	}

	if before.Role != user.Role || (before.Active && !user.Active) {
		if err := s.jwt.InvalidateAllUserRefreshTokens(ctx, user.ID); err != nil {
			return nil, fail(span, err, "invalidate refresh tokens failed")
		}
	}
	slog.Info("user updated by admin", "user_id", user.ID)
	return user, nil
}

func (s *userService) DeleteUser(ctx context.Context, actorID, id int64) error {
	tracer := otel.Tracer("user-service")
	ctx, span := tracer.Start(ctx, "DeleteUser")
	span.SetAttributes(attribute.Int64("user_id", id), attribute.Int64("actor_id", actorID))
	defer span.End()

	if actorID == id {
		return fail(span, pkgerrors.NewAuthorization("You cannot delete your own account"), "self delete")
	}
	if _, err := s.load(ctx, id); err != nil {
		return fail(span, err, "user lookup failed")
	}
	if err := s.jwt.InvalidateAllUserRefreshTokens(ctx, id); err != nil {
		return fail(span, err, "invalidate refresh tokens failed")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			return fail(span, errUserNotFound, "user gone")
		}
		return fail(span, err, "delete failed")
	}
	slog.Info("user deleted by admin", "user_id", id, "actor_id", actorID)
	return nil
}

func (s *userService) save(ctx context.Context, user *models.User) error {
	err := s.users.Update(ctx, user)
	switch {
	case stderrors.Is(err, pkgerrors.ErrUserAlreadyExists):
		return pkgerrors.NewConflict("Email already registered", err)
	case stderrors.Is(err, pkgerrors.ErrUserNotFound):
		return errUserNotFound
	}
	return err
}
