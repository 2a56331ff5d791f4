package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	stderrors "errors"

	"github.com/honeynil/IdentityService/internal/models"
	"github.com/honeynil/IdentityService/internal/repository"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, *models.TokenPair, error)
	Login(ctx context.Context, email, password string) (*models.User, *models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, in LogoutInput) error
	VerifyEmail(ctx context.Context, token string) (*models.User, *models.TokenPair, error)
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, in ChangePasswordInput) error
}

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// LogoutInput describes the session being closed. RefreshToken is optional.
type LogoutInput struct {
	UserID       int64
	TokenID      string
	ExpiresAt    time.Time
	RefreshToken string
}

type ChangePasswordInput struct {
	UserID          int64
	CurrentPassword string
	NewPassword     string
	TokenID         string
	ExpiresAt       time.Time
}

type AuthConfig struct {
	AppBaseURL       string
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
}

type authService struct {
	users  repository.UserRepository
	tokens repository.UserTokenRepository
	jwt    TokenManager
	hasher PasswordHasher
	mail   MailPublisher
	cfg    AuthConfig
	now    func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	tokens repository.UserTokenRepository,
	jwt TokenManager,
	hasher PasswordHasher,
	mail MailPublisher,
	cfg AuthConfig,
) *authService {
	return &authService{
		users:  users,
		tokens: tokens,
		jwt:    jwt,
		hasher: hasher,
		mail:   mail,
		cfg:    cfg,
		now:    time.Now,
	}
}

var (
	errBadCredentials = pkgerrors.NewAuthentication(pkgerrors.AuthCredentials, "Invalid credentials", pkgerrors.ErrInvalidCredentials)
	errAccountBlocked = pkgerrors.NewAuthorization("Account is disabled")
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*models.User, *models.TokenPair, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	email := normalizeEmail(in.Email)
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		slog.Error("failed to hash password", "email", email, "error", err)
		return nil, nil, fail(span, err, "password hashing failed")
	}

	raw, token, err := newOneTimeToken(models.PurposeEmailVerification, s.cfg.VerificationTTL, s.now())
	if err != nil {
		return nil, nil, fail(span, fmt.Errorf("%w: failed to generate verification token: %v", pkgerrors.ErrInternal, err), "token generation failed")
	}

	user := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         models.RoleUser,
		Active:       true,
	}
	if err := s.users.CreateWithToken(ctx, user, token); err != nil {
		if stderrors.Is(err, pkgerrors.ErrUserAlreadyExists) {
			slog.Warn("email already registered", "email", email)
			return nil, nil, fail(span, pkgerrors.NewConflict("Email already registered", err), "email exists")
		}
		slog.Error("failed to create user", "email", email, "error", err)
		return nil, nil, fail(span, err, "user creation failed")
	}
	span.SetAttributes(attribute.Int64("user_id", user.ID))

	s.sendVerification(ctx, user, raw)

	pair, err := s.jwt.IssuePair(ctx, user)
	if err != nil {
		return nil, nil, fail(span, err, "token issue failed")
	}

	slog.Info("user registered", "user_id", user.ID)
	return user, pair, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*models.User, *models.TokenPair, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	email = normalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, email)
	if stderrors.Is(err, pkgerrors.ErrUserNotFound) || stderrors.Is(err, pkgerrors.ErrInvalidInput) {
		slog.Warn("login failed", "reason", "unknown email")
		return nil, nil, fail(span, errBadCredentials, "unknown email")
	}
	if err != nil {
		slog.Error("failed to load user", "error", err)
		return nil, nil, fail(span, err, "user lookup failed")
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if stderrors.Is(err, pkgerrors.ErrInvalidCredentials) {
			slog.Warn("login failed", "user_id", user.ID, "reason", "wrong password")
			return nil, nil, fail(span, errBadCredentials, "wrong password")
		}
		return nil, nil, fail(span, err, "password check failed")
	}
	if !user.Active {
		slog.Warn("login failed", "user_id", user.ID, "reason", "inactive")
		return nil, nil, fail(span, errAccountBlocked, "inactive user")
	}

	pair, err := s.jwt.IssuePair(ctx, user)
	if err != nil {
		return nil, nil, fail(span, err, "token issue failed")
	}
	slog.Info("user logged in", "user_id", user.ID)
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented one is spent before the
// new pair is issued, so it cannot be replayed.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Refresh")
	defer span.End()

	claims, err := s.jwt.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fail(span, err, "invalid refresh token")
	}
	epoch, err := s.jwt.ConsumeRefreshToken(ctx, claims)
	if err != nil {
		slog.Warn("refresh token reuse or race", "jti", claims.ID, "error", err)
		return nil, fail(span, err, "refresh token consume failed")
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, fail(span, pkgerrors.NewAuthentication(pkgerrors.AuthMalformed, "Invalid token", err), "bad subject")
	}
	user, err := s.users.GetByID(ctx, userID)
	if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		return nil, fail(span, pkgerrors.NewAuthentication(pkgerrors.AuthUser, "User not found", err), "user gone")
	}
	if err != nil {
		return nil, fail(span, err, "user lookup failed")
	}
	if !user.Active {
		return nil, fail(span, errAccountBlocked, "inactive user")
	}

	pair, err := s.jwt.IssueRotatedPair(ctx, user, epoch)
	if err != nil {
		return nil, fail(span, err, "token issue failed")
	}
	slog.Info("tokens refreshed", "user_id", user.ID)
	return pair, nil
}

// Logout blocks the current access token. A refresh token is revoked only
// if it belongs to the same user; an unusable one is ignored.
func (s *authService) Logout(ctx context.Context, in LogoutInput) error {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Logout")
	defer span.End()

	if err := s.jwt.BlockToken(ctx, in.TokenID, in.ExpiresAt); err != nil {
		return fail(span, err, "block access token failed")
	}

	if in.RefreshToken != "" {
		claims, err := s.jwt.ValidateToken(in.RefreshToken)
		switch {
		case err != nil:
			slog.Info("ignoring invalid refresh token on logout", "user_id", in.UserID)
		case claims.Type != models.TokenTypeRefresh || claims.Subject != strconv.FormatInt(in.UserID, 10):
			slog.Warn("ignoring foreign refresh token on logout", "user_id", in.UserID)
		default:
			if err := s.jwt.RevokeRefreshToken(ctx, claims.ID); err != nil {
				return fail(span, err, "revoke refresh token failed")
			}
		}
	}

	slog.Info("user logged out", "user_id", in.UserID)
	return nil
}

var errBadVerificationToken = pkgerrors.NewValidation("Invalid or expired verification token", map[string]string{"token": "is invalid or expired"})

func (s *authService) VerifyEmail(ctx context.Context, token string) (*models.User, *models.TokenPair, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "VerifyEmail")
	defer span.End()

	ut, err := s.tokens.Consume(ctx, hashOneTimeToken(token), models.PurposeEmailVerification)
	if stderrors.Is(err, pkgerrors.ErrTokenNotFound) {
		return nil, nil, fail(span, errBadVerificationToken, "unknown token")
	}
	if err != nil {
		return nil, nil, fail(span, err, "token consume failed")
	}

	if err := s.users.MarkVerified(ctx, ut.UserID); err != nil {
		slog.Error("failed to mark user verified", "user_id", ut.UserID, "error", err)
		return nil, nil, fail(span, err, "mark verified failed")
	}
	user, err := s.users.GetByID(ctx, ut.UserID)
	if err != nil {
		return nil, nil, fail(span, err, "user lookup failed")
	}

	pair, err := s.jwt.IssuePair(ctx, user)
	if err != nil {
		return nil, nil, fail(span, err, "token issue failed")
	}
	slog.Info("email verified", "user_id", user.ID)
	return user, pair, nil
}

// ResendVerification never reveals whether email is registered.
func (s *authService) ResendVerification(ctx context.Context, email string) error {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "ResendVerification")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fail(span, err, "user lookup failed")
	}
	if user.Verified || !user.Active {
		slog.Info("verification mail not resent", "user_id", user.ID, "verified", user.Verified, "active", user.Active)
		return nil
	}

	raw, err := s.replaceToken(ctx, user.ID, models.PurposeEmailVerification, s.cfg.VerificationTTL)
	if err != nil {
		return fail(span, err, "token replace failed")
	}
	s.sendVerification(ctx, user, raw)
	return nil
}

// ForgotPassword never reveals whether email is registered.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "ForgotPassword")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fail(span, err, "user lookup failed")
	}
	if !user.Active {
		return nil
	}

	raw, err := s.replaceToken(ctx, user.ID, models.PurposePasswordReset, s.cfg.PasswordResetTTL)
	if err != nil {
		return fail(span, err, "token replace failed")
	}
	s.publish(ctx, models.MailEvent{
		Type:    models.MailPasswordReset,
		UserID:  user.ID,
		To:      user.Email,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Use this link to choose a new password:\n\n%s\n\nThe link expires in %s.", s.link("/reset-password", raw), s.cfg.PasswordResetTTL),
	})
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "ResetPassword")
	defer span.End()

	ut, err := s.tokens.Consume(ctx, hashOneTimeToken(token), models.PurposePasswordReset)
	if stderrors.Is(err, pkgerrors.ErrTokenNotFound) {
		return fail(span, pkgerrors.NewValidation("Invalid or expired reset token", map[string]string{"token": "is invalid or expired"}), "unknown token")
	}
	if err != nil {
		return fail(span, err, "token consume failed")
	}

	user, err := s.setPassword(ctx, ut.UserID, newPassword)
	if err != nil {
		return fail(span, err, "set password failed")
	}
	slog.Info("password reset", "user_id", user.ID)
	return nil
}

// ChangePassword also blocks the access token used for the request.
func (s *authService) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "ChangePassword")
	defer span.End()

	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return fail(span, err, "user lookup failed")
	}
	if err := s.hasher.Compare(user.PasswordHash, in.CurrentPassword); err != nil {
		if stderrors.Is(err, pkgerrors.ErrInvalidCredentials) {
			return fail(span, pkgerrors.NewValidation("Current password is incorrect", map[string]string{"current_password": "is incorrect"}), "wrong password")
		}
		return fail(span, err, "password check failed")
	}

	if _, err := s.setPassword(ctx, in.UserID, in.NewPassword); err != nil {
		return fail(span, err, "set password failed")
	}
	if err := s.jwt.BlockToken(ctx, in.TokenID, in.ExpiresAt); err != nil {
		return fail(span, err, "block access token failed")
	}
	slog.Info("password changed", "user_id", in.UserID)
	return nil
}

// setPassword stores a new hash and invalidates every refresh token the
// user holds.
func (s *authService) setPassword(ctx context.Context, userID int64, password string) (*models.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		slog.Error("failed to update password", "user_id", userID, "error", err)
		return nil, err
	}
	if err := s.jwt.InvalidateAllUserRefreshTokens(ctx, userID); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.MailEvent{
		Type:    models.MailPasswordChanged,
		UserID:  user.ID,
		To:      user.Email,
		Subject: "Your password was changed",
		Body:    "The password of your account was just changed. If this was not you, reset it immediately.",
	})
	return user, nil
}

func (s *authService) replaceToken(ctx context.Context, userID int64, purpose models.TokenPurpose, ttl time.Duration) (string, error) {
	if err := s.tokens.DeleteByUser(ctx, userID, purpose); err != nil {
		return "", err
	}
	raw, token, err := newOneTimeToken(purpose, ttl, s.now())
	if err != nil {
		return "", fmt.Errorf("%w: failed to generate token: %v", pkgerrors.ErrInternal, err)
	}
	token.UserID = userID
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", err
	}
	return raw, nil
}

func (s *authService) sendVerification(ctx context.Context, user *models.User, raw string) {
	s.publish(ctx, models.MailEvent{
		Type:    models.MailEmailVerification,
		UserID:  user.ID,
		To:      user.Email,
		Subject: "Verify your email address",
		Body:    fmt.Sprintf("Confirm your email address:\n\n%s\n\nThe link expires in %s.", s.link("/verify-email", raw), s.cfg.VerificationTTL),
	})
}

// publish never fails the calling operation; a lost mail can be requested
// again.
func (s *authService) publish(ctx context.Context, event models.MailEvent) {
	if s.mail == nil {
		return
	}
	event.CreatedAt = s.now().UTC()
	if err := s.mail.PublishMail(ctx, event); err != nil {
		slog.Error("failed to publish mail event", "type", event.Type, "user_id", event.UserID, "error", err)
	}
}

func (s *authService) link(path, token string) string {
	return strings.TrimRight(s.cfg.AppBaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}
