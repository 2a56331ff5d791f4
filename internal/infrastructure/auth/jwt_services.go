package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/honeynil/IdentityService/internal/infrastructure/observability"
	"github.com/honeynil/IdentityService/internal/infrastructure/redis"
	"github.com/honeynil/IdentityService/internal/models"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
)

// TokenService issues, validates and revokes access and refresh tokens.
//
// Access tokens are stateless and checked against a blocklist of revoked
// jtis. Refresh tokens are only usable while the store holds an entry for
// their jti whose epoch equals the owner's current epoch; bumping the epoch
// invalidates every refresh token of that user in one write.
type TokenService struct {
	codec *Codec
	store *RevocationStore
	now   func() time.Time
}

func NewTokenService(codec *Codec, client redis.RedisClient) *TokenService {
	return &TokenService{
		codec: codec,
		store: NewRevocationStore(client),
		now:   time.Now,
	}
}

func (s *TokenService) AccessTTL() time.Duration { return s.codec.AccessTTL() }

func (s *TokenService) GenerateAccessToken(userID int64, email, role string, verified bool) (string, error) {
	token, _, err := s.codec.Issue(Claims{
		Type:             models.TokenTypeAccess,
		Email:            email,
		Role:             role,
		IsVerified:       &verified,
		RegisteredClaims: jwt.RegisteredClaims{Subject: strconv.FormatInt(userID, 10)},
	})
	record("generate_access", err)
	if err != nil {
		slog.Error("failed to generate access token", "user_id", userID, "error", err)
		return "", err
	}
	return token, nil
}

func (s *TokenService) GenerateRefreshToken(ctx context.Context, userID int64) (string, error) {
	epoch, err := s.store.Epoch(ctx, userID)
	if err != nil {
		record("generate_refresh", err)
		slog.Error("failed to read refresh epoch", "user_id", userID, "error", err)
		return "", err
	}
	return s.generateRefreshAtEpoch(ctx, userID, epoch)
}

// generateRefreshAtEpoch records the new entry under epoch as given. An
// epoch that has since been bumped yields a token that is already dead.
func (s *TokenService) generateRefreshAtEpoch(ctx context.Context, userID, epoch int64) (string, error) {
	token, claims, err := s.codec.Issue(Claims{
		Type:             models.TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{Subject: strconv.FormatInt(userID, 10)},
	})
	if err != nil {
		record("generate_refresh", err)
		slog.Error("failed to generate refresh token", "user_id", userID, "error", err)
		return "", err
	}

	ttl := claims.ExpiresAtTime().Sub(claims.IssuedAt.Time)
	if err := s.store.PutRefresh(ctx, claims.ID, refreshEntry{UserID: userID, Epoch: epoch}, ttl); err != nil {
		record("generate_refresh", err)
		slog.Error("failed to record refresh token", "user_id", userID, "jti", claims.ID, "error", err)
		return "", err
	}
	record("generate_refresh", nil)
	return token, nil
}

// IssuePair generates an access/refresh pair for user.
func (s *TokenService) IssuePair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	refresh, err := s.GenerateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return s.pair(user, refresh)
}

// IssueRotatedPair is IssuePair for a rotation: the refresh token inherits
// the epoch ConsumeRefreshToken checked, so an invalidation that lands in
// between also kills the rotated token.
func (s *TokenService) IssueRotatedPair(ctx context.Context, user *models.User, epoch int64) (*models.TokenPair, error) {
	refresh, err := s.generateRefreshAtEpoch(ctx, user.ID, epoch)
	if err != nil {
		return nil, err
	}
	return s.pair(user, refresh)
}

func (s *TokenService) pair(user *models.User, refresh string) (*models.TokenPair, error) {
	access, err := s.GenerateAccessToken(user.ID, user.Email, string(user.Role), user.Verified)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
	}, nil
}

// ValidateToken checks signature and expiry only. Callers check the
// blocklist or the refresh entry depending on the token type.
func (s *TokenService) ValidateToken(token string) (*Claims, error) {
	claims, err := s.codec.Parse(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil, pkgerrors.NewAuthentication(pkgerrors.AuthExpired, "Token has expired", err)
		}
		return nil, pkgerrors.NewAuthentication(pkgerrors.AuthMalformed, "Invalid token", err)
	}
	return claims, nil
}

// ValidateAccessToken validates an access token and rejects blocked jtis.
// A store failure is returned as is, never as "not revoked".
func (s *TokenService) ValidateAccessToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != models.TokenTypeAccess {
		return nil, pkgerrors.NewAuthentication(pkgerrors.AuthWrongType, "Invalid token type", nil)
	}
	blocked, err := s.IsTokenBlocked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, pkgerrors.NewAuthentication(pkgerrors.AuthRevoked, "Token has been revoked", nil)
	}
	return claims, nil
}

// ValidateRefreshToken validates a refresh token without spending it.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != models.TokenTypeRefresh {
		return nil, pkgerrors.NewAuthentication(pkgerrors.AuthWrongType, "Invalid token type", nil)
	}
	valid, err := s.IsRefreshTokenValid(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, pkgerrors.NewAuthentication(pkgerrors.AuthRevoked, "Refresh token has been revoked", nil)
	}
	return claims, nil
}

// ConsumeRefreshToken atomically removes the refresh entry of claims and
// reports whether it was still valid. Concurrent refreshes with the same
// token see at most one success. The returned epoch is the one the entry
// was checked against; pass it to IssueRotatedPair.
func (s *TokenService) ConsumeRefreshToken(ctx context.Context, claims *Claims) (int64, error) {
	entry, ok, err := s.store.TakeRefresh(ctx, claims.ID)
	if err != nil {
		record("consume_refresh", err)
		return 0, err
	}
	revoked := pkgerrors.NewAuthentication(pkgerrors.AuthRevoked, "Refresh token has been revoked", nil)
	if !ok || strconv.FormatInt(entry.UserID, 10) != claims.Subject {
		record("consume_refresh", revoked)
		return 0, revoked
	}
	epoch, err := s.store.Epoch(ctx, entry.UserID)
	if err != nil {
		record("consume_refresh", err)
		return 0, err
	}
	if entry.Epoch != epoch {
		record("consume_refresh", revoked)
		return 0, revoked
	}
	record("consume_refresh", nil)
	return epoch, nil
}

// IsRefreshTokenValid reports whether jti has a live entry from the user's
// current epoch.
func (s *TokenService) IsRefreshTokenValid(ctx context.Context, jti string) (bool, error) {
	entry, ok, err := s.store.Refresh(ctx, jti)
	if err != nil || !ok {
		return false, err
	}
	epoch, err := s.store.Epoch(ctx, entry.UserID)
	if err != nil {
		return false, err
	}
	return entry.Epoch == epoch, nil
}

// RevokeRefreshToken is idempotent.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, jti string) error {
	err := s.store.DeleteRefresh(ctx, jti)
	record("revoke_refresh", err)
	if err != nil {
		slog.Error("failed to revoke refresh token", "jti", jti, "error", err)
	}
	return err
}

// BlockToken blocks an access jti until exp. Tokens that already expired
// are left alone.
func (s *TokenService) BlockToken(ctx context.Context, jti string, exp time.Time) error {
	ttl := exp.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	err := s.store.Block(ctx, jti, ttl)
	record("block_access", err)
	if err != nil {
		slog.Error("failed to block access token", "jti", jti, "error", err)
	}
	return err
}

func (s *TokenService) IsTokenBlocked(ctx context.Context, jti string) (bool, error) {
	blocked, err := s.store.IsBlocked(ctx, jti)
	if err != nil {
		slog.Error("failed to check access token blocklist", "jti", jti, "error", err)
		return false, fmt.Errorf("check blocklist: %w", err)
	}
	return blocked, nil
}

// InvalidateAllUserRefreshTokens makes every refresh token issued to userID
// before the call unusable.
func (s *TokenService) InvalidateAllUserRefreshTokens(ctx context.Context, userID int64) error {
	epoch, err := s.store.BumpEpoch(ctx, userID)
	record("invalidate_all_refresh", err)
	if err != nil {
		slog.Error("failed to invalidate refresh tokens", "user_id", userID, "error", err)
		return err
	}
	slog.Info("refresh tokens invalidated", "user_id", userID, "epoch", epoch)
	return nil
}

func record(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.TokenOperations.WithLabelValues(op, result).Inc()
}
