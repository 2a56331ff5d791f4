package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/honeynil/IdentityService/internal/infrastructure/redis"
)

const (
	blockedPrefix = "auth:blocked:"
	refreshPrefix = "auth:refresh:"
	epochPrefix   = "auth:epoch:"
)

// refreshEntry is the value stored for a valid refresh jti.
type refreshEntry struct {
	UserID int64
	Epoch  int64
}

func (e refreshEntry) encode() string {
	return strconv.FormatInt(e.UserID, 10) + ":" + strconv.FormatInt(e.Epoch, 10)
}

func decodeRefreshEntry(v string) (refreshEntry, error) {
	uid, epoch, ok := strings.Cut(v, ":")
	if !ok {
		return refreshEntry{}, fmt.Errorf("malformed refresh entry %q", v)
	}
	u, err := strconv.ParseInt(uid, 10, 64)
	if err != nil {
		return refreshEntry{}, fmt.Errorf("malformed refresh entry %q: %w", v, err)
	}
	e, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return refreshEntry{}, fmt.Errorf("malformed refresh entry %q: %w", v, err)
	}
	return refreshEntry{UserID: u, Epoch: e}, nil
}

// RevocationStore keeps three namespaces in the shared key-value store:
// blocked access jtis, valid refresh jtis and per-user refresh epochs.
type RevocationStore struct {
	client redis.RedisClient
}

func NewRevocationStore(client redis.RedisClient) *RevocationStore {
	return &RevocationStore{client: client}
}

func (s *RevocationStore) Block(ctx context.Context, jti string, ttl time.Duration) error {
	return s.client.Set(ctx, blockedPrefix+jti, "1", ttl)
}

func (s *RevocationStore) IsBlocked(ctx context.Context, jti string) (bool, error) {
	_, err := s.client.Get(ctx, blockedPrefix+jti)
	if errors.Is(err, redis.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RevocationStore) PutRefresh(ctx context.Context, jti string, entry refreshEntry, ttl time.Duration) error {
	return s.client.Set(ctx, refreshPrefix+jti, entry.encode(), ttl)
}

// Refresh returns the entry for jti; ok is false when the key is absent.
func (s *RevocationStore) Refresh(ctx context.Context, jti string) (entry refreshEntry, ok bool, err error) {
	v, err := s.client.Get(ctx, refreshPrefix+jti)
	return s.decode(v, err)
}

// TakeRefresh reads and deletes the entry for jti in one step so that a
// refresh token can be spent only once.
func (s *RevocationStore) TakeRefresh(ctx context.Context, jti string) (entry refreshEntry, ok bool, err error) {
	v, err := s.client.GetDel(ctx, refreshPrefix+jti)
	return s.decode(v, err)
}

func (s *RevocationStore) decode(v string, err error) (refreshEntry, bool, error) {
	if errors.Is(err, redis.ErrKeyNotFound) {
		return refreshEntry{}, false, nil
	}
	if err != nil {
		return refreshEntry{}, false, err
	}
	entry, err := decodeRefreshEntry(v)
	if err != nil {
		// Unreadable entries are treated as absent.
		return refreshEntry{}, false, nil
	}
	return entry, true, nil
}

func (s *RevocationStore) DeleteRefresh(ctx context.Context, jti string) error {
	return s.client.Del(ctx, refreshPrefix+jti)
}

// Epoch returns the current refresh generation of a user, 0 if never bumped.
func (s *RevocationStore) Epoch(ctx context.Context, userID int64) (int64, error) {
	v, err := s.client.Get(ctx, epochKey(userID))
	if errors.Is(err, redis.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed epoch for user %d: %w", userID, err)
	}
	return n, nil
}

// BumpEpoch atomically advances the user's generation. Epoch keys never
// expire: an expiring key would reset to 0 and revive older generations.
func (s *RevocationStore) BumpEpoch(ctx context.Context, userID int64) (int64, error) {
	return s.client.Incr(ctx, epochKey(userID))
}

func epochKey(userID int64) string {
	return epochPrefix + strconv.FormatInt(userID, 10)
}
