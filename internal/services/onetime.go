package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/honeynil/IdentityService/internal/models"
)

const oneTimeTokenSize = 32

// newOneTimeToken returns the raw value to mail to the user and the row to
// store. Only the sha256 of the raw value is persisted.
func newOneTimeToken(purpose models.TokenPurpose, ttl time.Duration, now time.Time) (string, *models.UserToken, error) {
	buf := make([]byte, oneTimeTokenSize)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	return raw, &models.UserToken{
		Purpose:   purpose,
		TokenHash: hashOneTimeToken(raw),
		ExpiresAt: now.Add(ttl),
	}, nil
}

func hashOneTimeToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
