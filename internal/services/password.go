package service

import (
	stderrors "errors"
	"fmt"

	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty password", pkgerrors.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: failed to hash password: %v", pkgerrors.ErrInternal, err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if stderrors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return pkgerrors.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("%w: failed to compare password: %v", pkgerrors.ErrInternal, err)
	}
	return nil
}
