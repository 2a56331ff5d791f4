package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrNilUser            = errors.New("user is nil")
	ErrNilToken           = errors.New("token is nil")
	ErrNilErrorLog        = errors.New("error log is nil")
	ErrTokenNotFound      = errors.New("token not found or already used")
	ErrErrorLogNotFound   = errors.New("error log not found")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrInternal           = fmt.Errorf("internal error")
	// ErrStoreUnavailable marks a failure of the shared key-value store.
	// It is never folded into "not revoked" or "not found".
	ErrStoreUnavailable = errors.New("store unavailable")
)

// AuthKind distinguishes the reasons a request failed authentication.
type AuthKind string

const (
	AuthMissing     AuthKind = "missing"
	AuthMalformed   AuthKind = "malformed"
	AuthExpired     AuthKind = "expired"
	AuthRevoked     AuthKind = "revoked"
	AuthWrongType   AuthKind = "wrong_type"
	AuthCredentials AuthKind = "credentials"
	AuthUser        AuthKind = "user"
)

// AuthenticationError is answered with 401 regardless of its kind.
type AuthenticationError struct {
	Kind    AuthKind
	Message string
	Err     error
}

func NewAuthentication(kind AuthKind, message string, err error) *AuthenticationError {
	return &AuthenticationError{Kind: kind, Message: message, Err: err}
}

func (e *AuthenticationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "authentication failed"
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// AuthorizationError is raised for authenticated callers that may not
// proceed. Status defaults to 403.
type AuthorizationError struct {
	Message string
	Status  int
}

func NewAuthorization(message string) *AuthorizationError {
	return &AuthorizationError{Message: message, Status: http.StatusForbidden}
}

func (e *AuthorizationError) Error() string { return e.Message }

func (e *AuthorizationError) StatusCode() int {
	if e.Status == 0 {
		return http.StatusForbidden
	}
	return e.Status
}

// ValidationError carries per-field messages keyed by the JSON field name.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func NewValidation(message string, fields map[string]string) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

type NotFoundError struct {
	Message string
	Err     error
}

func NewNotFound(message string, err error) *NotFoundError {
	return &NotFoundError{Message: message, Err: err}
}

func (e *NotFoundError) Error() string { return e.Message }

func (e *NotFoundError) Unwrap() error { return e.Err }

type ConflictError struct {
	Message string
	Err     error
}

func NewConflict(message string, err error) *ConflictError {
	return &ConflictError{Message: message, Err: err}
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return e.Err }
