package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/honeynil/IdentityService/internal/api/respond"
	"github.com/honeynil/IdentityService/internal/infrastructure/observability"
	"github.com/honeynil/IdentityService/internal/infrastructure/ratelimit"
	"github.com/honeynil/IdentityService/internal/models"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
)

const recordTimeout = 2 * time.Second

// ErrorRecorder persists failed requests for the admin audit trail.
type ErrorRecorder interface {
	Record(ctx context.Context, entry *models.ErrorLog) error
}

// ErrorTranslator is the outermost per-route stage. It converts errors
// returned by the inner stages and handlers into the JSON envelope, logs
// every non-2xx outcome and records it.
type ErrorTranslator struct {
	recorder ErrorRecorder
	debug    bool
}

func NewErrorTranslator(recorder ErrorRecorder, debug bool) *ErrorTranslator {
	return &ErrorTranslator{recorder: recorder, debug: debug}
}

func (t *ErrorTranslator) Wrap(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := &requestState{}
		r = r.WithContext(context.WithValue(r.Context(), stateKey, state))
		rec := &statusRecorder{ResponseWriter: w}

		err := t.serve(h, rec, r)
		message := ""
		if err != nil {
			status, msg, data := t.Translate(err)
			message = msg
			if rec.status == 0 {
				respond.Error(rec, status, msg, data)
			} else {
				// Headers are gone; the original status stands.
				slog.Warn("handler failed after writing response", "path", r.URL.Path, "error", err)
			}
		}

		if rec.status >= http.StatusBadRequest {
			if message == "" {
				message = http.StatusText(rec.status)
			}
			t.report(r, state, rec.status, message, err)
		}
	})
}

func (t *ErrorTranslator) serve(h Handler, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("panic in handler", "path", r.URL.Path, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: panic: %v", pkgerrors.ErrInternal, p)
		}
	}()
	return h(w, r)
}

// Translate maps err to a status code, a client-facing message and
// optional data.
func (t *ErrorTranslator) Translate(err error) (int, string, interface{}) {
	var (
		authnErr    *pkgerrors.AuthenticationError
		authzErr    *pkgerrors.AuthorizationError
		validErr    *pkgerrors.ValidationError
		notFoundErr *pkgerrors.NotFoundError
		conflictErr *pkgerrors.ConflictError
	)

	switch {
	case errors.As(err, &authnErr):
		return http.StatusUnauthorized, authnErr.Error(), nil
	case errors.As(err, &authzErr):
		return authzErr.StatusCode(), authzErr.Message, nil
	case errors.As(err, &validErr):
		var data interface{}
		if len(validErr.Fields) > 0 {
			data = map[string]interface{}{"errors": validErr.Fields}
		}
		return http.StatusBadRequest, validErr.Message, data
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, notFoundErr.Message, nil
	case errors.As(err, &conflictErr):
		return http.StatusConflict, conflictErr.Message, nil
	case errors.Is(err, pkgerrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Service temporarily unavailable", nil
	case errors.Is(err, pkgerrors.ErrUserNotFound),
		errors.Is(err, pkgerrors.ErrTokenNotFound),
		errors.Is(err, pkgerrors.ErrErrorLogNotFound):
		return http.StatusNotFound, err.Error(), nil
	case errors.Is(err, pkgerrors.ErrUserAlreadyExists):
		return http.StatusConflict, err.Error(), nil
	case errors.Is(err, pkgerrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials", nil
	case errors.Is(err, pkgerrors.ErrInvalidInput):
		return http.StatusBadRequest, err.Error(), nil
	}

	if t.debug {
		return http.StatusInternalServerError, "Internal server error", map[string]string{"error": err.Error()}
	}
	return http.StatusInternalServerError, "Internal server error", nil
}

func (t *ErrorTranslator) report(r *http.Request, state *requestState, status int, message string, err error) {
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
	}
	if state.userID != nil {
		attrs = append(attrs, "user_id", *state.userID)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	logger := observability.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	if t.recorder == nil {
		return
	}
	entry := &models.ErrorLog{
		Status:   status,
		Message:  message,
		Method:   r.Method,
		Path:     r.URL.Path,
		UserID:   state.userID,
		ClientIP: ratelimit.ClientIP(r),
	}
	if err != nil && status >= http.StatusInternalServerError {
		entry.Message = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), recordTimeout)
	defer cancel()
	if recErr := t.recorder.Record(ctx, entry); recErr != nil {
		slog.Warn("failed to record error log", "path", r.URL.Path, "error", recErr)
	}
}
