package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gorilla/mux"
	"github.com/honeynil/IdentityService/internal/api/middleware"
	service "github.com/honeynil/IdentityService/internal/services"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	auth  service.AuthService
	users service.UserService
	logs  service.ErrorLogService
}

func NewHandler(auth service.AuthService, users service.UserService, logs service.ErrorLogService) *Handler {
	return &Handler{auth: auth, users: users, logs: logs}
}

// decode reads a JSON body into dst and runs its validation rules. An empty
// body decodes to the zero value.
func decode(w http.ResponseWriter, r *http.Request, dst validation.Validatable) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return pkgerrors.NewValidation("Invalid request body", map[string]string{"body": "must be valid JSON"})
	}
	return validate(dst)
}

func validate(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for field, ferr := range verrs {
			fields[field] = ferr.Error()
		}
		return pkgerrors.NewValidation("Validation failed", fields)
	}
	return err
}

func authContext(r *http.Request) (*middleware.AuthContext, error) {
	ac, ok := middleware.AuthFromContext(r.Context())
	if !ok {
		return nil, pkgerrors.NewAuthentication(pkgerrors.AuthMissing, "Invalid Authorization header", nil)
	}
	return ac, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.NewValidation("Validation failed", map[string]string{"id": "must be a positive integer"})
	}
	return id, nil
}

// pageParams reads ?page=&per_page=. Bad values fall back to the defaults.
func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return page, perPage
}
