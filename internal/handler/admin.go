package handler

import (
	"net/http"

	"github.com/honeynil/IdentityService/internal/api/respond"
	service "github.com/honeynil/IdentityService/internal/services"
)

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) error {
	page, perPage := pageParams(r)
	result, err := h.users.ListUsers(r.Context(), page, perPage)
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "OK", result)
	return nil
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "OK", user)
	return nil
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) error {
	var req createUserRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	user, err := h.users.CreateUser(r.Context(), service.CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
		Active:   active,
		Verified: req.Verified,
	})
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusCreated, "User created", user)
	return nil
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var req updateUserRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	user, err := h.users.UpdateUser(r.Context(), id, service.UpdateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Role:     req.Role,
		Active:   req.Active,
		Verified: req.Verified,
	})
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "User updated", user)
	return nil
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) error {
	ac, err := authContext(r)
	if err != nil {
		return err
	}
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := h.users.DeleteUser(r.Context(), ac.UserID, id); err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "User deleted", nil)
	return nil
}

func (h *Handler) ListErrorLogs(w http.ResponseWriter, r *http.Request) error {
	page, perPage := pageParams(r)
	result, err := h.logs.List(r.Context(), page, perPage)
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "OK", result)
	return nil
}

func (h *Handler) GetErrorLog(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	entry, err := h.logs.Get(r.Context(), id)
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "OK", entry)
	return nil
}

func (h *Handler) DeleteErrorLog(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := h.logs.Delete(r.Context(), id); err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "Error log deleted", nil)
	return nil
}
