package handler

import (
	"net/http"

	"github.com/honeynil/IdentityService/internal/api/respond"
	service "github.com/honeynil/IdentityService/internal/services"
)

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) error {
	ac, err := authContext(r)
	if err != nil {
		return err
	}
	user, err := h.users.GetProfile(r.Context(), ac.UserID)
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "OK", user)
	return nil
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) error {
	ac, err := authContext(r)
	if err != nil {
		return err
	}
	var req updateProfileRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	user, err := h.users.UpdateProfile(r.Context(), ac.UserID, service.UpdateProfileInput{Name: req.Name, Email: req.Email})
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "Profile updated", user)
	return nil
}

func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) error {
	ac, err := authContext(r)
	if err != nil {
		return err
	}
	var req deleteAccountRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	err = h.users.DeleteAccount(r.Context(), service.DeleteAccountInput{
		UserID:    ac.UserID,
		Password:  req.Password,
		TokenID:   ac.TokenID,
		ExpiresAt: ac.ExpiresAt,
	})
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "Account deleted", nil)
	return nil
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) error {
	ac, err := authContext(r)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	err = h.auth.ChangePassword(r.Context(), service.ChangePasswordInput{
		UserID:          ac.UserID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		TokenID:         ac.TokenID,
		ExpiresAt:       ac.ExpiresAt,
	})
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "Password changed. Please log in again", nil)
	return nil
}
