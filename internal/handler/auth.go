package handler

import (
	"net/http"

	"github.com/honeynil/IdentityService/internal/api/respond"
	service "github.com/honeynil/IdentityService/internal/services"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) error {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	user, pair, err := h.auth.Register(r.Context(), service.RegisterInput{Email: req.Email, Name: req.Name, Password: req.Password})
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusCreated, "Registration successful. Please verify your email address", authResponse{User: user, Tokens: pair})
	return nil
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	user, pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "Login successful", authResponse{User: user, Tokens: pair})
	return nil
}

// Refresh answers with the bare token pair rather than the envelope.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) error {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	respond.JSON(w, http.StatusOK, pair)
	return nil
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) error {
	ac, err := authContext(r)
	if err != nil {
		return err
	}
	var req logoutRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	err = h.auth.Logout(r.Context(), service.LogoutInput{
		UserID:       ac.UserID,
		TokenID:      ac.TokenID,
		ExpiresAt:    ac.ExpiresAt,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "Logged out successfully", nil)
	return nil
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) error {
	ac, err := authContext(r)
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "OK", ac.User)
	return nil
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) error {
	var req tokenRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	user, pair, err := h.auth.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "Email verified successfully", authResponse{User: user, Tokens: pair})
	return nil
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) error {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	if err := h.auth.ResendVerification(r.Context(), req.Email); err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "If the account exists and is not verified, a verification email has been sent", nil)
	return nil
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) error {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "If the account exists, a password reset email has been sent", nil)
	return nil
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) error {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		return err
	}
	respond.Success(w, http.StatusOK, "Password has been reset. Please log in again", nil)
	return nil
}
