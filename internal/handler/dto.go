package handler

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/honeynil/IdentityService/internal/models"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
)

var passwordRules = []validation.Rule{validation.Required, validation.Length(minPasswordLength, maxPasswordLength)}

func emailRules(required bool) []validation.Rule {
	rules := []validation.Rule{validation.Length(3, 255), is.Email}
	if required {
		rules = append([]validation.Rule{validation.Required}, rules...)
	}
	return rules
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules(true)...),
		validation.Field(&r.Name, validation.Length(0, 100)),
		validation.Field(&r.Password, passwordRules...),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// logoutRequest may be empty; the refresh token is revoked when present.
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r logoutRequest) Validate() error { return nil }

type tokenRequest struct {
	Token string `json:"token"`
}

func (r tokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules(true)...),
	)
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, passwordRules...),
	)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, append(passwordRules, validation.NotIn(r.CurrentPassword).Error("must differ from the current password"))...),
	)
}

type updateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (r updateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(0, 100)),
		validation.Field(&r.Email, emailRules(false)...),
	)
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

func (r deleteAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
	)
}

type createUserRequest struct {
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
	Active   *bool       `json:"active"`
	Verified bool        `json:"verified"`
}

func (r createUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules(true)...),
		validation.Field(&r.Name, validation.Length(0, 100)),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.Role, validation.In(models.RoleUser, models.RoleAdmin)),
	)
}

type updateUserRequest struct {
	Name     *string      `json:"name"`
	Email    *string      `json:"email"`
	Role     *models.Role `json:"role"`
	Active   *bool        `json:"active"`
	Verified *bool        `json:"verified"`
}

func (r updateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(0, 100)),
		validation.Field(&r.Email, emailRules(false)...),
		validation.Field(&r.Role, validation.In(models.RoleUser, models.RoleAdmin)),
	)
}

type authResponse struct {
	User   *models.User      `json:"user"`
	Tokens *models.TokenPair `json:"tokens"`
}
