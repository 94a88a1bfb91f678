package models

// LoginRequest defines the structure for a login attempt.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// ForgotPasswordRequest defines the structure for requesting a password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// ResetPasswordRequest defines the structure for resetting a password with a token.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required,len=64,hexadecimal"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// ChangePasswordRequest defines the structure for an authenticated password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// ValidateTokenRequest defines the structure for the reset-token preflight check.
type ValidateTokenRequest struct {
	Token string `json:"token" validate:"required,len=64,hexadecimal"`
}

// TokenPreflightResult is the preflight response. It reveals validity only,
// never the account the token belongs to.
type TokenPreflightResult struct {
	Valid bool `json:"valid"`
}
