// Package handlers implements the HTTP layer. Handlers decode and validate
// request bodies, call into the service layer, and translate errors into
// the standard response envelope. No business logic lives here.
package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/havenhomes/haven-backend/internal/middleware"
	"github.com/havenhomes/haven-backend/internal/models"
	"github.com/havenhomes/haven-backend/internal/service"
	"github.com/havenhomes/haven-backend/internal/utils"
)

// AuthHandler handles authentication and credential-recovery routes.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	if authService == nil {
		panic("authService cannot be nil")
	}
	return &AuthHandler{authService: authService}
}

// Login handles user authentication.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds models.LoginRequest
	if err := utils.DecodeAndValidate(r, &creds); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	record, accessToken, err := h.authService.Login(r.Context(), &creds, clientOrigin(r), r.UserAgent())
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"account":      record,
		"access_token": accessToken,
		"token_type":   "Bearer",
	})
}

// ForgotPassword handles a password reset request. The response body is
// identical for every outcome so the endpoint cannot be used to probe
// which email addresses have accounts.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	message := h.authService.RequestReset(r.Context(), req.Email, clientOrigin(r))

	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
	})
}

// ResetPassword completes a password reset using a token from the reset
// email.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Your password has been reset. Please sign in with your new password.",
	})
}

// ValidateResetToken reports whether a reset token would currently be
// accepted, so the reset form can be shown or skipped before the user
// types a new password.
func (h *AuthHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateTokenRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	result := h.authService.ValidateTokenPreflight(r.Context(), req.Token)

	utils.JSON(w, http.StatusOK, result)
}

// ChangePassword handles an authenticated password change.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		utils.Unauthorized(w, "")
		return
	}
	sessionID, _ := middleware.GetSessionID(r)

	var req models.ChangePasswordRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	if err := h.authService.ChangePassword(r.Context(), accountID, sessionID, &req); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Your password has been changed.",
	})
}

// clientOrigin extracts the client IP address from the request, taking
// into account common proxy headers.
func clientOrigin(r *http.Request) string {
	xForwardedFor := r.Header.Get("X-Forwarded-For")
	if xForwardedFor != "" {
		// Use the leftmost IP in the list (client IP)
		ips := strings.Split(xForwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	if xRealIP := r.Header.Get("X-Real-IP"); xRealIP != "" {
		return xRealIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
