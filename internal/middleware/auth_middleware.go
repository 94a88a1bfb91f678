// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/havenhomes/haven-backend/internal/auth"
	"github.com/havenhomes/haven-backend/internal/utils"
)

// contextKey is a private type for request-context values so keys cannot
// collide with other packages.
type contextKey string

const (
	accountIDKey contextKey = "account_id"
	sessionIDKey contextKey = "session_id"
)

// JWTAuth is a middleware that requires a valid bearer token and places
// the authenticated account's identity in the request context.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				utils.Unauthorized(w, "")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				utils.Unauthorized(w, "Invalid authorization header")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				utils.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, accountIDKey, claims.AccountID)
			ctx = context.WithValue(ctx, sessionIDKey, claims.SessionID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccountID returns the authenticated account ID from the request
// context.
func GetAccountID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(accountIDKey).(string)
	return id, ok && id != ""
}

// GetSessionID returns the session ID of the token used for this request.
func GetSessionID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(sessionIDKey).(string)
	return id, ok && id != ""
}
