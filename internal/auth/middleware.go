package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	EmailContextKey contextKey = "email"
)

// SessionCookieName holds the opaque session token.
const SessionCookieName = "session"

// ResolveIdentity attaches the authenticated email to the request context.
// It checks the session cookie first, then a Bearer JWT. Any resolution
// failure leaves the request anonymous; it is never an error, and it never
// fails toward the unlimited tier.
func ResolveIdentity(tokenManager *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if email := resolveEmail(r, tokenManager); email != "" {
				ctx := context.WithValue(r.Context(), EmailContextKey, email)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveEmail(r *http.Request, tokenManager *TokenManager) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if email, err := ValidateSession(cookie.Value); err == nil {
			return email
		}
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" || tokenManager == nil {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	claims, err := tokenManager.ValidateToken(parts[1])
	if err != nil {
		return ""
	}
	return claims.Email
}

// EmailFromContext retrieves the authenticated email from the context
func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailContextKey).(string)
	return email, ok && email != ""
}

// RequireAuth is a middleware that rejects anonymous requests
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := EmailFromContext(r.Context()); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
