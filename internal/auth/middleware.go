package auth

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

// UserEmailKey is the context key used to store the authenticated user's email.
const UserEmailKey contextKey = "user_email"

// DefaultUserEmail is the identity every non-test token resolves to.
const DefaultUserEmail = "operator@mailpilot.local"

var ErrInvalidToken = errors.New("invalid token")

// RequireAuth checks for a bearer token and stores the caller's email in the
// request context. Missing or malformed credentials get a 401.
func RequireAuth(logger *zap.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			logger.Debug("missing or malformed Authorization header", zap.String("path", r.URL.Path))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userEmail, err := ValidateToken(token)
		if err != nil {
			logger.Debug("token validation failed", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserEmailKey, userEmail)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from an RFC 7235 "Bearer <token>" header.
// The scheme is case-insensitive.
func BearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(strings.Join(fields[1:], " "))
	return token, token != ""
}

// GetUserEmailFromContext returns the user email from the context.
func GetUserEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(UserEmailKey).(string)
	return email, ok && email != ""
}

// ValidateToken returns the email the token belongs to. In test mode
// (MAILPILOT_TEST_MODE=true) a token "email:user@example.com" authenticates
// as that address.
func ValidateToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" || token == "email:" {
		return "", ErrInvalidToken
	}

	if os.Getenv("MAILPILOT_TEST_MODE") == "true" {
		if email, ok := strings.CutPrefix(token, "email:"); ok && email != "" {
			return email, nil
		}
	}

	// TODO: verify tokens against the identity provider once one is configured.
	return DefaultUserEmail, nil
}
