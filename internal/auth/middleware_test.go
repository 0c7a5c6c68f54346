package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireAuth(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, ok := GetUserEmailFromContext(r.Context())
		assert.True(t, ok, "expected user email in context")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(email))
	})

	authHandler := RequireAuth(nil, handler)

	tests := []struct {
		name       string
		header     string
		testMode   bool
		wantStatus int
		wantBody   string
	}{
		{name: "valid bearer token", header: "Bearer valid_token_12345", wantStatus: http.StatusOK, wantBody: DefaultUserEmail},
		{name: "lowercase scheme", header: "bearer token", wantStatus: http.StatusOK, wantBody: DefaultUserEmail},
		{name: "extra whitespace", header: "  Bearer    token  ", wantStatus: http.StatusOK, wantBody: DefaultUserEmail},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "no scheme", header: "InvalidFormat", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "empty email token", header: "Bearer email:", wantStatus: http.StatusUnauthorized},
		{name: "test mode email token", header: "Bearer email:alice@example.com", testMode: true, wantStatus: http.StatusOK, wantBody: "alice@example.com"},
		{name: "email token outside test mode", header: "Bearer email:alice@example.com", wantStatus: http.StatusOK, wantBody: DefaultUserEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.testMode {
				t.Setenv("MAILPILOT_TEST_MODE", "true")
			} else {
				t.Setenv("MAILPILOT_TEST_MODE", "")
			}

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			authHandler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}

func TestGetUserEmailFromContext(t *testing.T) {
	_, ok := GetUserEmailFromContext(context.Background())
	assert.False(t, ok)

	email, ok := GetUserEmailFromContext(context.WithValue(context.Background(), UserEmailKey, "a@example.com"))
	assert.True(t, ok)
	assert.Equal(t, "a@example.com", email)
}
