package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_Disabled(t *testing.T) {
	s, err := NewService("")
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	rec := httptest.NewRecorder()
	s.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/services", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_Enabled(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	s, err := NewService(string(hash))
	require.NoError(t, err)
	require.True(t, s.Enabled())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer s3cret", want: http.StatusOK},
		{name: "lowercase scheme", header: "bearer s3cret", want: http.StatusOK},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "empty key", header: "Bearer ", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.Middleware(okHandler()).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestNewService_RejectsNonBcryptHash(t *testing.T) {
	_, err := NewService("plain-text-key")
	assert.Error(t, err)
}
