package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidKey is returned for a missing or wrong access key.
var ErrInvalidKey = errors.New("invalid access key")

// Service checks the shared access key against a bcrypt hash
type Service struct {
	keyHash []byte
}

// NewService creates an auth service. An empty hash disables authentication.
func NewService(keyHash string) (*Service, error) {
	keyHash = strings.TrimSpace(keyHash)
	if keyHash == "" {
		return &Service{}, nil
	}
	if _, err := bcrypt.Cost([]byte(keyHash)); err != nil {
		return nil, err
	}
	return &Service{keyHash: []byte(keyHash)}, nil
}

// Enabled reports whether requests must carry the access key.
func (s *Service) Enabled() bool {
	return len(s.keyHash) > 0
}

// ValidateKey compares a presented key with the configured hash in constant time.
func (s *Service) ValidateKey(key string) error {
	if !s.Enabled() {
		return nil
	}
	if key == "" {
		return ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword(s.keyHash, []byte(key)); err != nil {
		return ErrInvalidKey
	}
	return nil
}

// Middleware requires Authorization: Bearer <key> when authentication is enabled.
func (s *Service) Middleware(next http.Handler) http.Handler {
	if !s.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			writeJSONError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		if err := s.ValidateKey(strings.TrimSpace(parts[1])); err != nil {
			log.Debug().Str("path", r.URL.Path).Msg("Rejected access key")
			writeJSONError(w, http.StatusUnauthorized, "invalid access key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
