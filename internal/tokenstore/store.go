// Package tokenstore persists the access and refresh tokens.
// It applies no policy: tokens are opaque strings.
package tokenstore

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wayfarer/internal/storage"
)

// Kind identifies which token is stored.
type Kind string

const (
	Access  Kind = "accessToken"
	Refresh Kind = "refreshToken"
)

// Store reads and writes tokens to a storage.KV.
// It is safe to use before any session exists.
type Store struct {
	kv storage.KV
}

// New creates a token store backed by kv.
func New(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Get returns the stored token of the given kind, or "" when absent.
// Storage failures are logged and reported as absent.
func (s *Store) Get(kind Kind) string {
	v, ok, err := s.kv.Get(string(kind))
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to read token")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// Set stores a token. An empty value removes it.
func (s *Store) Set(kind Kind, value string) {
	var err error
	if value == "" {
		err = s.kv.Delete(string(kind))
	} else {
		err = s.kv.Set(string(kind), value)
	}
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to write token")
	}
}

// SetPair stores both tokens. An empty refresh token leaves the stored one untouched.
func (s *Store) SetPair(access, refresh string) {
	s.Set(Access, access)
	if refresh != "" {
		s.Set(Refresh, refresh)
	}
}

// Pair returns the access and refresh tokens.
func (s *Store) Pair() (access, refresh string) {
	return s.Get(Access), s.Get(Refresh)
}

// Clear removes both tokens.
func (s *Store) Clear() {
	s.Set(Access, "")
	s.Set(Refresh, "")
}

// ExpiresAt returns the exp claim of a JWT without verifying it.
// Opaque or malformed tokens report the zero time.
// The result is informational only; refresh is driven by 401 responses.
func ExpiresAt(token string) time.Time {
	if token == "" {
		return time.Time{}
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}

	if claims.ExpiresAt == nil {
		return time.Time{}
	}

	return claims.ExpiresAt.Time
}
