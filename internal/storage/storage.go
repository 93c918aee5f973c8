// Package storage provides the key/value medium used to persist tokens,
// the signed in user and collection caches between runs.
package storage

import "errors"

// ErrInvalidKey is returned when an empty key is used.
var ErrInvalidKey = errors.New("invalid storage key")

// KV is a minimal string key/value store.
//
// Get reports a missing key with ok == false and a nil error.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}
