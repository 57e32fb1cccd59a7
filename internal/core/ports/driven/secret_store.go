// Package driven defines the outward-facing interfaces the core services
// call into: secret storage, configuration, tokenization, and browser
// launching. Concrete implementations live under internal/adapters/driven.
package driven

import "context"

// SecretStore persists opaque blobs keyed by name. The bundled adapters
// (memory, sqlite) store values as given, without encryption. The
// authentication service treats it as the sole source of truth for session
// state; nothing else may hold session data that the store doesn't also have.
type SecretStore interface {
	// Get returns the value stored under key, or ok=false if absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
