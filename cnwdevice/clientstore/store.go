// Package clientstore provides the key/value stores the device SDK uses for
// client-side state: the cached device fingerprint, the current session
// token, the cached user record and the per-tab active-session marker.
//
// A Store is either durable (survives restarts, shared by every session on
// the device) or tab-scoped (lives as long as one session). Writes are plain
// overwrites and callers do not lock around them.
package clientstore

import (
	"context"
	"errors"
	"regexp"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("clientstore: key not found")

// validName matches safe table, collection and namespace names.
var validName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store is a string key/value store.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set creates or overwrites the value for key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}
