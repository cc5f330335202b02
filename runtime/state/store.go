// Package state provides durable snapshot storage for actor mailboxes.
// Snapshots are opaque byte blobs stored under a fixed key per actor
// instance, overwritten on every mutation and read back on activation.
package state

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no snapshot exists for the key.
var ErrNotFound = errors.New("state: snapshot not found")

// Store persists opaque state snapshots. Implementations must be safe for
// concurrent use by multiple actor instances; each key is owned exclusively
// by one instance.
type Store interface {
	// Load reads the snapshot stored under key. Returns ErrNotFound when
	// the key has never been saved.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save overwrites the snapshot stored under key.
	Save(ctx context.Context, key string, data []byte) error
	// Delete removes the snapshot stored under key. Deleting a missing
	// key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the store's resources.
	Close() error
}
