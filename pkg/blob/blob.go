// Package blob defines the object-store boundary the gateway persists through.
// Paths are forward-slash separated keys; the store is assumed durable and
// strongly consistent per key.
package blob

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get and Delete when no object exists at the path.
	ErrNotFound = errors.New("blob: not found")

	// ErrPreconditionFailed is returned by PutIfAbsent when an object already
	// exists at the path.
	ErrPreconditionFailed = errors.New("blob: precondition failed")
)

// Store is a thin capability over a remote key/blob store.
type Store interface {
	// Get returns the full content of the object at path.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put writes data as the entire content of the object at path,
	// overwriting any prior content.
	Put(ctx context.Context, path string, data []byte) error

	// PutIfAbsent writes the object only if no object exists at path.
	// Used for lease acquisition.
	PutIfAbsent(ctx context.Context, path string, data []byte) error

	// List returns the paths of all objects whose path starts with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the object at path.
	Delete(ctx context.Context, path string) error
}
