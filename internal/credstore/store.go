package credstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key was never written or has been
// deleted. Callers distinguish "absent" from backend failure with errors.Is.
var ErrNotFound = errors.New("credstore: key not found")

// Store reads, writes, and deletes opaque credential values.
//
// Set and Delete must complete (or fail loudly) before returning; Get
// returns ErrNotFound rather than an opaque failure for absent keys.
// Each operation is individually atomic; no cross-key transactions.
type Store interface {
	// Set persists value under key, overwriting any existing value.
	Set(ctx context.Context, key, value string) error

	// Get returns the stored value. Returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes the key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}

// Namespace qualifies logical key names with an application and build
// variant tag (e.g. "commons.prod").
type Namespace struct {
	app     string
	variant string
}

// NewNamespace creates a Namespace. Empty parts are rejected so a
// misconfigured build cannot silently share keys with another variant.
func NewNamespace(app, variant string) (Namespace, error) {
	if app == "" {
		return Namespace{}, errors.New("namespace app cannot be empty")
	}
	if variant == "" {
		return Namespace{}, errors.New("namespace variant cannot be empty")
	}
	return Namespace{app: app, variant: variant}, nil
}

// Key returns the fully qualified key for a logical name.
func (n Namespace) Key(name string) string {
	return n.app + "." + n.variant + "." + name
}

// String returns the namespace prefix without a trailing separator.
func (n Namespace) String() string {
	return n.app + "." + n.variant
}
