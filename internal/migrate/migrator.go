// Package migrate rewrites credentials stored under earlier key conventions
// into the current namespace.
//
// Two legacy conventions are recognized: bare logical names written by the
// first client generation ("access_token"), and v1 app-prefixed names
// ("commons_access_token"). Migration copies a legacy value to the current
// key only when no current value exists, then deletes the legacy entries;
// a current value always takes precedence.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/florianilch/commons-cli/internal/credstore"
)

// legacyPrefixes lists earlier key conventions in precedence order.
// The first format holding a value wins when no current value exists.
var legacyPrefixes = []string{
	"commons_", // v1 app-prefixed convention
	"",         // original bare key names
}

// Migrator performs a one-shot forward migration of legacy credential keys.
type Migrator struct {
	store credstore.Store
	ns    credstore.Namespace
	names []string

	once sync.Once
}

// New creates a Migrator for the given logical key names.
func New(store credstore.Store, ns credstore.Namespace, names []string) (*Migrator, error) {
	if store == nil {
		return nil, fmt.Errorf("missing store")
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no key names to migrate")
	}

	return &Migrator{
		store: store,
		ns:    ns,
		names: names,
	}, nil
}

// Migrate rewrites legacy-format keys into the current namespace and
// deletes the old entries. Idempotent: a second call in the same process is
// a no-op via the once guard, and re-running in a later process finds no
// legacy keys left. Per-key failures are logged and skipped so the rest of
// the application can still start.
func (m *Migrator) Migrate(ctx context.Context) {
	m.once.Do(func() {
		for _, name := range m.names {
			if err := m.migrateKey(ctx, name); err != nil {
				slog.WarnContext(ctx, "credential key migration failed", "key", name, "error", err)
			}
		}
	})
}

// migrateKey moves a single logical key forward. A present current-format
// value wins unconditionally; legacy entries are then deleted without copy.
func (m *Migrator) migrateKey(ctx context.Context, name string) error {
	current := m.ns.Key(name)

	_, err := m.store.Get(ctx, current)
	switch {
	case err == nil:
		// Current value present, legacy entries are stale.
		return m.deleteLegacy(ctx, name)
	case errors.Is(err, credstore.ErrNotFound):
		// Fall through to legacy lookup.
	default:
		return fmt.Errorf("reading current key: %w", err)
	}

	for _, prefix := range legacyPrefixes {
		value, err := m.store.Get(ctx, prefix+name)
		if errors.Is(err, credstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading legacy key %s: %w", prefix+name, err)
		}

		if err := m.store.Set(ctx, current, value); err != nil {
			return fmt.Errorf("writing current key: %w", err)
		}
		slog.InfoContext(ctx, "migrated legacy credential key", "key", name)
		break
	}

	return m.deleteLegacy(ctx, name)
}

// deleteLegacy removes every legacy-format entry for a logical key.
func (m *Migrator) deleteLegacy(ctx context.Context, name string) error {
	var errs []error
	for _, prefix := range legacyPrefixes {
		if err := m.store.Delete(ctx, prefix+name); err != nil {
			errs = append(errs, fmt.Errorf("deleting legacy key %s: %w", prefix+name, err))
		}
	}
	return errors.Join(errs...)
}

// KeyReport describes where a single logical key currently lives.
type KeyReport struct {
	Name    string   `json:"name"`
	Current bool     `json:"current"`
	Legacy  []string `json:"legacy,omitempty"` // legacy key names still present
}

// Diagnose reports which keys exist in which format without mutating
// anything. Intended for support tooling.
func (m *Migrator) Diagnose(ctx context.Context) ([]KeyReport, error) {
	reports := make([]KeyReport, 0, len(m.names))
	for _, name := range m.names {
		report := KeyReport{Name: name}

		if _, err := m.store.Get(ctx, m.ns.Key(name)); err == nil {
			report.Current = true
		} else if !errors.Is(err, credstore.ErrNotFound) {
			return nil, fmt.Errorf("reading current key %s: %w", name, err)
		}

		for _, prefix := range legacyPrefixes {
			if _, err := m.store.Get(ctx, prefix+name); err == nil {
				report.Legacy = append(report.Legacy, prefix+name)
			} else if !errors.Is(err, credstore.ErrNotFound) {
				return nil, fmt.Errorf("reading legacy key %s: %w", prefix+name, err)
			}
		}

		reports = append(reports, report)
	}
	return reports, nil
}

// WipeAll deletes every known key in every known format, old and new.
// Used for hard resets and test isolation.
func (m *Migrator) WipeAll(ctx context.Context) error {
	var errs []error
	for _, name := range m.names {
		if err := m.store.Delete(ctx, m.ns.Key(name)); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", m.ns.Key(name), err))
		}
		if err := m.deleteLegacy(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
