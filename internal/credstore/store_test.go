package credstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace(t *testing.T) {
	ns, err := NewNamespace("commons", "prod")
	require.NoError(t, err)
	assert.Equal(t, "commons.prod.access_token", ns.Key("access_token"))
	assert.Equal(t, "commons.prod", ns.String())

	_, err = NewNamespace("", "prod")
	require.Error(t, err)
	_, err = NewNamespace("commons", "")
	require.Error(t, err)
}

// roundTripStores enumerates every variant testable without an OS keyring.
func roundTripStores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	return map[string]Store{
		"file": fileStore,
		"mem":  NewMemStore(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, store := range roundTripStores(t) {
		t.Run(name, func(t *testing.T) {
			tests := []struct {
				name  string
				key   string
				value string
			}{
				{"simple", "commons.prod.access_token", "tok-123"},
				{"empty value", "commons.prod.marker", ""},
				{"binary-ish value", "commons.prod.profile", "{\"id\":\"u1\",\"name\":\"Jørgen\"}\n"},
				{"long value", "commons.prod.refresh_token", strings.Repeat("r", 4096)},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					require.NoError(t, store.Set(ctx, tt.key, tt.value))
					got, err := store.Get(ctx, tt.key)
					require.NoError(t, err)
					assert.Equal(t, tt.value, got)
				})
			}
		})
	}
}

func TestStoreGetAbsent(t *testing.T) {
	ctx := context.Background()

	for name, store := range roundTripStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "commons.prod.never_written")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreDeleteAbsentIsNoop(t *testing.T) {
	ctx := context.Background()

	for name, store := range roundTripStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Delete(ctx, "commons.prod.never_written"))
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	ctx := context.Background()

	for name, store := range roundTripStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "k", "first"))
			require.NoError(t, store.Set(ctx, "k", "second"))
			got, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "second", got)
		})
	}
}

func TestStoreDeleteThenGet(t *testing.T) {
	ctx := context.Background()

	for name, store := range roundTripStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "k", "v"))
			require.NoError(t, store.Delete(ctx, "k"))
			_, err := store.Get(ctx, "k")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStoreEncodesOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	const secret = "super-secret-token"
	require.NoError(t, store.Set(ctx, "commons.prod.access_token", secret))

	raw, err := os.ReadFile(filepath.Join(dir, "commons.prod.access_token"))
	require.NoError(t, err)
	// Reversible encoding, not plain text on disk.
	assert.NotContains(t, string(raw), secret)
}

func TestFileStorePermissions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "k", "v"))

	info, err := os.Stat(filepath.Join(dir, "k"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStoreCorruptValue(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "k"), []byte("not base64 !!"), 0600))

	_, err = store.Get(ctx, "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreRejectsEmptyDir(t *testing.T) {
	_, err := NewFileStore("")
	require.Error(t, err)
}

func TestStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, store := range roundTripStores(t) {
		t.Run(name, func(t *testing.T) {
			require.Error(t, store.Set(ctx, "k", "v"))
			_, err := store.Get(ctx, "k")
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrNotFound)
		})
	}
}
