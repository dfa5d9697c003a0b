package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/florianilch/commons-cli/internal/credstore"
	"github.com/florianilch/commons-cli/internal/platformapi"
)

// Logical key names for the durable credential records. The renewal token
// reuses the wire name so that pre-namespace clients migrate cleanly.
const (
	KeyAccessToken  = "access_token"
	KeyRenewalToken = "refresh_token"
	KeyProfile      = "profile"
)

// DurableKeys lists every logical key the Manager owns, in a stable order.
// The migrator and wipe tooling iterate this set.
func DurableKeys() []string {
	return []string{KeyAccessToken, KeyRenewalToken, KeyProfile}
}

var (
	// ErrNoSession indicates no credential (or cached profile) is stored.
	ErrNoSession = errors.New("token: no stored session")

	// ErrCredentialInvalid indicates the server explicitly rejected the
	// credential; the stored session has been evicted.
	ErrCredentialInvalid = errors.New("token: credential invalid")

	// ErrUnavailable indicates a network-class failure: the session state is
	// unknown, not denied, and stored credentials were left untouched.
	ErrUnavailable = errors.New("token: platform unavailable")
)

// AuthClient is the subset of the platform API the Manager exchanges
// credentials with.
type AuthClient interface {
	Refresh(ctx context.Context, renewalToken string) (*platformapi.Credential, error)
	Me(ctx context.Context, accessToken string) (*platformapi.User, error)
}

// Compile-time check that the platform client satisfies AuthClient.
var _ AuthClient = (*platformapi.Client)(nil)

// Manager owns read, write, and delete of the durable credential records
// and implements renewal-on-expiry. No other component writes these keys.
type Manager struct {
	store   credstore.Store
	ns      credstore.Namespace
	api     AuthClient
	resolve Resolver

	renewGroup singleflight.Group
}

// Compile-time check that Manager can back the authenticated transport.
var _ platformapi.TokenProvider = (*Manager)(nil)

// NewManager creates a Manager. The resolver may be nil when no resource
// URL rewriting is needed.
func NewManager(store credstore.Store, ns credstore.Namespace, api AuthClient, resolve Resolver) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("missing store")
	}
	if api == nil {
		return nil, fmt.Errorf("missing auth client")
	}

	return &Manager{
		store:   store,
		ns:      ns,
		api:     api,
		resolve: resolve,
	}, nil
}

// StoreCredential writes both credential parts. An empty renewal token
// leaves any previously stored renewal token in place, covering access-only
// issuance and non-rotating refresh responses alike.
func (m *Manager) StoreCredential(ctx context.Context, access, renewal string) error {
	if access == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	if err := m.store.Set(ctx, m.ns.Key(KeyAccessToken), access); err != nil {
		return fmt.Errorf("storing access token: %w", err)
	}
	if renewal != "" {
		if err := m.store.Set(ctx, m.ns.Key(KeyRenewalToken), renewal); err != nil {
			return fmt.Errorf("storing renewal token: %w", err)
		}
	}
	return nil
}

// Access returns the stored access credential. Returns ErrNoSession when
// none is stored.
func (m *Manager) Access(ctx context.Context) (string, error) {
	return m.getKey(ctx, KeyAccessToken)
}

// Renewal returns the stored renewal credential. Returns ErrNoSession when
// none is stored.
func (m *Manager) Renewal(ctx context.Context) (string, error) {
	return m.getKey(ctx, KeyRenewalToken)
}

func (m *Manager) getKey(ctx context.Context, name string) (string, error) {
	value, err := m.store.Get(ctx, m.ns.Key(name))
	if errors.Is(err, credstore.ErrNotFound) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return value, nil
}

// StoreProfile normalizes resource references and persists the profile
// snapshot. Normalization runs on every store so re-cached profiles pick up
// host changes.
func (m *Manager) StoreProfile(ctx context.Context, profile *Profile) error {
	if profile == nil {
		return fmt.Errorf("profile cannot be nil")
	}

	normalized := profile.normalize(m.resolve)
	payload, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	if err := m.store.Set(ctx, m.ns.Key(KeyProfile), string(payload)); err != nil {
		return fmt.Errorf("storing profile: %w", err)
	}
	return nil
}

// CachedProfile returns the stored profile snapshot. Returns ErrNoSession
// when none is cached.
func (m *Manager) CachedProfile(ctx context.Context) (*Profile, error) {
	payload, err := m.getKey(ctx, KeyProfile)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal([]byte(payload), &profile); err != nil {
		return nil, fmt.Errorf("decoding cached profile: %w", err)
	}
	return &profile, nil
}

// ClearAll deletes the access token, renewal token, and cached profile.
// Used by logout and by renewal failure.
func (m *Manager) ClearAll(ctx context.Context) error {
	var errs []error
	for _, name := range DurableKeys() {
		if err := m.store.Delete(ctx, m.ns.Key(name)); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Renew exchanges the renewal token for a fresh credential, storing it
// durably before returning. Fail-closed: an absent renewal token fails
// without a network call, and any exchange failure clears the stored
// session. An uncertain renewal is treated as a lost session rather than
// silently retried. Concurrent calls coalesce into one exchange.
func (m *Manager) Renew(ctx context.Context) error {
	_, err, _ := m.renewGroup.Do("renew", func() (any, error) {
		return nil, m.renewLocked(ctx)
	})
	return err
}

func (m *Manager) renewLocked(ctx context.Context) error {
	renewal, err := m.Renewal(ctx)
	if errors.Is(err, ErrNoSession) {
		return ErrNoSession
	}
	if err != nil {
		return err
	}

	cred, err := m.api.Refresh(ctx, renewal)
	if err != nil {
		if clearErr := m.ClearAll(ctx); clearErr != nil {
			slog.ErrorContext(ctx, "failed to clear credentials after renewal failure", "error", clearErr)
		}
		if errors.Is(err, platformapi.ErrUnauthorized) {
			slog.InfoContext(ctx, "renewal token rejected, session evicted")
			return fmt.Errorf("%w: %w", ErrCredentialInvalid, err)
		}
		slog.WarnContext(ctx, "renewal failed, session evicted", "error", err)
		return fmt.Errorf("renewal exchange: %w", err)
	}

	if err := m.StoreCredential(ctx, cred.AccessToken, cred.RefreshToken); err != nil {
		return fmt.Errorf("persisting renewed credential: %w", err)
	}
	return nil
}

// FetchProfile fetches the authoritative profile from the platform. On an
// authorization failure it renews once and retries once. Network-class
// failures return ErrUnavailable without touching stored state, so a
// hiccup cannot evict a still-possibly-valid session.
func (m *Manager) FetchProfile(ctx context.Context) (*Profile, error) {
	access, err := m.Access(ctx)
	if errors.Is(err, ErrNoSession) {
		// No access token; a stored renewal token may still recover the session.
		if err := m.Renew(ctx); err != nil {
			return nil, err
		}
		if access, err = m.Access(ctx); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	user, err := m.api.Me(ctx, access)
	if errors.Is(err, platformapi.ErrUnauthorized) {
		if err := m.Renew(ctx); err != nil {
			return nil, err
		}
		if access, err = m.Access(ctx); err != nil {
			return nil, err
		}
		user, err = m.api.Me(ctx, access)
	}
	if err != nil {
		if errors.Is(err, platformapi.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %w", ErrCredentialInvalid, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	normalized := ProfileFromUser(user).normalize(m.resolve)
	profile := &normalized
	if err := m.StoreProfile(ctx, profile); err != nil {
		slog.WarnContext(ctx, "failed to cache fetched profile", "error", err)
	}
	return profile, nil
}

// ProfileFromUser converts the wire principal into the cached snapshot shape.
func ProfileFromUser(user *platformapi.User) *Profile {
	return &Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		Email:       user.Email,
		Phone:       user.Phone,
		AvatarURL:   user.AvatarURL,
	}
}
