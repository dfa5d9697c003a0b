// Package session owns the process-wide authenticated session state.
//
// The Controller is the single writer of the in-memory state; the durable
// truth stays in the credential store behind the token manager. UI layers
// observe state through Subscribe and never mutate it directly. Every
// asynchronous publish is guarded by an epoch counter so a late-arriving
// background result cannot resurrect a session the user already logged out
// of.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/florianilch/commons-cli/internal/token"
)

// Phase is the session lifecycle phase. A process starts at PhaseUnknown
// and only returns to it by restarting.
type Phase string

const (
	PhaseUnknown         Phase = "unknown"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// Snapshot is the observable session state. Profile is set only while
// authenticated and is the optimistic cached snapshot, never an
// authorization input.
type Snapshot struct {
	Phase   Phase
	Profile *token.Profile
}

// TokenManager is the credential surface the controller drives.
type TokenManager interface {
	Access(ctx context.Context) (string, error)
	CachedProfile(ctx context.Context) (*token.Profile, error)
	FetchProfile(ctx context.Context) (*token.Profile, error)
	ClearAll(ctx context.Context) error
}

// RemoteSessions tears down sessions server-side.
type RemoteSessions interface {
	Logout(ctx context.Context, accessToken string) error
	RevokeAll(ctx context.Context, accessToken string) error
}

// Migrator runs the one-shot legacy key migration before stored
// credentials are trusted.
type Migrator interface {
	Migrate(ctx context.Context)
}

// DefaultWatchdogInterval is how often the watchdog confirms the credential
// is still present while authenticated.
const DefaultWatchdogInterval = 5 * time.Second

// defaultRevalidateTimeout bounds the background authoritative-profile
// fetch started by Bootstrap.
const defaultRevalidateTimeout = 30 * time.Second

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithWatchdogInterval overrides the watchdog poll interval.
func WithWatchdogInterval(interval time.Duration) ControllerOption {
	return func(c *Controller) {
		c.watchdogInterval = interval
	}
}

// Controller orchestrates the session lifecycle for the process.
type Controller struct {
	tokens   TokenManager
	remote   RemoteSessions
	migrator Migrator

	watchdogInterval time.Duration

	mu            sync.Mutex
	snapshot      Snapshot
	epoch         uint64
	subscribers   map[int]chan Snapshot
	nextSub       int
	watchdogStop  context.CancelFunc
	revalidating sync.WaitGroup
}

// New creates a Controller in PhaseUnknown.
func New(tokens TokenManager, remote RemoteSessions, migrator Migrator, opts ...ControllerOption) (*Controller, error) {
	if tokens == nil {
		return nil, fmt.Errorf("missing token manager")
	}
	if remote == nil {
		return nil, fmt.Errorf("missing remote sessions client")
	}
	if migrator == nil {
		return nil, fmt.Errorf("missing migrator")
	}

	c := &Controller{
		tokens:           tokens,
		remote:           remote,
		migrator:         migrator,
		watchdogInterval: DefaultWatchdogInterval,
		snapshot:         Snapshot{Phase: PhaseUnknown},
		subscribers:      make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current snapshot.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Subscribe registers an observer. The returned cancel func must be called
// to release the subscription. Slow observers drop updates rather than
// block the controller.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 16)
	ch <- c.snapshot
	c.subscribers[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Bootstrap runs once at process start: migrate legacy keys, then publish
// the cached session optimistically and revalidate in the background. With
// nothing cached to show, the authoritative check runs before publishing.
func (c *Controller) Bootstrap(ctx context.Context) {
	c.migrator.Migrate(ctx)

	_, accessErr := c.tokens.Access(ctx)
	cached, profileErr := c.tokens.CachedProfile(ctx)

	if accessErr == nil && profileErr == nil {
		// Optimistic publish avoids a loading flash; the background task
		// corrects the state once the platform answers.
		epoch := c.transition(Snapshot{Phase: PhaseAuthenticated, Profile: cached})

		c.revalidating.Add(1)
		go func() {
			defer c.revalidating.Done()
			// Deliberately detached: the task is harmless to let finish
			// after a logout, the epoch guard discards its result.
			bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultRevalidateTimeout)
			defer cancel()
			c.revalidate(bgCtx, epoch)
		}()
		return
	}

	// Nothing cached to show, so resolve the state synchronously.
	epoch := c.currentEpoch()
	c.revalidate(ctx, epoch)
	if c.State().Phase == PhaseUnknown {
		c.publishAt(epoch, Snapshot{Phase: PhaseUnauthenticated})
	}
}

// revalidate fetches the authoritative profile and republishes. A
// network-class failure leaves the current state untouched: unreachable is
// unknown, not denied.
func (c *Controller) revalidate(ctx context.Context, epoch uint64) {
	profile, err := c.tokens.FetchProfile(ctx)
	switch {
	case err == nil:
		c.publishAt(epoch, Snapshot{Phase: PhaseAuthenticated, Profile: profile})
	case errors.Is(err, token.ErrCredentialInvalid), errors.Is(err, token.ErrNoSession):
		c.publishAt(epoch, Snapshot{Phase: PhaseUnauthenticated})
	default:
		slog.WarnContext(ctx, "session revalidation inconclusive", "error", err)
	}
}

// Login publishes the authenticated state after an external flow has
// already stored the credential.
func (c *Controller) Login(profile *token.Profile) {
	c.transition(Snapshot{Phase: PhaseAuthenticated, Profile: profile})
}

// Logout tears the session down. The remote call is best-effort: a network
// failure never blocks local cleanup.
func (c *Controller) Logout(ctx context.Context) {
	if access, err := c.tokens.Access(ctx); err == nil {
		if err := c.remote.Logout(ctx, access); err != nil {
			slog.WarnContext(ctx, "remote logout failed, clearing locally anyway", "error", err)
		}
	}
	c.clearAndPublish(ctx)
}

// RevokeAll revokes every session for the principal, then performs the
// same local cleanup regardless of the remote outcome.
func (c *Controller) RevokeAll(ctx context.Context) {
	if access, err := c.tokens.Access(ctx); err == nil {
		if err := c.remote.RevokeAll(ctx, access); err != nil {
			slog.WarnContext(ctx, "remote revoke-all failed, clearing locally anyway", "error", err)
		}
	}
	c.clearAndPublish(ctx)
}

func (c *Controller) clearAndPublish(ctx context.Context) {
	if err := c.tokens.ClearAll(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to clear stored credentials", "error", err)
	}
	c.transition(Snapshot{Phase: PhaseUnauthenticated})
}

// Refetch forces a new authoritative-profile fetch and republish.
func (c *Controller) Refetch(ctx context.Context) {
	c.revalidate(ctx, c.currentEpoch())
}

// Close stops the watchdog and waits for any in-flight background
// revalidation to finish publishing (or be discarded).
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopWatchdogLocked()
	c.mu.Unlock()
	c.revalidating.Wait()
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// transition applies a user-initiated state change, invalidating any
// pending background publishes.
func (c *Controller) transition(snap Snapshot) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.applyLocked(snap)
	return c.epoch
}

// publishAt applies a background result only if no newer transition has
// happened since the task was started (stale-write guard).
func (c *Controller) publishAt(epoch uint64, snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		slog.Debug("discarding stale session publish", "phase", snap.Phase)
		return
	}
	c.applyLocked(snap)
}

func (c *Controller) applyLocked(snap Snapshot) {
	c.snapshot = snap
	for _, sub := range c.subscribers {
		select {
		case sub <- snap:
		default:
			// Slow observer, drop rather than block the controller.
		}
	}

	if snap.Phase == PhaseAuthenticated {
		c.startWatchdogLocked()
	} else {
		c.stopWatchdogLocked()
	}
}

// startWatchdogLocked starts the credential-presence watchdog. At most one
// instance runs per controller; a second start while running is a no-op.
func (c *Controller) startWatchdogLocked() {
	if c.watchdogStop != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.watchdogStop = cancel

	go func() {
		ticker := time.NewTicker(c.watchdogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.checkCredentialPresence(ctx)
			}
		}
	}()
}

func (c *Controller) stopWatchdogLocked() {
	if c.watchdogStop != nil {
		c.watchdogStop()
		c.watchdogStop = nil
	}
}

// checkCredentialPresence detects silent logout: the credential vanishing
// from the store (e.g., evicted by a failed renewal elsewhere in the
// process) while the in-memory state still says authenticated.
func (c *Controller) checkCredentialPresence(ctx context.Context) {
	_, err := c.tokens.Access(ctx)
	if !errors.Is(err, token.ErrNoSession) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot.Phase != PhaseAuthenticated {
		return
	}
	slog.Info("credential disappeared from store, publishing logout")
	c.epoch++
	c.applyLocked(Snapshot{Phase: PhaseUnauthenticated})
}
