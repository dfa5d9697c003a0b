// Package app wires the session lifecycle components together: credential
// store, legacy migrator, token manager, platform client, and session
// controller.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/florianilch/commons-cli/internal/credstore"
	"github.com/florianilch/commons-cli/internal/migrate"
	"github.com/florianilch/commons-cli/internal/platformapi"
	"github.com/florianilch/commons-cli/internal/session"
	"github.com/florianilch/commons-cli/internal/token"
)

// App holds the assembled session subsystem.
type App struct {
	cfg *Config

	Store    credstore.Store
	API      *platformapi.Client
	Tokens   *token.Manager
	Migrator *migrate.Migrator
	Sessions *session.Controller

	// HTTPClient carries the bearer credential and the renew-once retry
	// policy; all non-auth platform calls go through it.
	HTTPClient *http.Client
}

// New creates an App instance. Storage unavailability degrades to an
// in-memory store rather than failing: the session then lives only as long
// as the process.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ns, err := cfg.Namespace()
	if err != nil {
		return nil, fmt.Errorf("building storage namespace: %w", err)
	}

	store, err := cfg.Storage.NewStore(ns)
	if err != nil {
		slog.Warn("credential storage unavailable, session will not survive restart", "backend", cfg.Storage.Backend, "error", err)
		store = credstore.NewMemStore()
	}

	api, err := platformapi.NewClient(cfg.Platform.BaseURL, platformapi.WithTimeout(cfg.Platform.Timeout))
	if err != nil {
		return nil, fmt.Errorf("creating platform client: %w", err)
	}

	resolver, err := newAssetResolver(cfg.Platform.AssetBaseURL)
	if err != nil {
		return nil, fmt.Errorf("building asset resolver: %w", err)
	}

	tokens, err := token.NewManager(store, ns, api, resolver)
	if err != nil {
		return nil, fmt.Errorf("creating token manager: %w", err)
	}

	migrator, err := migrate.New(store, ns, token.DurableKeys())
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}

	sessions, err := session.New(tokens, api, migrator,
		session.WithWatchdogInterval(cfg.Session.WatchdogInterval))
	if err != nil {
		return nil, fmt.Errorf("creating session controller: %w", err)
	}

	return &App{
		cfg:      cfg,
		Store:    store,
		API:      api,
		Tokens:   tokens,
		Migrator: migrator,
		Sessions: sessions,
		HTTPClient: &http.Client{
			Transport: platformapi.NewTransport(tokens, nil),
			Timeout:   cfg.Platform.Timeout,
		},
	}, nil
}

// Bootstrap resolves the initial session state (optimistic when cached data
// exists, synchronous otherwise).
func (a *App) Bootstrap(ctx context.Context) {
	a.Sessions.Bootstrap(ctx)
}

// Close stops background session tasks.
func (a *App) Close() {
	a.Sessions.Close()
}

// newAssetResolver maps relative and legacy-host resource URLs to the
// current asset host. Absolute URLs on unknown hosts pass through
// untouched.
func newAssetResolver(assetBaseURL string) (token.Resolver, error) {
	base, err := url.Parse(assetBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid asset base URL: %w", err)
	}

	return func(raw string) string {
		if raw == "" {
			return raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return raw
		}
		if u.Host == "" {
			return base.ResolveReference(u).String()
		}
		for _, host := range legacyAssetHosts {
			if u.Host == host {
				u.Scheme = base.Scheme
				u.Host = base.Host
				return u.String()
			}
		}
		return raw
	}, nil
}
