package platformapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// TokenProvider supplies the bearer credential for outbound requests and
// renews it when the server rejects it.
type TokenProvider interface {
	// Access returns the current access credential.
	Access(ctx context.Context) (string, error)

	// Renew exchanges the renewal credential for a fresh access credential,
	// storing it durably before returning.
	Renew(ctx context.Context) error
}

// Transport attaches the bearer credential to every outbound request. On an
// authorization failure it renews the credential exactly once and re-issues
// the request exactly once; a failed renewal is surfaced to the caller as a
// terminal authentication failure. The single retry prevents refresh loops
// on a permanently invalid session.
type Transport struct {
	tokens TokenProvider
	base   http.RoundTripper
}

// Compile-time check that Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)

// NewTransport creates a Transport. A nil base defaults to
// http.DefaultTransport.
func NewTransport(tokens TokenProvider, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		tokens: tokens,
		base:   base,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	access, err := t.tokens.Access(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading access credential: %w", err)
	}

	resp, err := t.send(req, access)
	if err != nil {
		return nil, err
	}
	if !IsAuthFailure(resp.StatusCode) {
		return resp, nil
	}

	// Retrying requires replaying the body; requests without GetBody
	// (streaming uploads) cannot be re-issued safely.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}
	_ = resp.Body.Close()

	slog.DebugContext(ctx, "access credential rejected, renewing", "path", req.URL.Path)
	if err := t.tokens.Renew(ctx); err != nil {
		return nil, fmt.Errorf("renewing credential after rejected request: %w", err)
	}

	access, err = t.tokens.Access(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading renewed access credential: %w", err)
	}
	return t.send(req, access)
}

// send issues one attempt with its own cloned request, so the retry starts
// from pristine headers and body.
func (t *Transport) send(req *http.Request, access string) (*http.Response, error) {
	attempt := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replaying request body: %w", err)
		}
		attempt.Body = body
	}
	attempt.Header.Set("Authorization", "Bearer "+access)
	attempt.Header.Set("X-Request-Id", uuid.NewString())

	return t.base.RoundTrip(attempt)
}
