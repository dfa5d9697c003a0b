// Package platformapi is the HTTP client for the Commons platform auth
// endpoints, plus the authenticated transport used for all other outbound
// calls.
//
// The auth endpoints exchange JSON bodies. A 401-class response from the
// refresh endpoint means the renewal token itself is invalid; a 401-class
// response from any bearer-authenticated endpoint is surfaced as
// ErrUnauthorized so callers can renew and retry.
//
// # Authenticated Transport
//
// Transport implements http.RoundTripper and attaches the bearer
// credential to every request:
//
//	client := &http.Client{Transport: platformapi.NewTransport(manager, nil)}
//
// On an authorization failure the transport renews the credential exactly
// once and re-issues the request exactly once; if renewal fails, the
// failure is terminal for the caller.
package platformapi
