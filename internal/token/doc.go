// Package token owns the durable credential records: the access token, the
// renewal token, and the cached profile snapshot.
//
// The Manager is the only component that writes credential keys. Renewal is
// fail-closed: any failure to exchange the renewal token (explicit
// rejection, network error, timeout) clears the stored credentials rather
// than leaving a possibly-stale renewal token behind for repeated failed
// exchanges. Concurrent renewal attempts are coalesced into a single
// in-flight exchange shared by all callers.
package token
