package platformapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokens scripts the TokenProvider side of the transport.
type fakeTokens struct {
	mu         sync.Mutex
	access     string
	renewErr   error
	renewCalls int
	renewTo    string
}

func (f *fakeTokens) Access(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access, nil
}

func (f *fakeTokens) Renew(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renewCalls++
	if f.renewErr != nil {
		return f.renewErr
	}
	f.access = f.renewTo
	return nil
}

func TestTransportAttachesBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer acc-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewTransport(&fakeTokens{access: "acc-1"}, nil)}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransportRenewsOnceAndRetriesOnce(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		seen = append(seen, auth)
		if auth != "Bearer acc-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"title":"hello"}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	tokens := &fakeTokens{access: "acc-1", renewTo: "acc-2"}
	client := &http.Client{Transport: NewTransport(tokens, nil)}

	resp, err := client.Post(server.URL+"/posts", "application/json", strings.NewReader(`{"title":"hello"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, tokens.renewCalls)
	assert.Equal(t, []string{"Bearer acc-1", "Bearer acc-2"}, seen)
}

func TestTransportRenewalFailureIsTerminal(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &fakeTokens{access: "acc-1", renewErr: errors.New("renewal token rejected")}
	client := &http.Client{Transport: NewTransport(tokens, nil)}

	_, err := client.Get(server.URL) //nolint:bodyclose // error path returns no body
	require.Error(t, err)
	assert.Equal(t, 1, tokens.renewCalls)
	assert.Equal(t, 1, requests)
}

func TestTransportNoRetryLoopOnPersistentRejection(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &fakeTokens{access: "acc-1", renewTo: "acc-2"}
	client := &http.Client{Transport: NewTransport(tokens, nil)}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	// Renewed once, retried once, then the rejection is surfaced as-is.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, tokens.renewCalls)
	assert.Equal(t, 2, requests)
}

func TestTransportPassesThroughNonAuthStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	tokens := &fakeTokens{access: "acc-1", renewTo: "acc-2"}
	client := &http.Client{Transport: NewTransport(tokens, nil)}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, tokens.renewCalls)
}
