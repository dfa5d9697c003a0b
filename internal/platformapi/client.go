package platformapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnauthorized indicates a 401-class response: the presented credential
// (access or renewal token) was explicitly rejected by the server.
var ErrUnauthorized = errors.New("platformapi: unauthorized")

// DefaultTimeout bounds every auth endpoint call. A timed-out renewal is
// treated as renewal failure by the caller (fail-closed).
const DefaultTimeout = 10 * time.Second

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-call timeout for auth endpoint requests.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPTransport sets a custom base transport (e.g., for proxies or tests).
func WithHTTPTransport(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = transport
	}
}

// Client calls the Commons platform auth endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login starts a credential-issuing flow. The result may demand a second
// factor, in which case no credential is issued yet.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var resp loginResponse
	err := c.post(ctx, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resultFromLoginResponse(&resp), nil
}

// VerifySecondFactor completes a login that demanded a second factor.
func (c *Client) VerifySecondFactor(ctx context.Context, transactionID, code string) (*LoginResult, error) {
	var resp loginResponse
	err := c.post(ctx, "/auth/verify-second-factor", "", map[string]string{
		"transactionId": transactionID,
		"code":          code,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resultFromLoginResponse(&resp), nil
}

// Refresh exchanges a renewal token for a fresh credential. Returns
// ErrUnauthorized when the server explicitly rejects the renewal token.
func (c *Client) Refresh(ctx context.Context, renewalToken string) (*Credential, error) {
	var cred Credential
	err := c.post(ctx, "/auth/refresh", "", map[string]string{
		"refreshToken": renewalToken,
	}, &cred)
	if err != nil {
		return nil, err
	}
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access token")
	}
	return &cred, nil
}

// Me fetches the authoritative profile for the bearer of accessToken.
// Returns ErrUnauthorized on a 401-class response.
func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	var resp meResponse
	if err := c.get(ctx, "/auth/me", accessToken, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Logout invalidates the current session server-side. Status-only; callers
// treat failure as best-effort.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/auth/logout", accessToken, struct{}{}, nil)
}

// RevokeAll invalidates every session for the authenticated principal.
func (c *Client) RevokeAll(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/auth/revoke-all-tokens", accessToken, struct{}{}, nil)
}

func resultFromLoginResponse(resp *loginResponse) *LoginResult {
	return &LoginResult{
		RequiresSecondFactor: resp.RequiresSecondFactor,
		TransactionID:        resp.TransactionID,
		Credential: Credential{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
		},
		User: resp.User,
	}
}

// post issues a JSON POST. A nil out skips body decoding (status-only endpoints).
func (c *Client) post(ctx context.Context, path, accessToken string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, accessToken, out)
}

func (c *Client) get(ctx context.Context, path, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, accessToken, out)
}

func (c *Client) do(req *http.Request, accessToken string, out any) error {
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if IsAuthFailure(resp.StatusCode) {
		return fmt.Errorf("%s: %w", req.URL.Path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

// IsAuthFailure reports whether an HTTP status represents an authorization
// failure that should trigger the renew-once-and-retry policy. A 403 is an
// authenticated-but-forbidden outcome and must not evict the session.
func IsAuthFailure(status int) bool {
	return status == http.StatusUnauthorized
}
