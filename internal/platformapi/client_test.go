package platformapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginDirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body["email"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  "acc-1",
			"refreshToken": "ren-1",
			"user":         map[string]string{"id": "u1", "displayName": "Ada"},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	result, err := client.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.False(t, result.RequiresSecondFactor)
	assert.Equal(t, "acc-1", result.Credential.AccessToken)
	assert.Equal(t, "ren-1", result.Credential.RefreshToken)
	require.NotNil(t, result.User)
	assert.Equal(t, "Ada", result.User.DisplayName)
}

func TestLoginSecondFactorFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"requiresSecondFactor": true,
				"transactionId":        "txn-42",
			})
		case "/auth/verify-second-factor":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "txn-42", body["transactionId"])
			assert.Equal(t, "123456", body["code"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"accessToken": "acc-1",
				"user":        map[string]string{"id": "u1"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	ctx := context.Background()
	result, err := client.Login(ctx, "ada@example.com", "pw")
	require.NoError(t, err)
	require.True(t, result.RequiresSecondFactor)

	verified, err := client.VerifySecondFactor(ctx, result.TransactionID, "123456")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", verified.Credential.AccessToken)
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantAccess string
	}{
		{
			name:       "rotated pair",
			status:     http.StatusOK,
			body:       `{"accessToken":"acc-2","refreshToken":"ren-2"}`,
			wantAccess: "acc-2",
		},
		{
			name:       "access only",
			status:     http.StatusOK,
			body:       `{"accessToken":"acc-2"}`,
			wantAccess: "acc-2",
		},
		{
			name:    "renewal token rejected",
			status:  http.StatusUnauthorized,
			body:    `{"error":"invalid_grant"}`,
			wantErr: ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/auth/refresh", r.URL.Path)
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "ren-1", body["refreshToken"])
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(server.URL)
			require.NoError(t, err)

			cred, err := client.Refresh(context.Background(), "ren-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAccess, cred.AccessToken)
		})
	}
}

func TestRefreshMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	_, err = client.Refresh(context.Background(), "ren-1")
	require.Error(t, err)
}

func TestMe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer acc-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]string{"id": "u1", "displayName": "Ada", "role": "member"},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	user, err := client.Me(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "member", user.Role)
}

func TestMeUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	_, err = client.Me(context.Background(), "acc-stale")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutAndRevokeAllStatusOnly(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		require.Equal(t, "Bearer acc-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Logout(ctx, "acc-1"))
	require.NoError(t, client.RevokeAll(ctx, "acc-1"))
	assert.Equal(t, []string{"/auth/logout", "/auth/revoke-all-tokens"}, paths)
}

func TestClientTimeoutBoundsCalls(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(server.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Refresh(context.Background(), "ren-1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestForbiddenIsNotAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	_, err = client.Me(context.Background(), "acc-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
