package apiexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestHTTPRefresher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/refresh-token", r.URL.Path)
		assert.Equal(t, "acme", r.Header.Get(HeaderTenant))
		assert.Equal(t, "application/json", r.Header.Get(HeaderContentType))

		var req refreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "old-access", req.AccessToken)
		assert.Equal(t, "old-refresh", req.RefreshToken)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"succeeded":true,"data":{"accessToken":"new-access","refreshToken":"new-refresh"}}`))
	}))
	defer server.Close()

	r := &HTTPRefresher{
		BaseURL: server.URL + "/",
		Headers: http.Header{HeaderTenant: {"acme"}},
	}
	got, err := r.Refresh(context.Background(), AuthSession{AccessToken: "old-access", RefreshToken: "old-refresh", Tenant: "t1"})
	require.NoError(t, err)
	assert.Equal(t, AuthSession{AccessToken: "new-access", RefreshToken: "new-refresh", Tenant: "t1"}, got)
}

func TestHTTPRefresherKeepsUnrotatedRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"succeeded":true,"data":{"accessToken":"new-access"}}`))
	}))
	defer server.Close()

	got, err := (&HTTPRefresher{BaseURL: server.URL}).Refresh(context.Background(), AuthSession{RefreshToken: "keep-me"})
	require.NoError(t, err)
	assert.Equal(t, "keep-me", got.RefreshToken)
}

func TestHTTPRefresherFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{"rejected refresh token", http.StatusUnauthorized, `{"succeeded":false,"messages":["invalid refresh token"]}`, KindAuth},
		{"server down", http.StatusServiceUnavailable, ``, KindTransient},
		{"no envelope", http.StatusOK, `{"token":"x"}`, KindUnknown},
		{"no access token", http.StatusOK, `{"succeeded":true,"data":{}}`, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := (&HTTPRefresher{BaseURL: server.URL}).Refresh(context.Background(), AuthSession{RefreshToken: "r"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestOAuth2Refresher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("refresh_token") != "good-refresh" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"oauth-access","token_type":"Bearer","expires_in":3600,"refresh_token":"oauth-refresh"}`))
	}))
	defer server.Close()

	r := &OAuth2Refresher{
		Config: &oauth2.Config{
			ClientID: "console",
			Endpoint: oauth2.Endpoint{TokenURL: server.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
		},
		HTTPClient: server.Client(),
	}

	got, err := r.Refresh(context.Background(), AuthSession{RefreshToken: "good-refresh", Tenant: "acme"})
	require.NoError(t, err)
	assert.Equal(t, AuthSession{AccessToken: "oauth-access", RefreshToken: "oauth-refresh", Tenant: "acme"}, got)

	_, err = r.Refresh(context.Background(), AuthSession{RefreshToken: "revoked"})
	require.Error(t, err)
	assert.Equal(t, KindUnknown, KindOf(err), "a rejected grant is terminal")
}

func TestRefresherFunc(t *testing.T) {
	var f Refresher = RefresherFunc(func(ctx context.Context, current AuthSession) (AuthSession, error) {
		return AuthSession{AccessToken: "x", RefreshToken: current.RefreshToken}, nil
	})
	got, err := f.Refresh(context.Background(), AuthSession{RefreshToken: "r"})
	require.NoError(t, err)
	assert.Equal(t, "r", got.RefreshToken)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://h/api/x", joinURL("http://h/", "/api/x"))
	assert.Equal(t, "http://h/api/x", joinURL("http://h", "api/x"))
}
