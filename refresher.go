package apiexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Refresher exchanges a refresh token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, current AuthSession) (AuthSession, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, current AuthSession) (AuthSession, error)

func (f RefresherFunc) Refresh(ctx context.Context, current AuthSession) (AuthSession, error) {
	return f(ctx, current)
}

// DefaultRefreshPath is the refresh endpoint of the console API.
const DefaultRefreshPath = "/api/auth/refresh-token"

var _ Refresher = (*HTTPRefresher)(nil)

// HTTPRefresher calls the console API refresh endpoint, which takes the
// current token pair and answers with a new pair inside the usual envelope.
type HTTPRefresher struct {
	BaseURL    string
	Path       string
	HTTPClient *http.Client
	// Headers are added to every refresh request (tenant, API key, ...).
	Headers http.Header
}

type refreshRequest struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken"`
}

type refreshData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (r *HTTPRefresher) Refresh(ctx context.Context, current AuthSession) (AuthSession, error) {
	payload, err := json.Marshal(refreshRequest{
		AccessToken:  current.AccessToken,
		RefreshToken: current.RefreshToken,
	})
	if err != nil {
		return AuthSession{}, fmt.Errorf("marshaling refresh payload: %w", err)
	}

	path := r.Path
	if path == "" {
		path = DefaultRefreshPath
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(r.BaseURL, path), bytes.NewReader(payload))
	if err != nil {
		return AuthSession{}, fmt.Errorf("creating refresh request: %w", err)
	}
	for k, vs := range r.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return AuthSession{}, Classify(0, nil, err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AuthSession{}, Classify(0, nil, err)
	}
	if cerr := Classify(resp.StatusCode, body, nil); cerr != nil {
		return AuthSession{}, cerr
	}

	env, ok := decodeEnvelope(body)
	if !ok {
		return AuthSession{}, &Error{Kind: KindUnknown, Message: "refresh answered without envelope", StatusCode: resp.StatusCode}
	}
	var data refreshData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return AuthSession{}, &Error{Kind: KindUnknown, Message: "decoding refresh data", Cause: err}
	}
	if data.AccessToken == "" {
		return AuthSession{}, &Error{Kind: KindUnknown, Message: "refresh answered without access token"}
	}
	if data.RefreshToken == "" {
		// the server may keep the refresh token unrotated
		data.RefreshToken = current.RefreshToken
	}
	return AuthSession{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		Tenant:       current.Tenant,
	}, nil
}

var _ Refresher = (*OAuth2Refresher)(nil)

// OAuth2Refresher refreshes against a standard OAuth 2.0 token endpoint
// (grant_type=refresh_token) for deployments fronted by an identity provider.
type OAuth2Refresher struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, current AuthSession) (AuthSession, error) {
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	// an already expired token forces the source to hit the token endpoint
	src := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			classified := Classify(rerr.Response.StatusCode, rerr.Body, nil)
			if classified == nil || classified.Kind == KindValidation {
				classified = &Error{Kind: KindUnknown, Message: "token endpoint rejected refresh", StatusCode: rerr.Response.StatusCode}
			}
			classified.Cause = err
			return AuthSession{}, classified
		}
		return AuthSession{}, Classify(0, nil, err)
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = current.RefreshToken
	}
	return AuthSession{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		Tenant:       current.Tenant,
	}, nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
