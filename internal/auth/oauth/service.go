package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/metrics"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// maxResponseSize caps token and userinfo bodies read from a provider.
const maxResponseSize = 10 * 1024

// IdentityFetcher turns an access token into the user's identity at the
// provider.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, s *Service, token domain.OAuthAccessToken) (domain.Identity, error)
}

// Service is the relying-party side of one provider. It is safe for
// concurrent use; per-login state lives in a Process.
type Service struct {
	cfg     Config
	client  *http.Client
	fetcher IdentityFetcher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService validates cfg. A nil fetcher uses OidcFetcher.
func NewService(cfg Config, fetcher IdentityFetcher, m *metrics.Metrics) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		fetcher = OidcFetcher{}
	}
	return &Service{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		fetcher: fetcher,
		metrics: m,
		now:     time.Now,
	}, nil
}

// NewGoogleService configures a service with the Google presets.
func NewGoogleService(clientID, clientSecret, redirect, stateSecret string, m *metrics.Metrics) (*Service, error) {
	return NewService(GoogleConfig(clientID, clientSecret, redirect, stateSecret), GoogleFetcher{}, m)
}

// NewFacebookService configures a service with the Facebook presets.
func NewFacebookService(appID, appSecret, redirect, stateSecret string, m *metrics.Metrics) (*Service, error) {
	return NewService(FacebookConfig(appID, appSecret, redirect, stateSecret), FacebookFetcher{}, m)
}

func (s *Service) Name() string   { return s.cfg.Name }
func (s *Service) Config() Config { return s.cfg }

// SetHTTPClient replaces the client used for outbound calls.
func (s *Service) SetHTTPClient(c *http.Client) { s.client = c }

func (s *Service) EncodeState(url string) string   { return EncodeState(s.cfg.StateSecret, url) }
func (s *Service) DecodeState(state string) string { return DecodeState(s.cfg.StateSecret, state) }

// NewProcess starts a flow for scope, or the configured scope when empty.
func (s *Service) NewProcess(scope string) *Process {
	if scope == "" {
		scope = s.cfg.Scope
	}
	return &Process{svc: s, scope: scope}
}

// AuthorizationURL is where the browser goes to ask the user for consent.
func (s *Service) AuthorizationURL(scope, state string) string {
	return httpx.AppendQuery(s.cfg.AuthorizationEndpoint, url.Values{
		"client_id":     {s.cfg.ClientID},
		"redirect_uri":  {s.cfg.RedirectEndpoint},
		"scope":         {scope},
		"response_type": {"code"},
		"state":         {state},
	})
}

// RequestToken exchanges code at the token endpoint.
func (s *Service) RequestToken(ctx context.Context, code string) (domain.OAuthAccessToken, error) {
	start := time.Now()
	defer s.metrics.ObserveOAuthCall(s.cfg.Name, "token", start)

	req, err := s.tokenRequest(ctx, code)
	if err != nil {
		return domain.OAuthAccessToken{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.OAuthAccessToken{}, fmt.Errorf("oauth %s: token request: %w", s.cfg.Name, err)
	}
	defer resp.Body.Close()

	token, err := parseTokenResponse(resp, s.now())
	if err != nil {
		slogx.FromContext(ctx).Warn("oauth token request failed", "provider", s.cfg.Name, "status", resp.StatusCode, "error", err)
		return domain.OAuthAccessToken{}, err
	}
	return token, nil
}

func (s *Service) tokenRequest(ctx context.Context, code string) (*http.Request, error) {
	params := url.Values{
		"grant_type":   {"authorization_code"},
		"redirect_uri": {s.cfg.RedirectEndpoint},
		"code":         {code},
	}

	endpoint := s.cfg.TokenEndpoint
	switch s.cfg.ClientSecretMethod {
	case domain.PlainURLParameter:
		endpoint = httpx.AppendQuery(endpoint, url.Values{
			"client_id":     {s.cfg.ClientID},
			"client_secret": {s.cfg.ClientSecret},
		})
	case domain.RequestBodyParameter:
		params.Set("client_id", s.cfg.ClientID)
		params.Set("client_secret", s.cfg.ClientSecret)
	}

	var req *http.Request
	var err error
	if s.cfg.TokenRequestMethod == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, httpx.AppendQuery(endpoint, params), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("oauth %s: %w", s.cfg.Name, err)
	}

	if s.cfg.ClientSecretMethod == domain.HTTPAuthorizationHeader {
		req.SetBasicAuth(url.QueryEscape(s.cfg.ClientID), url.QueryEscape(s.cfg.ClientSecret))
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// FetchIdentity asks the configured fetcher who owns token.
func (s *Service) FetchIdentity(ctx context.Context, token domain.OAuthAccessToken) (domain.Identity, error) {
	start := time.Now()
	defer s.metrics.ObserveOAuthCall(s.cfg.Name, "identity", start)

	id, err := s.fetcher.FetchIdentity(ctx, s, token)
	if err != nil {
		return domain.Identity{}, err
	}
	id.Provider = s.cfg.Name
	if !id.Valid() {
		return domain.Identity{}, fmt.Errorf("oauth %s: %w", s.cfg.Name, ErrNoIdentity)
	}
	return id, nil
}

var ErrNoIdentity = errors.New("provider returned no subject")

// get performs an authenticated GET and returns at most maxResponseSize
// bytes of a 200 response.
func (s *Service) get(ctx context.Context, endpoint string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("oauth %s: %w", s.cfg.Name, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth %s: %w", s.cfg.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("oauth %s: read response: %w", s.cfg.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth %s: %s returned %d", s.cfg.Name, endpoint, resp.StatusCode)
	}
	return body, nil
}
