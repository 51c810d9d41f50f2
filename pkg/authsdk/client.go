package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type AuthMethod string

const (
	AuthMethodBasic AuthMethod = "client_secret_basic"
	AuthMethodPost  AuthMethod = "client_secret_post"
)

// ClientCredentials identify a registered relying party.
type ClientCredentials struct {
	ID     string
	Secret string
	Method AuthMethod
}

// Client talks to an authkit server on behalf of a relying party.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthorizeURL builds the URL the browser is sent to in order to obtain a code.
func (c *Client) AuthorizeURL(clientID, redirectURI, scope, state string) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"scope":         {scope},
	}
	if state != "" {
		q.Set("state", state)
	}
	return c.BaseURL + "/v1/oauth2/authorize?" + q.Encode()
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, creds ClientCredentials, code, redirectURI string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	if creds.Method == AuthMethodPost {
		form.Set("client_id", creds.ID)
		form.Set("client_secret", creds.Secret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if creds.Method != AuthMethodPost {
		req.SetBasicAuth(url.QueryEscape(creds.ID), url.QueryEscape(creds.Secret))
	}

	var out TokenResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserInfo(ctx context.Context, accessToken string) (*UserInfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/oauth2/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var out UserInfoResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JWKS(ctx context.Context) (*JWKSResponse, error) {
	var out JWKSResponse
	return &out, c.get(ctx, "/.well-known/jwks.json", &out)
}

func (c *Client) Discovery(ctx context.Context) (*DiscoveryResponse, error) {
	var out DiscoveryResponse
	return &out, c.get(ctx, "/.well-known/openid-configuration", &out)
}

func (c *Client) Liveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	return &out, c.get(ctx, "/livez", &out)
}

func (c *Client) Readiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	return &out, c.get(ctx, "/readyz", &out)
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, target)
}

// do sends req and decodes a 200 body into target, or returns *OAuth2Error.
func (c *Client) do(req *http.Request, target any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
