package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

const (
	testIssuer   = "http://authkit.test"
	testPassword = "correct horse battery"
	rpRedirect   = "https://rp.example/cb"
)

type sentMail struct {
	to, token string
}

type recordingMailer struct {
	mu       sync.Mutex
	confirms []sentMail
	resets   []sentMail
}

func (m *recordingMailer) SendConfirmMail(_ context.Context, to, _, token, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirms = append(m.confirms, sentMail{to, token})
	return nil
}

func (m *recordingMailer) SendLostPasswordMail(_ context.Context, to, _, token, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, sentMail{to, token})
	return nil
}

func (m *recordingMailer) lastConfirm(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.confirms)
	return m.confirms[len(m.confirms)-1]
}

func (m *recordingMailer) lastReset(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.resets)
	return m.resets[len(m.resets)-1]
}

type testEnv struct {
	router *Router
	server *httptest.Server
	store  *sqlite.Store
	mailer *recordingMailer
	keys   *jwtx.KeyManager

	client       domain.Client
	clientSecret string
}

// newTestEnv serves a fully wired router over an in-memory store. The
// relying party "rp" is registered for client_secret_post.
func newTestEnv(t *testing.T, configure ...func(*service.AuthConfig)) *testEnv {
	t.Helper()
	return newTestEnvWithRouter(t, nil, configure...)
}

// newTestEnvWithRouter is newTestEnv with setup applied to the router
// before its routes are registered.
func newTestEnvWithRouter(t *testing.T, setup func(*Router), configure ...func(*service.AuthConfig)) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.ApplyMigrations())

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    testIssuer,
		NumKeys:   1,
	})
	require.NoError(t, err)

	cfg := service.DefaultAuthConfig()
	cfg.BaseURL = testIssuer
	cfg.EmailVerificationEnabled = true
	for _, fn := range configure {
		fn(&cfg)
	}

	mailer := &recordingMailer{}
	auth := service.NewAuthService(cfg, mailer, nil)
	passwords := &service.PasswordService{
		Verifier: service.NewPasswordVerifier(cryptox.BCrypt{Cost: 4}),
		Throttle: &service.AuthThrottle{},
		Strength: &service.StrengthValidator{},
	}
	secretHash := cryptox.BCrypt{Cost: 4}
	clients := &service.ClientService{Store: db, SecretHash: secretHash}

	rp, secret, err := clients.CreateClient(ctx, service.NewClient{
		ClientID:     "rp",
		Name:         "relying party",
		RedirectURIs: []string{rpRedirect},
		Confidential: true,
		AuthMethod:   domain.RequestBodyParameter,
	})
	require.NoError(t, err)

	r := NewRouter(keys, testIssuer, "test", db, slogx.Discard())
	r.Limits = httpx.RateLimits{
		Strict:   httpx.RateLimitConfig{Requests: 1000, Window: time.Minute, Burst: 1000},
		Moderate: httpx.RateLimitConfig{Requests: 1000, Window: time.Minute, Burst: 1000},
		Public:   httpx.RateLimitConfig{Requests: 1000, Window: time.Minute, Burst: 1000},
	}
	r.AuthService = auth
	r.PasswordService = passwords
	r.RegistrationService = &service.RegistrationService{Auth: auth, Passwords: passwords}
	r.MFAService = &service.MFAService{Issuer: "authkit"}
	r.AuthorizeService = &service.AuthorizeService{Store: db}
	r.TokenService = &service.TokenService{Store: db, KeyManager: keys, Issuer: testIssuer, SecretHash: secretHash}
	r.UserInfoService = &service.UserInfoService{Store: db}
	if setup != nil {
		setup(r)
	}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{
		router:       r,
		server:       srv,
		store:        db,
		mailer:       mailer,
		keys:         keys,
		client:       rp,
		clientSecret: secret,
	}
}

// browser returns a client with its own cookie jar that does not follow
// redirects.
func (e *testEnv) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) get(t *testing.T, c *http.Client, path string) *http.Response {
	t.Helper()
	resp, err := c.Get(e.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) post(t *testing.T, c *http.Client, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(e.server.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) postJSON(t *testing.T, c *http.Client, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := c.Post(e.server.URL+path, "application/json", strings.NewReader(string(raw)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// register creates loginName through the API in a fresh browser and returns
// that logged in browser.
func (e *testEnv) register(t *testing.T, loginName, email string) *http.Client {
	t.Helper()
	c := e.browser(t)
	resp := e.post(t, c, "/v1/auth/register", url.Values{
		"login_name": {loginName},
		"email":      {email},
		"password":   {testPassword},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return c
}

func (e *testEnv) session(t *testing.T, c *http.Client) authsdk.SessionResponse {
	t.Helper()
	resp := e.get(t, c, "/v1/auth/session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[authsdk.SessionResponse](t, resp)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func cookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
