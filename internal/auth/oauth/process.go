package oauth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// ProcessState tracks one authorization flow.
type ProcessState int

const (
	Idle ProcessState = iota
	AwaitingRedirect
	AwaitingToken
	Authorized
	AwaitingIdentity
	Authenticated
	Failed
)

func (s ProcessState) String() string {
	switch s {
	case AwaitingRedirect:
		return "awaiting_redirect"
	case AwaitingToken:
		return "awaiting_token"
	case Authorized:
		return "authorized"
	case AwaitingIdentity:
		return "awaiting_identity"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Error codes reported by Process.Error besides those sent by the provider.
const (
	ErrCodeInvalidState    = "invalid-state"
	ErrCodeMissingCode     = "missing-code"
	ErrCodeRedirectTimeout = "redirect-timeout"
	ErrCodeCancelled       = "cancelled"
	ErrCodeIdentity        = "identity"
)

var ErrNotAwaitingRedirect = errors.New("oauth process is not awaiting a redirect")

// Process is a single authorize (and optionally authenticate) flow. Each
// registered callback runs exactly once, with the invalid token or identity
// when the flow fails.
type Process struct {
	svc   *Service
	scope string

	mu           sync.Mutex
	state        ProcessState
	authenticate bool
	stateParam   string
	returnURL    string
	started      time.Time
	token        domain.OAuthAccessToken
	identity     domain.Identity
	err          string

	onAuthorized    []func(domain.OAuthAccessToken)
	onAuthenticated []func(domain.Identity)
	authorizedDone  bool
	authDone        bool
}

func (p *Process) Service() *Service { return p.svc }
func (p *Process) Scope() string     { return p.scope }

// OnAuthorized registers fn for the outcome of the token request.
func (p *Process) OnAuthorized(fn func(domain.OAuthAccessToken)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAuthorized = append(p.onAuthorized, fn)
}

// OnAuthenticated registers fn for the outcome of identity retrieval.
func (p *Process) OnAuthenticated(fn func(domain.Identity)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAuthenticated = append(p.onAuthenticated, fn)
}

// StartAuthorize returns the provider URL to redirect to. returnURL is
// carried in the state and handed back by ReturnURL after the redirect.
func (p *Process) StartAuthorize(returnURL string) string {
	return p.start(returnURL, false)
}

// StartAuthenticate is StartAuthorize followed by identity retrieval.
func (p *Process) StartAuthenticate(returnURL string) string {
	return p.start(returnURL, true)
}

func (p *Process) start(returnURL string, authenticate bool) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = AwaitingRedirect
	p.authenticate = authenticate
	p.returnURL = returnURL
	p.stateParam = p.svc.EncodeState(returnURL)
	p.started = p.svc.now()
	p.err = ""
	p.token = domain.OAuthAccessToken{}
	p.identity = domain.Identity{}
	p.authorizedDone = false
	p.authDone = false

	return p.svc.AuthorizationURL(p.scope, p.stateParam)
}

// HandleRedirect consumes the provider's callback query and runs the rest
// of the flow. Failures are reported through Error and the callbacks; the
// returned error only signals a call in the wrong state.
func (p *Process) HandleRedirect(ctx context.Context, query url.Values) error {
	l := slogx.FromContext(ctx).With("provider", p.svc.Name())

	p.mu.Lock()
	if p.state != AwaitingRedirect {
		p.mu.Unlock()
		return ErrNotAwaitingRedirect
	}
	expected, started, returnURL := p.stateParam, p.started, p.returnURL
	p.mu.Unlock()

	switch {
	case query.Get("state") != expected || p.svc.DecodeState(query.Get("state")) != returnURL:
		l.Warn("oauth redirect with invalid state")
		p.fail(ErrCodeInvalidState)
		return nil
	case p.svc.now().Sub(started) > p.svc.cfg.RedirectTimeout:
		p.fail(ErrCodeRedirectTimeout)
		return nil
	case query.Get("error") != "":
		l.Info("oauth provider returned error", "error", query.Get("error"))
		p.fail(query.Get("error"))
		return nil
	case query.Get("code") == "":
		p.fail(ErrCodeMissingCode)
		return nil
	}

	p.setState(AwaitingToken)
	token, err := p.svc.RequestToken(ctx, query.Get("code"))
	if err != nil {
		var te *TokenError
		if errors.As(err, &te) {
			p.fail(te.Code)
		} else {
			p.fail(ErrCodeBadResponse)
		}
		return nil
	}
	p.svc.metrics.OAuthExchange(p.svc.Name(), "authorized")

	p.mu.Lock()
	p.token = token
	p.state = Authorized
	authenticate := p.authenticate
	p.mu.Unlock()
	p.fireAuthorized(token)

	if !authenticate {
		return nil
	}

	p.setState(AwaitingIdentity)
	id, err := p.svc.FetchIdentity(ctx, token)
	if err != nil {
		l.Warn("oauth identity lookup failed", "error", err)
		p.fail(ErrCodeIdentity)
		return nil
	}
	p.svc.metrics.OAuthExchange(p.svc.Name(), "authenticated")

	p.mu.Lock()
	p.identity = id
	p.state = Authenticated
	p.mu.Unlock()
	p.fireAuthenticated(id)
	return nil
}

// Cancel fails a flow that has not completed.
func (p *Process) Cancel() {
	p.mu.Lock()
	active := p.state != Idle && p.state != Authenticated && p.state != Failed &&
		!(p.state == Authorized && !p.authenticate)
	p.mu.Unlock()
	if active {
		p.fail(ErrCodeCancelled)
	}
}

func (p *Process) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Error is the failure code, empty unless State is Failed.
func (p *Process) Error() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Process) Token() domain.OAuthAccessToken {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *Process) Identity() domain.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

func (p *Process) ReturnURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.returnURL
}

func (p *Process) setState(s ProcessState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Process) fail(code string) {
	p.mu.Lock()
	p.state = Failed
	p.err = code
	authenticate := p.authenticate
	p.mu.Unlock()

	p.svc.metrics.OAuthExchange(p.svc.Name(), "failed")
	p.fireAuthorized(domain.OAuthAccessToken{})
	if authenticate {
		p.fireAuthenticated(domain.Identity{})
	}
}

func (p *Process) fireAuthorized(t domain.OAuthAccessToken) {
	p.mu.Lock()
	if p.authorizedDone {
		p.mu.Unlock()
		return
	}
	p.authorizedDone = true
	fns := append([]func(domain.OAuthAccessToken){}, p.onAuthorized...)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}

func (p *Process) fireAuthenticated(id domain.Identity) {
	p.mu.Lock()
	if p.authDone {
		p.mu.Unlock()
		return
	}
	p.authDone = true
	fns := append([]func(domain.Identity){}, p.onAuthenticated...)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}
