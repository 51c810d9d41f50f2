package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/oauth"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
)

const (
	SessionCookie  = "authkit_session"
	RememberCookie = "authkit_remember"

	DefaultSessionTTL = 24 * time.Hour
)

// Session is the server side state behind a session cookie.
type Session struct {
	ID    string
	Login *service.Login

	mu       sync.Mutex
	lastSeen time.Time
	oauth    map[string]*oauth.Process
}

// startOAuth remembers p as the pending flow for provider, cancelling the
// one it replaces.
func (s *Session) startOAuth(provider string, p *oauth.Process) {
	s.mu.Lock()
	prev := s.oauth[provider]
	s.oauth[provider] = p
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
}

// takeOAuth returns and forgets the pending flow for provider.
func (s *Session) takeOAuth(provider string) *oauth.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.oauth[provider]
	delete(s.oauth, provider)
	return p
}

// SessionStore keeps sessions in memory. Idle sessions expire after TTL.
type SessionStore struct {
	TTL          time.Duration
	SecureCookie bool

	mu          sync.Mutex
	sessions    map[string]*Session
	lastCleanup time.Time
	now         func() time.Time
}

func NewSessionStore(ttl time.Duration, secure bool) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		TTL:          ttl,
		SecureCookie: secure,
		sessions:     make(map[string]*Session),
		lastCleanup:  time.Now(),
		now:          time.Now,
	}
}

// Get returns the live session named by the request cookie.
func (st *SessionStore) Get(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}

	now := st.now()
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[c.Value]
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastSeen) > st.TTL {
		delete(st.sessions, c.Value)
		return nil, false
	}
	s.lastSeen = now
	return s, true
}

// Ensure returns the request's session, starting a new one and setting its
// cookie when there is none.
func (st *SessionStore) Ensure(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if s, ok := st.Get(r); ok {
		return s, nil
	}

	id, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:       id,
		Login:    &service.Login{},
		lastSeen: st.now(),
		oauth:    make(map[string]*oauth.Process),
	}

	st.mu.Lock()
	st.sessions[id] = s
	st.sweepLocked()
	st.mu.Unlock()

	st.setCookie(w, SessionCookie, id, 0)
	return s, nil
}

// Destroy forgets the request's session and clears its cookie.
func (st *SessionStore) Destroy(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		st.mu.Lock()
		delete(st.sessions, c.Value)
		st.mu.Unlock()
	}
	st.setCookie(w, SessionCookie, "", -1)
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// sweepLocked drops idle sessions at most once per TTL.
func (st *SessionStore) sweepLocked() {
	now := st.now()
	if now.Sub(st.lastCleanup) < st.TTL {
		return
	}
	st.lastCleanup = now
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastSeen) > st.TTL
		s.mu.Unlock()
		if idle {
			delete(st.sessions, id)
		}
	}
}

// setCookie writes an HttpOnly cookie. maxAge 0 makes a browser session
// cookie and a negative maxAge deletes it.
func (st *SessionStore) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   st.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

type sessionKey struct{}

func withSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by the router.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
