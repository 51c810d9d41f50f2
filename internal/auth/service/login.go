package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
)

// Login is the authentication state of one session. Observers are notified
// after a change, outside the lock.
type Login struct {
	mu        sync.Mutex
	user      User
	state     domain.LoginState
	observers []func()
}

// OnChanged registers fn to run whenever the user or state changes.
func (l *Login) OnChanged(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Login sets the logged in user. LoggedOut or an invalid user logs out, and
// a disabled account always ends up in the Disabled state.
func (l *Login) Login(ctx context.Context, u User, state domain.LoginState) error {
	if state == domain.LoggedOut || !u.Valid() {
		l.Logout()
		return nil
	}

	status, err := u.Status(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if status == domain.StatusDisabled {
		state = domain.Disabled
	}

	l.mu.Lock()
	changed := !l.user.Equal(u) || l.state != state
	l.user = u
	l.state = state
	observers := l.snapshot(changed)
	l.mu.Unlock()

	notify(observers)
	return nil
}

// Logout clears the session, notifying only if a user was set.
func (l *Login) Logout() {
	l.mu.Lock()
	changed := l.user.Valid()
	l.user = User{}
	l.state = domain.LoggedOut
	observers := l.snapshot(changed)
	l.mu.Unlock()

	notify(observers)
}

// User returns the identified user. It stays set in the Disabled and
// RequiresMfa states.
func (l *Login) User() User {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.user
}

func (l *Login) State() domain.LoginState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LoggedIn is true only for weak and strong logins. A session waiting for
// its second factor is not logged in.
func (l *Login) LoggedIn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.user.Valid() && (l.state == domain.WeakLogin || l.state == domain.StrongLogin)
}

func (l *Login) snapshot(changed bool) []func() {
	if !changed || len(l.observers) == 0 {
		return nil
	}
	out := make([]func(), len(l.observers))
	copy(out, l.observers)
	return out
}

func notify(observers []func()) {
	for _, fn := range observers {
		fn()
	}
}
