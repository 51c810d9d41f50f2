package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func newTestUser(t *testing.T, db *sqlite.Store, loginName string) User {
	t.Helper()
	ctx := context.Background()
	id, err := db.Users().RegisterNew(ctx)
	require.NoError(t, err)
	u := NewUser(db, id)
	require.NoError(t, u.AddIdentity(ctx, domain.ProviderLoginName, loginName))
	return u
}

func newTestVerifier() *PasswordVerifier {
	return NewPasswordVerifier(cryptox.BCrypt{Cost: 4}, cryptox.MD5{})
}

type sentMail struct {
	to, loginName, token, link string
}

type recordingMailer struct {
	mu       sync.Mutex
	confirms []sentMail
	resets   []sentMail
}

func (m *recordingMailer) SendConfirmMail(_ context.Context, to, loginName, token, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirms = append(m.confirms, sentMail{to, loginName, token, link})
	return nil
}

func (m *recordingMailer) SendLostPasswordMail(_ context.Context, to, loginName, token, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, sentMail{to, loginName, token, link})
	return nil
}
