package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/idx"
)

type usersRepo struct{ q querier }

func (r *usersRepo) RegisterNew(ctx context.Context) (string, error) {
	id := idx.New().String()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?, ?)`,
		id, time.Now().UnixMilli())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *usersRepo) FindWithID(ctx context.Context, id string) (string, error) {
	var got string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ?`, id).Scan(&got)
	return got, mapNotFound(err)
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	return expectRow(r.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id))
}

func (r *usersRepo) Status(ctx context.Context, id string) (domain.Status, error) {
	var s int
	err := r.q.QueryRowContext(ctx, `SELECT status FROM users WHERE id = ?`, id).Scan(&s)
	return domain.Status(s), mapNotFound(err)
}

func (r *usersRepo) SetStatus(ctx context.Context, id string, s domain.Status) error {
	return expectRow(r.q.ExecContext(ctx, `UPDATE users SET status = ? WHERE id = ?`, int(s), id))
}

func (r *usersRepo) Password(ctx context.Context, id string) (domain.PasswordHash, error) {
	var h domain.PasswordHash
	err := r.q.QueryRowContext(ctx,
		`SELECT password_function, password_salt, password_hash FROM users WHERE id = ?`, id,
	).Scan(&h.Function, &h.Salt, &h.Value)
	return h, mapNotFound(err)
}

func (r *usersRepo) SetPassword(ctx context.Context, id string, h domain.PasswordHash) error {
	return expectRow(r.q.ExecContext(ctx,
		`UPDATE users SET password_function = ?, password_salt = ?, password_hash = ? WHERE id = ?`,
		h.Function, h.Salt, h.Value, id))
}

func (r *usersRepo) Email(ctx context.Context, id string) (string, error) {
	return r.text(ctx, `SELECT email FROM users WHERE id = ?`, id)
}

func (r *usersRepo) SetEmail(ctx context.Context, id, email string) error {
	return expectRow(r.q.ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, email, id))
}

func (r *usersRepo) UnverifiedEmail(ctx context.Context, id string) (string, error) {
	return r.text(ctx, `SELECT unverified_email FROM users WHERE id = ?`, id)
}

func (r *usersRepo) SetUnverifiedEmail(ctx context.Context, id, email string) error {
	return expectRow(r.q.ExecContext(ctx, `UPDATE users SET unverified_email = ? WHERE id = ?`, email, id))
}

func (r *usersRepo) FindWithEmail(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", store.ErrNotFound
	}
	return r.text(ctx, `SELECT id FROM users WHERE email = ? ORDER BY id LIMIT 1`, email)
}

func (r *usersRepo) EmailToken(ctx context.Context, id string) (domain.Token, domain.EmailTokenRole, error) {
	var (
		hash    string
		expires int64
		role    int
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT email_token_hash, email_token_expires, email_token_role FROM users WHERE id = ?`, id,
	).Scan(&hash, &expires, &role)
	if err != nil {
		return domain.Token{}, 0, mapNotFound(err)
	}
	if hash == "" {
		return domain.Token{}, 0, nil
	}
	return domain.Token{Hash: hash, Expires: fromMillis(expires)}, domain.EmailTokenRole(role), nil
}

func (r *usersRepo) SetEmailToken(ctx context.Context, id string, t domain.Token, role domain.EmailTokenRole) error {
	if t.Empty() {
		return expectRow(r.q.ExecContext(ctx,
			`UPDATE users SET email_token_hash = '', email_token_expires = 0, email_token_role = 0 WHERE id = ?`, id))
	}
	return expectRow(r.q.ExecContext(ctx,
		`UPDATE users SET email_token_hash = ?, email_token_expires = ?, email_token_role = ? WHERE id = ?`,
		t.Hash, toMillis(t.Expires), int(role), id))
}

func (r *usersRepo) FindWithEmailToken(ctx context.Context, hash string) (string, error) {
	if hash == "" {
		return "", store.ErrNotFound
	}
	return r.text(ctx, `SELECT id FROM users WHERE email_token_hash = ? LIMIT 1`, hash)
}

func (r *usersRepo) FailedLoginAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT failed_login_attempts FROM users WHERE id = ?`, id).Scan(&n)
	return n, mapNotFound(err)
}

func (r *usersRepo) SetFailedLoginAttempts(ctx context.Context, id string, n int) error {
	return expectRow(r.q.ExecContext(ctx, `UPDATE users SET failed_login_attempts = ? WHERE id = ?`, n, id))
}

// LastLoginAttempt returns the unix epoch when no attempt was recorded.
func (r *usersRepo) LastLoginAttempt(ctx context.Context, id string) (time.Time, error) {
	var ms int64
	err := r.q.QueryRowContext(ctx, `SELECT last_login_attempt FROM users WHERE id = ?`, id).Scan(&ms)
	if err != nil {
		return time.Time{}, mapNotFound(err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (r *usersRepo) SetLastLoginAttempt(ctx context.Context, id string, t time.Time) error {
	return expectRow(r.q.ExecContext(ctx, `UPDATE users SET last_login_attempt = ? WHERE id = ?`, toMillis(t), id))
}

func (r *usersRepo) MFASecret(ctx context.Context, id string) (string, error) {
	return r.text(ctx, `SELECT mfa_secret FROM users WHERE id = ?`, id)
}

func (r *usersRepo) SetMFASecret(ctx context.Context, id, secret string) error {
	return expectRow(r.q.ExecContext(ctx, `UPDATE users SET mfa_secret = ? WHERE id = ?`, secret, id))
}

func (r *usersRepo) MFAEnabled(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT mfa_enabled FROM users WHERE id = ?`, id).Scan(&n)
	return n != 0, mapNotFound(err)
}

func (r *usersRepo) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	return expectRow(r.q.ExecContext(ctx, `UPDATE users SET mfa_enabled = ? WHERE id = ?`, boolInt(enabled), id))
}

// JSONClaim serves the claims the identity provider releases: name, email
// and email_verified. Anything else is nil.
func (r *usersRepo) JSONClaim(ctx context.Context, id, claim string) (any, error) {
	switch claim {
	case "name":
		name, err := (&identitiesRepo{q: r.q}).Identity(ctx, id, domain.ProviderLoginName)
		if err != nil || name == "" {
			return nil, err
		}
		return name, nil

	case "email", "email_verified":
		var verified, unverified string
		err := r.q.QueryRowContext(ctx,
			`SELECT email, unverified_email FROM users WHERE id = ?`, id,
		).Scan(&verified, &unverified)
		if err != nil {
			return nil, mapNotFound(err)
		}
		if claim == "email" {
			switch {
			case verified != "":
				return verified, nil
			case unverified != "":
				return unverified, nil
			}
			return nil, nil
		}
		switch {
		case verified != "":
			return true, nil
		case unverified != "":
			return false, nil
		}
		return nil, nil
	}
	return nil, nil
}

func (r *usersRepo) text(ctx context.Context, query string, arg string) (string, error) {
	var s string
	err := r.q.QueryRowContext(ctx, query, arg).Scan(&s)
	return s, mapNotFound(err)
}
