package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/idx"
)

type issuedTokensRepo struct{ q querier }

func (r *issuedTokensRepo) Add(ctx context.Context, t domain.IssuedToken) (string, error) {
	if _, err := r.FindWithValue(ctx, t.Purpose, t.ValueHash); err == nil {
		return "", store.ErrTokenCollision
	}
	if t.ID == "" {
		t.ID = idx.New().String()
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO issued_tokens (id, value_hash, purpose, scope, redirect_uri, expires, auth_time, user_id, client_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ValueHash, t.Purpose, t.Scope, t.RedirectURI,
		toMillis(t.Expires), toMillis(t.AuthTime), t.UserID, t.ClientID)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

func (r *issuedTokensRepo) Remove(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM issued_tokens WHERE id = ?`, id)
	return err
}

func (r *issuedTokensRepo) FindWithValue(ctx context.Context, purpose, valueHash string) (string, error) {
	return r.text(ctx,
		`SELECT id FROM issued_tokens WHERE purpose = ? AND value_hash = ?`, purpose, valueHash)
}

func (r *issuedTokensRepo) Take(ctx context.Context, purpose, valueHash string) (domain.IssuedToken, error) {
	var t domain.IssuedToken
	var expires, authTime int64
	err := r.q.QueryRowContext(ctx,
		`DELETE FROM issued_tokens WHERE purpose = ? AND value_hash = ?
		 RETURNING id, value_hash, purpose, scope, redirect_uri, expires, auth_time, user_id, client_id`,
		purpose, valueHash).
		Scan(&t.ID, &t.ValueHash, &t.Purpose, &t.Scope, &t.RedirectURI, &expires, &authTime, &t.UserID, &t.ClientID)
	if err != nil {
		return domain.IssuedToken{}, mapNotFound(err)
	}
	t.Expires = fromMillis(expires)
	t.AuthTime = fromMillis(authTime)
	return t, nil
}

func (r *issuedTokensRepo) User(ctx context.Context, id string) (string, error) {
	return r.text(ctx, `SELECT user_id FROM issued_tokens WHERE id = ?`, id)
}

func (r *issuedTokensRepo) Scope(ctx context.Context, id string) (string, error) {
	return r.text(ctx, `SELECT scope FROM issued_tokens WHERE id = ?`, id)
}

func (r *issuedTokensRepo) RedirectURI(ctx context.Context, id string) (string, error) {
	return r.text(ctx, `SELECT redirect_uri FROM issued_tokens WHERE id = ?`, id)
}

func (r *issuedTokensRepo) ExpirationTime(ctx context.Context, id string) (time.Time, error) {
	return r.millis(ctx, `SELECT expires FROM issued_tokens WHERE id = ?`, id)
}

func (r *issuedTokensRepo) Purpose(ctx context.Context, id string) (string, error) {
	return r.text(ctx, `SELECT purpose FROM issued_tokens WHERE id = ?`, id)
}

func (r *issuedTokensRepo) AuthClient(ctx context.Context, id string) (string, error) {
	return r.text(ctx, `SELECT client_id FROM issued_tokens WHERE id = ?`, id)
}

func (r *issuedTokensRepo) AuthTime(ctx context.Context, id string) (time.Time, error) {
	return r.millis(ctx, `SELECT auth_time FROM issued_tokens WHERE id = ?`, id)
}

func (r *issuedTokensRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM issued_tokens WHERE expires <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *issuedTokensRepo) text(ctx context.Context, query string, args ...any) (string, error) {
	var s string
	err := r.q.QueryRowContext(ctx, query, args...).Scan(&s)
	return s, mapNotFound(err)
}

func (r *issuedTokensRepo) millis(ctx context.Context, query, arg string) (time.Time, error) {
	var ms int64
	if err := r.q.QueryRowContext(ctx, query, arg).Scan(&ms); err != nil {
		return time.Time{}, mapNotFound(err)
	}
	return fromMillis(ms), nil
}
