package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
)

type authTokensRepo struct{ q querier }

func (r *authTokensRepo) AddAuthToken(ctx context.Context, userID string, t domain.Token) error {
	var n int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auth_tokens WHERE hash = ?`, t.Hash).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return store.ErrTokenCollision
	}

	if _, err := r.q.ExecContext(ctx,
		`INSERT INTO auth_tokens (hash, user_id, expires, created_at) VALUES (?, ?, ?, ?)`,
		t.Hash, userID, toMillis(t.Expires), time.Now().UnixNano()); err != nil {
		return err
	}

	_, err := r.q.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE user_id = ? AND hash NOT IN (
			SELECT hash FROM auth_tokens WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, userID, userID, store.MaxAuthTokensPerUser)
	return err
}

func (r *authTokensRepo) RemoveAuthToken(ctx context.Context, userID, hash string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE user_id = ? AND hash = ?`, userID, hash)
	return err
}

func (r *authTokensRepo) FindWithAuthToken(ctx context.Context, hash string) (string, error) {
	var id string
	err := r.q.QueryRowContext(ctx,
		`SELECT user_id FROM auth_tokens WHERE hash = ? AND expires > ?`,
		hash, time.Now().UnixMilli()).Scan(&id)
	return id, mapNotFound(err)
}

func (r *authTokensRepo) UpdateAuthToken(ctx context.Context, userID, oldHash, newHash string) (int, error) {
	var expires int64
	err := r.q.QueryRowContext(ctx,
		`SELECT expires FROM auth_tokens WHERE user_id = ? AND hash = ?`,
		userID, oldHash).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}

	if _, err := r.q.ExecContext(ctx,
		`UPDATE auth_tokens SET hash = ? WHERE user_id = ? AND hash = ?`,
		newHash, userID, oldHash); err != nil {
		return 0, err
	}

	return max(int(time.Until(fromMillis(expires)).Seconds()), 0), nil
}

func (r *authTokensRepo) DeleteExpiredAuthTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM auth_tokens WHERE expires <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
