package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/authkit/internal/auth/store"
)

type identitiesRepo struct{ q querier }

func (r *identitiesRepo) FindWithIdentity(ctx context.Context, provider, identity string) (string, error) {
	var id string
	err := r.q.QueryRowContext(ctx,
		`SELECT user_id FROM identities WHERE provider = ? AND identity = ?`,
		provider, identity).Scan(&id)
	return id, mapNotFound(err)
}

func (r *identitiesRepo) AddIdentity(ctx context.Context, userID, provider, identity string) error {
	if _, err := r.FindWithIdentity(ctx, provider, identity); err == nil {
		return store.ErrAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	current, err := r.Identity(ctx, userID, provider)
	if err != nil {
		return err
	}
	if current != "" {
		return store.ErrAlreadyExists
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO identities (user_id, provider, identity) VALUES (?, ?, ?)`,
		userID, provider, identity)
	return err
}

func (r *identitiesRepo) SetIdentity(ctx context.Context, userID, provider, identity string) error {
	owner, err := r.FindWithIdentity(ctx, provider, identity)
	switch {
	case err == nil && owner != userID:
		return store.ErrAlreadyExists
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO identities (user_id, provider, identity) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, provider) DO UPDATE SET identity = excluded.identity`,
		userID, provider, identity)
	return err
}

func (r *identitiesRepo) Identity(ctx context.Context, userID, provider string) (string, error) {
	var identity string
	err := r.q.QueryRowContext(ctx,
		`SELECT identity FROM identities WHERE user_id = ? AND provider = ?`,
		userID, provider).Scan(&identity)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return identity, err
}

func (r *identitiesRepo) RemoveIdentity(ctx context.Context, userID, provider string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM identities WHERE user_id = ? AND provider = ?`, userID, provider)
	return err
}
