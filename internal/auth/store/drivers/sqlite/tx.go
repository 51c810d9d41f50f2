package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/authkit/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the caller commits or rolls back and the DB stays open.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users               { return &usersRepo{q: t.tx} }
func (t *txStore) Identities() store.Identities     { return &identitiesRepo{q: t.tx} }
func (t *txStore) AuthTokens() store.AuthTokens     { return &authTokensRepo{q: t.tx} }
func (t *txStore) Clients() store.Clients           { return &clientsRepo{q: t.tx} }
func (t *txStore) IssuedTokens() store.IssuedTokens { return &issuedTokensRepo{q: t.tx} }

// ApplyMigrations is a no-op; migrations run before any transaction.
func (t *txStore) ApplyMigrations() error { return nil }
