package service

import (
	"context"

	"github.com/aussiebroadwan/authkit/internal/auth/store"
)

// withTx runs fn in a transaction on db, or directly on db when db already
// is one. Handles created inside fn must be rebound before they escape.
func withTx(ctx context.Context, db store.Store, fn func(tx store.Store) error) error {
	if tx, ok := db.(store.Tx); ok {
		return fn(tx)
	}
	return db.WithTx(ctx, func(tx store.Tx) error { return fn(tx) })
}
