package store

import (
	"context"
	"errors"
)

// ErrNoTransactions is returned by Tx on stores that cannot provide one.
var ErrNoTransactions = errors.New("store: transactions not supported")

// Repos are the parts of a Composite store. Nil members answer with the
// neutral defaults of the Unimplemented* types.
type Repos struct {
	Users        Users
	Identities   Identities
	AuthTokens   AuthTokens
	Clients      Clients
	IssuedTokens IssuedTokens
}

// Composite assembles a Store from independent repositories. It has no
// transactions: WithTx runs fn directly and Commit/Rollback do nothing.
type Composite struct {
	r Repos
}

func NewComposite(r Repos) *Composite {
	if r.Users == nil {
		r.Users = UnimplementedUsers{}
	}
	if r.Identities == nil {
		r.Identities = UnimplementedIdentities{}
	}
	if r.AuthTokens == nil {
		r.AuthTokens = UnimplementedAuthTokens{}
	}
	if r.Clients == nil {
		r.Clients = UnimplementedClients{}
	}
	if r.IssuedTokens == nil {
		r.IssuedTokens = UnimplementedIssuedTokens{}
	}
	return &Composite{r: r}
}

func (c *Composite) Users() Users               { return c.r.Users }
func (c *Composite) Identities() Identities     { return c.r.Identities }
func (c *Composite) AuthTokens() AuthTokens     { return c.r.AuthTokens }
func (c *Composite) Clients() Clients           { return c.r.Clients }
func (c *Composite) IssuedTokens() IssuedTokens { return c.r.IssuedTokens }

func (c *Composite) ApplyMigrations() error         { return nil }
func (c *Composite) Close() error                   { return nil }
func (c *Composite) Ping(ctx context.Context) error { return nil }

func (c *Composite) Tx(ctx context.Context) (Tx, error) {
	return nil, ErrNoTransactions
}

func (c *Composite) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return fn(noTx{c})
}

type noTx struct{ Store }

func (noTx) Commit() error   { return nil }
func (noTx) Rollback() error { return nil }
