package store

import "context"

// WithIssuedTokens serves IssuedTokens from repo and everything else from
// base, inside and outside transactions. repo does not take part in base's
// transactions.
func WithIssuedTokens(base Store, repo IssuedTokens) Store {
	return &overlay{Store: base, issued: repo}
}

type overlay struct {
	Store
	issued IssuedTokens
}

func (o *overlay) IssuedTokens() IssuedTokens { return o.issued }

func (o *overlay) Tx(ctx context.Context) (Tx, error) {
	tx, err := o.Store.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &overlayTx{innerTx: tx, issued: o.issued}, nil
}

func (o *overlay) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return o.Store.WithTx(ctx, func(tx Tx) error {
		return fn(&overlayTx{innerTx: tx, issued: o.issued})
	})
}

// innerTx lets overlayTx embed a Tx without the field name hiding Tx().
type innerTx = Tx

var _ Tx = (*overlayTx)(nil)

type overlayTx struct {
	innerTx
	issued IssuedTokens
}

func (t *overlayTx) IssuedTokens() IssuedTokens { return t.issued }
