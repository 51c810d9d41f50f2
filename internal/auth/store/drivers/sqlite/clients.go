package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/idx"
)

type clientsRepo struct{ q querier }

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	if _, err := r.FindWithClientID(ctx, c.ClientID); err == nil {
		return store.ErrAlreadyExists
	}
	if c.ID == "" {
		c.ID = idx.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO oauth_clients (id, client_id, name, secret_hash, redirect_uris, confidential, auth_method, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClientID, c.Name, c.SecretHash, strings.Join(c.RedirectURIs, "\n"),
		boolInt(c.Confidential), int(c.AuthMethod), toMillis(c.CreatedAt))
	return err
}

func (r *clientsRepo) FindWithClientID(ctx context.Context, clientID string) (string, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM oauth_clients WHERE client_id = ?`, clientID).Scan(&id)
	return id, mapNotFound(err)
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, client_id, name, secret_hash, redirect_uris, confidential, auth_method, created_at
		 FROM oauth_clients ORDER BY client_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		var (
			c            domain.Client
			uris         string
			confidential int
			method       int
			created      int64
		)
		if err := rows.Scan(&c.ID, &c.ClientID, &c.Name, &c.SecretHash, &uris, &confidential, &method, &created); err != nil {
			return nil, err
		}
		c.RedirectURIs = splitLines(uris)
		c.Confidential = confidential != 0
		c.AuthMethod = domain.ClientSecretMethod(method)
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *clientsRepo) ClientID(ctx context.Context, id string) (string, error) {
	return r.text(ctx, `SELECT client_id FROM oauth_clients WHERE id = ?`, id)
}

func (r *clientsRepo) RedirectURIs(ctx context.Context, id string) ([]string, error) {
	uris, err := r.text(ctx, `SELECT redirect_uris FROM oauth_clients WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return splitLines(uris), nil
}

func (r *clientsRepo) Confidential(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT confidential FROM oauth_clients WHERE id = ?`, id).Scan(&n)
	return n != 0, mapNotFound(err)
}

func (r *clientsRepo) AuthMethod(ctx context.Context, id string) (domain.ClientSecretMethod, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT auth_method FROM oauth_clients WHERE id = ?`, id).Scan(&n)
	return domain.ClientSecretMethod(n), mapNotFound(err)
}

func (r *clientsRepo) Secret(ctx context.Context, id string) (string, error) {
	return r.text(ctx, `SELECT secret_hash FROM oauth_clients WHERE id = ?`, id)
}

func (r *clientsRepo) text(ctx context.Context, query, arg string) (string, error) {
	var s string
	err := r.q.QueryRowContext(ctx, query, arg).Scan(&s)
	return s, mapNotFound(err)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
