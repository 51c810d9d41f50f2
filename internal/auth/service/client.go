package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

var ErrClientExists = errors.New("client already exists")

type ClientService struct {
	Store store.Store

	// SecretHash hashes client secrets; TokenService must verify with the
	// same function.
	SecretHash cryptox.HashFunction
}

// NewClient describes a relying party to register. An empty ClientID is
// generated.
type NewClient struct {
	ClientID     string
	Name         string
	RedirectURIs []string
	Confidential bool
	AuthMethod   domain.ClientSecretMethod
}

// CreateClient registers a relying party and returns it together with its
// plaintext secret, which is not stored and is shown only once.
func (s *ClientService) CreateClient(ctx context.Context, nc NewClient) (domain.Client, string, error) {
	l := slogx.FromContext(ctx)

	if len(nc.RedirectURIs) == 0 {
		return domain.Client{}, "", fmt.Errorf("%w: at least one redirect uri is required", ErrInvalidRequest)
	}
	for _, raw := range nc.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" || u.Fragment != "" || strings.ContainsAny(raw, "\r\n") {
			return domain.Client{}, "", fmt.Errorf("%w: bad redirect uri %q", ErrInvalidRequest, raw)
		}
	}

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Client{}, "", err
	}
	secretHash, err := s.SecretHash.Compute(secret, "")
	if err != nil {
		return domain.Client{}, "", fmt.Errorf("hash client secret: %w", err)
	}

	c := domain.Client{
		ClientID:     nc.ClientID,
		Name:         nc.Name,
		SecretHash:   secretHash,
		RedirectURIs: nc.RedirectURIs,
		Confidential: nc.Confidential,
		AuthMethod:   nc.AuthMethod,
	}
	if c.ClientID == "" {
		c.ClientID = uuid.NewString()
	}

	err = s.Store.Clients().CreateClient(ctx, c)
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.Client{}, "", ErrClientExists
	}
	if err != nil {
		return domain.Client{}, "", err
	}

	created, err := s.find(ctx, c.ClientID)
	if err != nil {
		return domain.Client{}, "", err
	}
	l.Info("client created", "client_id", c.ClientID, "name", c.Name, "auth_method", c.AuthMethod.String())
	return created, secret, nil
}

func (s *ClientService) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.Store.Clients().ListClients(ctx)
}

func (s *ClientService) find(ctx context.Context, clientID string) (domain.Client, error) {
	clients, err := s.ListClients(ctx)
	if err != nil {
		return domain.Client{}, err
	}
	for _, c := range clients {
		if c.ClientID == clientID {
			return c, nil
		}
	}
	return domain.Client{}, store.ErrNotFound
}
