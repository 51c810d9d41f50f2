package app

import (
	"context"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
)

// AddUser registers a password account from the command line. The password
// strength policy applies as for self registration.
func (app *Application) AddUser(ctx context.Context, r service.Registration) (string, error) {
	u, err := app.registrationService.Register(ctx, app.db, r)
	if err != nil {
		return "", err
	}
	return u.ID(), nil
}

// AddClient registers a relying party and returns it with its plaintext
// secret.
func (app *Application) AddClient(ctx context.Context, nc service.NewClient) (domain.Client, string, error) {
	return app.clientService.CreateClient(ctx, nc)
}

func (app *Application) ListClients(ctx context.Context) ([]domain.Client, error) {
	return app.clientService.ListClients(ctx)
}
