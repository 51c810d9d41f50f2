package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

// InitAuthKeys generates the ID token signing keys of this process.
//
// Keys live only in memory: ID tokens signed before a restart can no longer
// be verified against the published JWKS. Relying parties verify ID tokens
// right after the code exchange, so this only affects tokens still in
// flight during a restart.
//
// Supported algorithms: RS256, EdDSA
func InitAuthKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	logger.Info("initializing signing keys",
		"algorithm", cfg.Algorithm,
		"num_keys", cfg.NumKeys,
	)

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		Audience:  nil, // the audience of an ID token is the requesting client
		RSABits:   cfg.RSABits,
		NumKeys:   cfg.NumKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	logger.Info("generated signing keys",
		"algorithm", keyManager.Algorithm(),
		"num_keys", keyManager.NumSigners(),
		"issuer", cfg.Issuer,
	)
	return keyManager, nil
}
