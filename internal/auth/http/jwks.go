package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify ID tokens.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(keys.PublicJWKS()))
	}
}

// DiscoveryHandler serves the OpenID provider metadata.
//
//	@Summary		OpenID Connect discovery
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.DiscoveryResponse	"Provider metadata"
//	@Router			/.well-known/openid-configuration [get].
func DiscoveryHandler(issuer, alg string) http.HandlerFunc {
	base := strings.TrimSuffix(issuer, "/")
	doc := authsdk.DiscoveryResponse{
		Issuer:                           issuer,
		AuthorizationEndpoint:            base + "/v1/oauth2/authorize",
		TokenEndpoint:                    base + "/v1/oauth2/token",
		UserinfoEndpoint:                 base + "/v1/oauth2/userinfo",
		JWKSURI:                          base + "/.well-known/jwks.json",
		ResponseTypesSupported:           []string{"code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{alg},
		ScopesSupported:                  []string{"openid", "profile", "email"},
		TokenEndpointAuthMethodsSupported: []string{
			domain.HTTPAuthorizationHeader.String(),
			domain.RequestBodyParameter.String(),
		},
		ClaimsSupported:     []string{"sub", "iss", "aud", "exp", "iat", "auth_time", "name", "email", "email_verified"},
		GrantTypesSupported: []string{"authorization_code"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, doc)
	}
}
