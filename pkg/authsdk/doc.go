/*
Package authsdk is the wire contract of the authkit identity provider.

It holds the OAuth2 error type written by the server's handlers, the response
DTOs of every JSON endpoint, and a small relying-party Client for the
authorization code flow.

# Relying party flow

Send the browser to the authorize URL, then trade the returned code:

	c := authsdk.NewClient("https://auth.example.com")
	http.Redirect(w, r, c.AuthorizeURL("my-app", "https://app.example.com/cb", "openid email", state), http.StatusFound)

	// in the callback handler
	tok, err := c.ExchangeCode(ctx, authsdk.ClientCredentials{
		ID:     "my-app",
		Secret: secret,
		Method: authsdk.AuthMethodBasic,
	}, r.URL.Query().Get("code"), "https://app.example.com/cb")

	info, err := c.UserInfo(ctx, tok.AccessToken)

# Errors

Every failed call returns an *OAuth2Error carrying the HTTP status, the RFC
6749 error code, and the server's description:

	var oerr *authsdk.OAuth2Error
	if errors.As(err, &oerr) && oerr.Code == authsdk.ErrorCodeInvalidGrant {
		// the code expired or was already used
	}
*/
package authsdk
