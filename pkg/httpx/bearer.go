package httpx

import (
	"context"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// BearerToken returns the raw token carried in the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(authz[len(bearerPrefix):])
	return tok, tok != ""
}

// RequireBearer rejects requests without a bearer token using onMissing and
// otherwise stores the raw token in the request context. The token itself is
// validated by the handler since its meaning depends on the endpoint.
func RequireBearer(onMissing http.HandlerFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := BearerToken(r)
			if !ok {
				onMissing(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), CtxKeyBearer, tok)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteBearerError writes an RFC 6750 challenge.
func WriteBearerError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	WriteJSON(w, status, map[string]string{
		"error":             code,
		"error_description": desc,
	})
}
