package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

var stateEncoding = strings.NewReplacer("+", "-", "/", "_", "=", ".")
var stateDecoding = strings.NewReplacer("-", "+", "_", "/", ".", "=")

// EncodeState binds url to secret. The result is safe in a query string.
func EncodeState(secret, url string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(url))
	sum := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	b := base64.StdEncoding.EncodeToString([]byte(sum + "|" + url))
	return stateEncoding.Replace(b)
}

// DecodeState returns the url encoded in state, or "" when state was not
// produced by EncodeState with the same secret.
func DecodeState(secret, state string) string {
	raw, err := base64.StdEncoding.DecodeString(stateDecoding.Replace(state))
	if err != nil {
		return ""
	}
	_, url, ok := strings.Cut(string(raw), "|")
	if !ok {
		return ""
	}
	if !hmac.Equal([]byte(EncodeState(secret, url)), []byte(state)) {
		return ""
	}
	return url
}
