package httpx

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// WriteJSON writes v as JSON with the given status. Responses are never cached.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// ParseSpaceDelimitedFields splits a space-delimited list such as a scope.
// Returns nil for blank input.
func ParseSpaceDelimitedFields(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// IsFormRequest reports whether the body is application/x-www-form-urlencoded.
func IsFormRequest(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/x-www-form-urlencoded"
}

// AppendQuery adds params to rawURL, joining with '?' or '&' as needed.
func AppendQuery(rawURL string, params url.Values) string {
	if len(params) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + params.Encode()
}

// Redirect sends a 302 to target with caching disabled.
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	NoCache(w)
	http.Redirect(w, r, target, http.StatusFound)
}
