package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// RateLimitConfig is a token bucket: Requests per Window, with Burst
// requests allowed back to back.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// RateLimits groups the profiles used by the router.
//
//   - Strict guards credential endpoints (login, register, token).
//   - Moderate guards mail and MFA flows.
//   - Public guards read-only discovery endpoints.
type RateLimits struct {
	Strict   RateLimitConfig
	Moderate RateLimitConfig
	Public   RateLimitConfig
}

func DefaultRateLimits() RateLimits {
	return RateLimits{
		Strict:   RateLimitConfig{Requests: 5, Window: time.Minute, Burst: 5},
		Moderate: RateLimitConfig{Requests: 20, Window: time.Minute, Burst: 20},
		Public:   RateLimitConfig{Requests: 1000, Window: time.Minute, Burst: 1000},
	}
}

// ParseRateLimit overrides def from RATELIMIT_{prefix}_REQUESTS,
// RATELIMIT_{prefix}_WINDOW_SEC and RATELIMIT_{prefix}_BURST. Invalid or
// non-positive values are ignored.
func ParseRateLimit(prefix string, def RateLimitConfig, getenv func(string) string) RateLimitConfig {
	cfg := def
	if n, ok := positiveInt(getenv("RATELIMIT_" + prefix + "_REQUESTS")); ok {
		cfg.Requests = n
	}
	if n, ok := positiveInt(getenv("RATELIMIT_" + prefix + "_WINDOW_SEC")); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt(getenv("RATELIMIT_" + prefix + "_BURST")); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil && n > 0
}

// KeyExtractor groups requests into buckets. An empty key bypasses limiting.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor honours X-Forwarded-For and X-Real-IP before RemoteAddr.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func UserIDKeyExtractor(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

// FormFieldKeyExtractor reads a query or form parameter, e.g. the login name.
func FormFieldKeyExtractor(field string) KeyExtractor {
	return func(r *http.Request) string {
		if err := r.ParseForm(); err != nil {
			return ""
		}
		return r.FormValue(field)
	}
}

// CompositeKeyExtractor joins the non-empty keys of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, ex := range extractors {
			if k := ex(r); k != "" {
				parts = append(parts, k)
			}
		}
		return strings.Join(parts, sep)
	}
}

type limiterSet struct {
	limiters sync.Map // map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func (s *limiterSet) get(key string) *rate.Limiter {
	if l, ok := s.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	actual, _ := s.limiters.LoadOrStore(key, rate.NewLimiter(s.limit, s.burst))
	s.sweep()
	return actual.(*rate.Limiter)
}

// sweep drops idle limiters (full buckets) at most every five minutes.
func (s *limiterSet) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastCleanup) < 5*time.Minute {
		return
	}
	s.lastCleanup = time.Now()

	s.limiters.Range(func(k, v any) bool {
		if v.(*rate.Limiter).Tokens() >= float64(s.burst) {
			s.limiters.Delete(k)
		}
		return true
	})
}

// RateLimitOption customises RateLimitMiddleware.
type RateLimitOption func(*rateLimitOptions)

type rateLimitOptions struct {
	onReject func(r *http.Request)
}

// OnReject registers a hook called for every rejected request.
func OnReject(fn func(r *http.Request)) RateLimitOption {
	return func(o *rateLimitOptions) { o.onReject = fn }
}

// RateLimitMiddleware answers 429 with a JSON error once the bucket for the
// request's key is empty.
func RateLimitMiddleware(cfg RateLimitConfig, key KeyExtractor, opts ...RateLimitOption) Middleware {
	var o rateLimitOptions
	for _, opt := range opts {
		opt(&o)
	}

	set := &limiterSet{
		limit:       rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			l := set.get(k)
			if l.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			res := l.Reserve()
			retryAfter := max(int(res.Delay().Seconds()), 1)
			res.Cancel()

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"key", k,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)
			if o.onReject != nil {
				o.onReject(r)
			}

			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "Too many requests. Please try again later.",
			})
		})
	}
}

func RateLimitByIP(cfg RateLimitConfig, opts ...RateLimitOption) Middleware {
	return RateLimitMiddleware(cfg, IPKeyExtractor, opts...)
}

// RateLimitByIPAndFormField buckets by client address and a form field value.
func RateLimitByIPAndFormField(cfg RateLimitConfig, field string, opts ...RateLimitOption) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", IPKeyExtractor, FormFieldKeyExtractor(field)), opts...)
}
