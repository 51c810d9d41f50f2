// Package metrics holds the Prometheus collectors of the auth service. A nil
// *Metrics is valid and records nothing, so components can be built without
// a registry in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authkit"

type Metrics struct {
	passwordAttempts *prometheus.CounterVec
	authTokens       *prometheus.CounterVec
	emailTokens      *prometheus.CounterVec
	issuedTokens     *prometheus.CounterVec
	oauthExchanges   *prometheus.CounterVec
	oauthLatency     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		passwordAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_attempts_total",
			Help:      "Password verifications by result.",
		}, []string{"result"}),
		authTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_tokens_processed_total",
			Help:      "Remember-me tokens presented, by result.",
		}, []string{"result"}),
		emailTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_tokens_processed_total",
			Help:      "Mailed tokens presented, by result.",
		}, []string{"result"}),
		issuedTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idp_tokens_issued_total",
			Help:      "Codes and tokens issued by the identity provider, by purpose.",
		}, []string{"purpose"}),
		oauthExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_exchanges_total",
			Help:      "Completed OAuth client processes by provider and outcome.",
		}, []string{"provider", "outcome"}),
		oauthLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oauth_http_duration_seconds",
			Help:      "Latency of outbound calls to OAuth providers.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"provider", "call"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.passwordAttempts,
		m.authTokens,
		m.emailTokens,
		m.issuedTokens,
		m.oauthExchanges,
		m.oauthLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) PasswordAttempt(result string) {
	if m != nil {
		m.passwordAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) AuthToken(result string) {
	if m != nil {
		m.authTokens.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) EmailToken(result string) {
	if m != nil {
		m.emailTokens.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) TokenIssued(purpose string) {
	if m != nil {
		m.issuedTokens.WithLabelValues(purpose).Inc()
	}
}

func (m *Metrics) OAuthExchange(provider, outcome string) {
	if m != nil {
		m.oauthExchanges.WithLabelValues(provider, outcome).Inc()
	}
}

// ObserveOAuthCall records how long an outbound provider call took since start.
func (m *Metrics) ObserveOAuthCall(provider, call string, start time.Time) {
	if m != nil {
		m.oauthLatency.WithLabelValues(provider, call).Observe(time.Since(start).Seconds())
	}
}
