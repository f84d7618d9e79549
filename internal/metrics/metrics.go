package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every leadline collector. It is separate from the default
// registry so tests and embedders get a clean set.
var Registry = prometheus.NewRegistry()

var (
	// StatusMoves counts optimistic stage changes by outcome
	// (applied, committed, reverted, noop).
	StatusMoves = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadline",
		Name:      "status_moves_total",
		Help:      "Optimistic lead stage changes by outcome.",
	}, []string{"outcome"})

	// BoardFetches counts board page loads by kind (reset, more) and outcome.
	BoardFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadline",
		Name:      "board_fetches_total",
		Help:      "Board page fetches by kind and outcome.",
	}, []string{"kind", "outcome"})

	AIToggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadline",
		Name:      "ai_toggles_total",
		Help:      "AI-assist toggles by outcome.",
	}, []string{"outcome"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadline",
		Name:      "http_requests_total",
		Help:      "Contract server requests by method, route and status code.",
	}, []string{"method", "route", "code"})
)

func init() {
	Registry.MustRegister(StatusMoves, BoardFetches, AIToggles, HTTPRequests)
}

// Handler serves the leadline registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
