// Package metrics exposes Prometheus metrics for field-state sessions.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthewbaird/fieldstate/internal/condition"
	"github.com/matthewbaird/fieldstate/internal/engine"
)

var (
	// transitions counts rendered-state changes by resulting state.
	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldstate_transitions_total",
			Help: "Total field state transitions by state and trigger",
		},
		[]string{"state", "trigger"},
	)

	// diagnostics counts problems the engine recorded instead of failing.
	diagnostics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldstate_diagnostics_total",
			Help: "Total engine diagnostics by kind",
		},
		[]string{"kind"},
	)

	// activeSessions tracks live sessions.
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldstate_active_sessions",
			Help: "Number of live form sessions",
		},
	)

	// evaluations counts stateless evaluate requests by outcome.
	evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldstate_evaluations_total",
			Help: "Total stateless evaluations by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordTransition increments the transition counter.
func RecordTransition(state string, manual bool) {
	if state == "" {
		state = "none"
	}
	trigger := "auto"
	if manual {
		trigger = "manual"
	}
	transitions.WithLabelValues(state, trigger).Inc()
}

// RecordDiagnostic classifies err and increments the diagnostics counter.
func RecordDiagnostic(err error) {
	diagnostics.WithLabelValues(DiagnosticKind(err)).Inc()
}

// DiagnosticKind names the class of an engine diagnostic.
func DiagnosticKind(err error) string {
	var perr *condition.ParseError
	switch {
	case errors.Is(err, engine.ErrDependencyCycle):
		return "cycle"
	case errors.Is(err, engine.ErrPropagationLimit):
		return "propagation_limit"
	case errors.As(err, &perr):
		return "parse"
	}
	return "other"
}

// SessionOpened and SessionClosed track the live session gauge.
func SessionOpened() { activeSessions.Inc() }

func SessionClosed() { activeSessions.Dec() }

// RecordEvaluation counts a stateless evaluation; outcome is "ok" or an
// error code.
func RecordEvaluation(outcome string) {
	evaluations.WithLabelValues(outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
