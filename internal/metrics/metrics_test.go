package metrics

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/matthewbaird/fieldstate/internal/condition"
	"github.com/matthewbaird/fieldstate/internal/engine"
)

func TestRecordTransition(t *testing.T) {
	tests := []struct {
		state  string
		manual bool
		labels prometheus.Labels
	}{
		{"required", false, prometheus.Labels{"state": "required", "trigger": "auto"}},
		{"hidden", true, prometheus.Labels{"state": "hidden", "trigger": "manual"}},
		{"", false, prometheus.Labels{"state": "none", "trigger": "auto"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.labels), func(t *testing.T) {
			before := testutil.ToFloat64(transitions.With(tt.labels))
			RecordTransition(tt.state, tt.manual)
			assert.Equal(t, before+1, testutil.ToFloat64(transitions.With(tt.labels)))
		})
	}
}

func TestDiagnosticKind(t *testing.T) {
	_, perr := condition.Parse("nonsense")
	assert.Equal(t, "parse", DiagnosticKind(fmt.Errorf("field b: %w", perr)))
	assert.Equal(t, "cycle", DiagnosticKind(&engine.CycleError{Path: []string{"a", "a"}}))
	assert.Equal(t, "propagation_limit", DiagnosticKind(fmt.Errorf("%w: x", engine.ErrPropagationLimit)))
	assert.Equal(t, "other", DiagnosticKind(fmt.Errorf("boom")))

	before := testutil.ToFloat64(diagnostics.WithLabelValues("cycle"))
	RecordDiagnostic(&engine.CycleError{Path: []string{"a", "a"}})
	assert.Equal(t, before+1, testutil.ToFloat64(diagnostics.WithLabelValues("cycle")))
}

func TestSessionGauge(t *testing.T) {
	before := testutil.ToFloat64(activeSessions)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	assert.Equal(t, before+1, testutil.ToFloat64(activeSessions))
	SessionClosed()
}

func TestHandler(t *testing.T) {
	RecordEvaluation("ok")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "fieldstate_evaluations_total")
}
