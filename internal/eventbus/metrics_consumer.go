package eventbus

import (
	"context"

	"github.com/matthewbaird/fieldstate/internal/event"
	"github.com/matthewbaird/fieldstate/internal/metrics"
)

// MetricsConsumer counts transitions by resulting state.
type MetricsConsumer struct{}

// NewMetricsConsumer creates a new metrics consumer.
func NewMetricsConsumer() *MetricsConsumer {
	return &MetricsConsumer{}
}

// HandleEvent records the transition.
func (c *MetricsConsumer) HandleEvent(_ context.Context, evt event.Transition) error {
	metrics.RecordTransition(evt.State, evt.Manual)
	return nil
}
