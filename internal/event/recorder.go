// Package event provides transition recording for the field-state engine.
// Transitions are written to the activity store, then published to the
// in-process event bus for downstream consumers.
package event

import (
	"context"

	"github.com/matthewbaird/fieldstate/internal/activity"
)

// Publisher sends transitions to downstream consumers. Publish must not
// block.
type Publisher interface {
	Publish(ctx context.Context, evt Transition)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt Transition)

func (f PublisherFunc) Publish(ctx context.Context, evt Transition) { f(ctx, evt) }

// Fanout publishes to each publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt Transition) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, evt)
		}
	}
}

// ActivityRecorder implements Publisher by writing each transition to an
// activity.Store. If a bus is attached the transition is forwarded after
// the store write succeeds.
type ActivityRecorder struct {
	store activity.Store
	bus   Publisher
	onErr func(error)
}

// NewActivityRecorder creates a recorder backed by store.
func NewActivityRecorder(store activity.Store) *ActivityRecorder {
	return &ActivityRecorder{store: store}
}

// SetPublisher attaches an event bus.
func (r *ActivityRecorder) SetPublisher(p Publisher) {
	r.bus = p
}

// OnError sets a hook for store failures. Publish has no error return.
func (r *ActivityRecorder) OnError(fn func(error)) {
	r.onErr = fn
}

// Record writes evt to the store and forwards it to the bus.
func (r *ActivityRecorder) Record(ctx context.Context, evt Transition) error {
	entry := activity.Entry{
		EventID:    evt.ID,
		Scope:      evt.Scope,
		FieldID:    evt.FieldID,
		FieldName:  evt.FieldName,
		State:      evt.State,
		Previous:   evt.Previous,
		Manual:     evt.Manual,
		OccurredAt: evt.OccurredAt,
		Summary:    evt.Summary,
		Payload:    evt.Payload(),
	}
	if err := r.store.WriteEntries(ctx, []activity.Entry{entry}); err != nil {
		return err
	}
	if r.bus != nil {
		r.bus.Publish(ctx, evt)
	}
	return nil
}

// Publish implements Publisher.
func (r *ActivityRecorder) Publish(ctx context.Context, evt Transition) {
	if err := r.Record(ctx, evt); err != nil && r.onErr != nil {
		r.onErr(err)
	}
}
