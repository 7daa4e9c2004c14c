// Package eventbus provides an in-process pub/sub bus for field-state
// transitions. Engines publish synchronously; subscribers process
// transitions asynchronously on a single consumer goroutine.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/matthewbaird/fieldstate/internal/event"
	"github.com/matthewbaird/fieldstate/internal/logging"
)

// Handler processes a transition. Implementations must be safe for
// concurrent calls from different goroutines.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.Transition) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt event.Transition) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.Transition) error {
	return f(ctx, evt)
}

// Bus is a simple in-process event bus. Transitions are published to a
// buffered channel and dispatched to all subscribers in one consumer
// goroutine, so handlers see them in publish order.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler
	closed      bool
	events      chan event.Transition
	done        chan struct{}
	log         *slog.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// New creates a new Bus with the given channel buffer size.
func New(bufSize int, logger *slog.Logger) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	return &Bus{
		events: make(chan event.Transition, bufSize),
		done:   make(chan struct{}),
		log:    logging.WithComponent(logger, "eventbus"),
	}
}

// Subscribe registers a named handler. Must be called before Start.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish sends a transition to the bus. Non-blocking: if the buffer is
// full or the bus is stopped the transition is dropped and a warning is
// logged.
func (b *Bus) Publish(_ context.Context, evt event.Transition) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.log.Warn("bus stopped, dropping transition", "id", evt.ID, logging.FieldKey, evt.FieldID)
		return
	}
	select {
	case b.events <- evt:
	default:
		b.log.Warn("buffer full, dropping transition", "id", evt.ID, logging.FieldKey, evt.FieldID)
	}
}

// Start begins the consumer goroutine. It processes transitions until the
// context is cancelled or Stop is called.
func (b *Bus) Start(ctx context.Context) {
	go func() {
		defer close(b.done)
		for {
			select {
			case evt, ok := <-b.events:
				if !ok {
					return
				}
				b.dispatch(ctx, evt)
			case <-ctx.Done():
				// Drain remaining transitions before exiting.
				for {
					select {
					case evt, ok := <-b.events:
						if !ok {
							return
						}
						b.dispatch(ctx, evt)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop closes the bus and waits for the consumer goroutine to drain it.
// Start must have been called.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) dispatch(ctx context.Context, evt event.Transition) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			b.log.Error("handler error", "handler", s.name, "id", evt.ID, "error", err)
		}
	}
}
