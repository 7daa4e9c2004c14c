package eventbus

import (
	"context"
	"log/slog"

	"github.com/matthewbaird/fieldstate/internal/event"
	"github.com/matthewbaird/fieldstate/internal/logging"
)

// LogConsumer logs every transition.
type LogConsumer struct {
	log *slog.Logger
}

func NewLogConsumer(logger *slog.Logger) *LogConsumer {
	return &LogConsumer{log: logging.WithComponent(logger, "transitions")}
}

func (c *LogConsumer) HandleEvent(ctx context.Context, evt event.Transition) error {
	c.log.InfoContext(ctx, evt.Summary,
		logging.SessionKey, evt.Scope,
		logging.FieldKey, evt.FieldID,
		logging.StateKey, evt.State,
		"previous", evt.Previous,
		"manual", evt.Manual,
	)
	return nil
}
