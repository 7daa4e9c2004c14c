package activity

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one recorded field-state transition, indexed by scope and field.
type Entry struct {
	EventID    string          `json:"event_id"`
	Scope      string          `json:"scope"`
	FieldID    string          `json:"field_id"`
	FieldName  string          `json:"field_name,omitempty"`
	State      string          `json:"state"`
	Previous   string          `json:"previous"`
	Manual     bool            `json:"manual,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Summary    string          `json:"summary"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Store is the interface for reading and writing transition history.
type Store interface {
	// WriteEntries appends entries.
	WriteEntries(ctx context.Context, entries []Entry) error

	// QueryByScope returns entries for a scope, newest first. A non-empty
	// opts.FieldID restricts the result to one field.
	QueryByScope(ctx context.Context, scope string, opts QueryOptions) (entries []Entry, nextCursor string, totalCount int, err error)

	// Search matches summaries case-insensitively.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []Entry, totalCount int, err error)

	// DeleteScope drops every entry recorded for scope.
	DeleteScope(ctx context.Context, scope string) error
}
