package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transition records one change of a field's rendered state.
type Transition struct {
	ID         string    `json:"id"`
	Scope      string    `json:"scope,omitempty"` // session or form the field belongs to
	FieldID    string    `json:"field_id"`
	FieldName  string    `json:"field_name,omitempty"`
	State      string    `json:"state"`
	Previous   string    `json:"previous"`
	Manual     bool      `json:"manual,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Summary    string    `json:"summary"`
}

// TransitionPayload carries the data NewTransition needs.
type TransitionPayload struct {
	Scope     string
	FieldID   string
	FieldName string
	State     string
	Previous  string
	Manual    bool
}

func newID() string { return uuid.New().String() }

// NewTransition stamps a transition with an id and the current time.
func NewTransition(p TransitionPayload) Transition {
	return Transition{
		ID:         newID(),
		Scope:      p.Scope,
		FieldID:    p.FieldID,
		FieldName:  p.FieldName,
		State:      p.State,
		Previous:   p.Previous,
		Manual:     p.Manual,
		OccurredAt: time.Now(),
		Summary:    summarize(p),
	}
}

func summarize(p TransitionPayload) string {
	name := p.FieldID
	if name == "" {
		name = p.FieldName
	}
	from, to := stateName(p.Previous), stateName(p.State)
	if p.Manual {
		return fmt.Sprintf("Field %s manually set %s -> %s", name, from, to)
	}
	return fmt.Sprintf("Field %s %s -> %s", name, from, to)
}

func stateName(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// Payload returns the transition as JSON for storage.
func (t Transition) Payload() json.RawMessage {
	b, _ := json.Marshal(t)
	return b
}
