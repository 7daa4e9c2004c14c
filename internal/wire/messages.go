// Package wire defines the WebSocket protocol for live form sessions.
package wire

import (
	"encoding/json"

	"github.com/matthewbaird/fieldstate/internal/engine"
	"github.com/matthewbaird/fieldstate/internal/event"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "load", "attach", "set", "toggle", "reset", "initialise", "fallback", "snapshot", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// LoadData is the payload for "load" messages.
type LoadData struct {
	Definition string `json:"definition"`
	Format     string `json:"format,omitempty"` // default yaml
}

// AttachData is the payload for "attach" messages.
type AttachData struct {
	SessionID string `json:"session_id"`
}

// SetData is the payload for "set" messages.
type SetData struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
	Context  string `json:"context,omitempty"`
}

// ToggleData is the payload for "toggle" messages.
type ToggleData struct {
	Selector  string `json:"selector"`
	Satisfied bool   `json:"satisfied"`
}

// ScopeData is the payload for "reset" and "initialise" messages.
type ScopeData struct {
	Selector string `json:"selector,omitempty"`
	Context  string `json:"context,omitempty"`
}

// FallbackData is the payload for "fallback" messages. An empty dimension
// sets both.
type FallbackData struct {
	State     string `json:"state"`
	Dimension string `json:"dimension,omitempty"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "transitions", "snapshot", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData carries session information.
type SessionData struct {
	SessionID string `json:"session_id"`
	Form      string `json:"form,omitempty"`
}

// TransitionsData carries the transitions one request caused, in order.
type TransitionsData struct {
	Transitions []event.Transition `json:"transitions"`
}

// SnapshotData reports every field of the session's form.
type SnapshotData struct {
	Fields      []engine.FieldState `json:"fields"`
	Diagnostics []string            `json:"diagnostics,omitempty"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
