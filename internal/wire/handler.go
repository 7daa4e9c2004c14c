package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/matthewbaird/fieldstate/internal/definition"
	"github.com/matthewbaird/fieldstate/internal/engine"
	"github.com/matthewbaird/fieldstate/internal/event"
	"github.com/matthewbaird/fieldstate/internal/form"
	"github.com/matthewbaird/fieldstate/internal/logging"
	"github.com/matthewbaird/fieldstate/internal/session"
)

// Handler manages WebSocket connections for live form sessions.
type Handler struct {
	sessions *session.Manager
	log      *slog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(sessions *session.Manager, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		log:      logging.WithComponent(logger, "wire"),
	}
}

// ServeHTTP upgrades to WebSocket and runs the message loop. A connection
// starts without a session; "load" or "attach" binds one.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	var sess *session.Session

	for {
		var msg ClientMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.log.Debug("connection closed", "status", websocket.CloseStatus(err))
			}
			return
		}

		switch msg.Type {
		case "load":
			if s := h.handleLoad(ctx, conn, msg); s != nil {
				sess = s
			}
		case "attach":
			if s := h.handleAttach(ctx, conn, msg); s != nil {
				sess = s
			}
		case "ping":
			h.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
		case "set", "toggle", "reset", "initialise", "fallback", "snapshot":
			if sess == nil {
				h.sendError(ctx, conn, msg.ID, "no_session", "load or attach a form first")
				continue
			}
			h.handleSession(ctx, conn, sess, msg)
		default:
			h.sendError(ctx, conn, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func (h *Handler) handleLoad(ctx context.Context, conn *websocket.Conn, msg ClientMessage) *session.Session {
	var data LoadData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.Definition == "" {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "invalid load data")
		return nil
	}
	format := definition.FormatYAML
	if data.Format != "" {
		f, err := definition.ParseFormat(data.Format)
		if err != nil {
			h.sendError(ctx, conn, msg.ID, "invalid_format", err.Error())
			return nil
		}
		format = f
	}
	def, err := definition.Parse([]byte(data.Definition), format)
	if err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_definition", err.Error())
		return nil
	}
	sess, err := h.sessions.Create(def)
	if err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_definition", err.Error())
		return nil
	}
	h.sendSession(ctx, conn, msg.ID, sess)
	return sess
}

func (h *Handler) handleAttach(ctx context.Context, conn *websocket.Conn, msg ClientMessage) *session.Session {
	var data AttachData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.SessionID == "" {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "invalid attach data")
		return nil
	}
	sess, err := h.sessions.Get(data.SessionID)
	if err != nil {
		code := "internal"
		if errors.Is(err, session.ErrNotFound) {
			code = "not_found"
		}
		h.sendError(ctx, conn, msg.ID, code, err.Error())
		return nil
	}
	h.sendSession(ctx, conn, msg.ID, sess)
	return sess
}

func (h *Handler) handleSession(ctx context.Context, conn *websocket.Conn, sess *session.Session, msg ClientMessage) {
	if msg.Type == "snapshot" {
		h.sendSnapshot(ctx, conn, msg.ID, sess)
		return
	}

	op, err := decodeOp(msg)
	if err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_data", err.Error())
		return
	}
	transitions := sess.Do(op)
	if transitions == nil {
		transitions = []event.Transition{}
	}
	h.send(ctx, conn, ServerMessage{
		Type:      "transitions",
		RequestID: msg.ID,
		Data:      TransitionsData{Transitions: transitions},
	})
}

// decodeOp turns a mutating message into the engine call it requests.
func decodeOp(msg ClientMessage) (func(*engine.Engine, *form.Document), error) {
	switch msg.Type {
	case "set":
		var d SetData
		if err := unmarshal(msg.Data, &d); err != nil || d.Selector == "" {
			return nil, errors.New("invalid set data")
		}
		return func(e *engine.Engine, _ *form.Document) { e.SetFieldValue(d.Selector, d.Value, d.Context) }, nil

	case "toggle":
		var d ToggleData
		if err := unmarshal(msg.Data, &d); err != nil || d.Selector == "" {
			return nil, errors.New("invalid toggle data")
		}
		return func(e *engine.Engine, _ *form.Document) { e.SetManualState(d.Selector, d.Satisfied) }, nil

	case "reset", "initialise":
		var d ScopeData
		if err := unmarshal(msg.Data, &d); err != nil {
			return nil, fmt.Errorf("invalid %s data", msg.Type)
		}
		if msg.Type == "reset" {
			return func(e *engine.Engine, _ *form.Document) { e.Reset(d.Selector, d.Context) }, nil
		}
		return func(e *engine.Engine, _ *form.Document) { e.Initialise(d.Selector, d.Context) }, nil

	case "fallback":
		var d FallbackData
		if err := unmarshal(msg.Data, &d); err != nil {
			return nil, errors.New("invalid fallback data")
		}
		state, ok := form.ParseState(d.State)
		if !ok {
			return nil, fmt.Errorf("fallback state must be hidden or disabled, got %q", d.State)
		}
		var dims []engine.Dimension
		if d.Dimension != "" {
			dim, ok := engine.ParseDimension(d.Dimension)
			if !ok {
				return nil, fmt.Errorf("unknown dimension %q", d.Dimension)
			}
			dims = append(dims, dim)
		}
		return func(e *engine.Engine, _ *form.Document) { e.SetDefaultFallback(state, dims...) }, nil
	}
	return nil, fmt.Errorf("unknown message type: %s", msg.Type)
}

// unmarshal accepts a missing payload as the zero value.
func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (h *Handler) sendSession(ctx context.Context, conn *websocket.Conn, requestID string, sess *session.Session) {
	h.send(ctx, conn, ServerMessage{
		Type:      "session",
		RequestID: requestID,
		Data:      SessionData{SessionID: sess.ID, Form: sess.Form},
	})
	h.sendSnapshot(ctx, conn, requestID, sess)
}

func (h *Handler) sendSnapshot(ctx context.Context, conn *websocket.Conn, requestID string, sess *session.Session) {
	h.send(ctx, conn, ServerMessage{
		Type:      "snapshot",
		RequestID: requestID,
		Data:      SnapshotData{Fields: sess.Snapshot(), Diagnostics: sess.Diagnostics()},
	})
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		h.log.Warn("write error", "error", err)
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	h.send(ctx, conn, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
	})
}
