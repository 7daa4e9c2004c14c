package wire

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/fieldstate/internal/logging"
	"github.com/matthewbaird/fieldstate/internal/session"
)

const consentForm = `
name: consent
fields:
  - id: agree
    kind: checkbox
  - id: reason
    label: Reason
    required: "if:('#agree' :checked)"
`

// reply is ServerMessage with the payload left undecoded.
type reply struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type client struct {
	t    *testing.T
	ctx  context.Context
	conn *websocket.Conn
}

func dial(t *testing.T) *client {
	t.Helper()
	mgr := session.NewManager(session.Options{Logger: logging.Discard()})
	srv := httptest.NewServer(NewHandler(mgr, logging.Discard()))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return &client{t: t, ctx: ctx, conn: conn}
}

func (c *client) send(typ, id string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, wsjson.Write(c.ctx, c.conn, ClientMessage{Type: typ, ID: id, Data: raw}))
}

func (c *client) read(wantType string) reply {
	c.t.Helper()
	var r reply
	require.NoError(c.t, wsjson.Read(c.ctx, c.conn, &r))
	require.Equal(c.t, wantType, r.Type, string(r.Data))
	return r
}

func decode[T any](t *testing.T, r reply) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

func (c *client) load() SessionData {
	c.t.Helper()
	c.send("load", "1", LoadData{Definition: consentForm})
	s := decode[SessionData](c.t, c.read("session"))
	c.read("snapshot")
	return s
}

func TestHandler_Ping(t *testing.T) {
	c := dial(t)
	c.send("ping", "p1", nil)
	r := c.read("pong")
	assert.Equal(t, "p1", r.RequestID)
}

func TestHandler_LoadSendsSessionAndSnapshot(t *testing.T) {
	c := dial(t)
	c.send("load", "1", LoadData{Definition: consentForm})

	s := decode[SessionData](t, c.read("session"))
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, "consent", s.Form)

	snap := decode[SnapshotData](t, c.read("snapshot"))
	require.Len(t, snap.Fields, 2)
	assert.Equal(t, "reason", snap.Fields[1].ID)
	assert.Equal(t, "hidden", string(snap.Fields[1].State))
	assert.Empty(t, snap.Diagnostics)
}

func TestHandler_SetReportsTransitions(t *testing.T) {
	c := dial(t)
	c.load()

	c.send("set", "2", SetData{Selector: "#agree", Value: "true"})
	r := c.read("transitions")
	assert.Equal(t, "2", r.RequestID)
	data := decode[TransitionsData](t, r)
	require.Len(t, data.Transitions, 1)
	assert.Equal(t, "reason", data.Transitions[0].FieldID)
	assert.Equal(t, "required", data.Transitions[0].State)

	// No change, no transitions, but still an answer.
	c.send("set", "3", SetData{Selector: "#agree", Value: "true"})
	data = decode[TransitionsData](t, c.read("transitions"))
	assert.Empty(t, data.Transitions)
}

func TestHandler_ToggleResetFallback(t *testing.T) {
	c := dial(t)
	c.load()

	c.send("toggle", "t", ToggleData{Selector: "#reason", Satisfied: true})
	data := decode[TransitionsData](t, c.read("transitions"))
	require.Len(t, data.Transitions, 1)
	assert.True(t, data.Transitions[0].Manual)

	c.send("snapshot", "s", nil)
	snap := decode[SnapshotData](t, c.read("snapshot"))
	assert.True(t, snap.Fields[1].Overridden)

	c.send("reset", "r", ScopeData{})
	data = decode[TransitionsData](t, c.read("transitions"))
	require.Len(t, data.Transitions, 1)
	assert.Equal(t, "hidden", data.Transitions[0].State)

	c.send("fallback", "f", FallbackData{State: "disabled", Dimension: "req"})
	data = decode[TransitionsData](t, c.read("transitions"))
	require.Len(t, data.Transitions, 1)
	assert.Equal(t, "disabled", data.Transitions[0].State)

	c.send("initialise", "i", ScopeData{Selector: "#reason"})
	data = decode[TransitionsData](t, c.read("transitions"))
	assert.Empty(t, data.Transitions)
}

func TestHandler_Attach(t *testing.T) {
	mgr := session.NewManager(session.Options{Logger: logging.Discard()})
	srv := httptest.NewServer(NewHandler(mgr, logging.Discard()))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	c1 := &client{t: t, ctx: ctx, conn: first}
	s := c1.load()
	c1.send("set", "2", SetData{Selector: "#agree", Value: "true"})
	c1.read("transitions")
	first.Close(websocket.StatusNormalClosure, "")

	second, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer second.Close(websocket.StatusNormalClosure, "")
	c2 := &client{t: t, ctx: ctx, conn: second}
	c2.send("attach", "a", AttachData{SessionID: s.SessionID})
	c2.read("session")
	snap := decode[SnapshotData](t, c2.read("snapshot"))
	assert.Equal(t, "required", string(snap.Fields[1].State))

	c2.send("attach", "b", AttachData{SessionID: "missing"})
	e := decode[ErrorData](t, c2.read("error"))
	assert.Equal(t, "not_found", e.Code)
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		data any
		code string
	}{
		{"unknown type", "execute", nil, "unknown_type"},
		{"no session", "set", SetData{Selector: "#a"}, "no_session"},
		{"empty load", "load", LoadData{}, "invalid_data"},
		{"bad format", "load", LoadData{Definition: "x", Format: "toml"}, "invalid_format"},
		{"bad definition", "load", LoadData{Definition: "fields: [{id: ''}]"}, "invalid_definition"},
		{"bad attach", "attach", AttachData{}, "invalid_data"},
	}
	c := dial(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.t = t
			c.send(tt.typ, "x", tt.data)
			e := decode[ErrorData](t, c.read("error"))
			assert.Equal(t, tt.code, e.Code)
		})
	}
}

func TestHandler_InvalidOperations(t *testing.T) {
	c := dial(t)
	c.load()

	c.send("set", "1", SetData{})
	assert.Equal(t, "invalid_data", decode[ErrorData](t, c.read("error")).Code)

	c.send("fallback", "2", FallbackData{State: "visible"})
	e := decode[ErrorData](t, c.read("error"))
	assert.Contains(t, e.Message, "hidden or disabled")

	c.send("fallback", "3", FallbackData{State: "hidden", Dimension: "sideways"})
	e = decode[ErrorData](t, c.read("error"))
	assert.Contains(t, e.Message, "unknown dimension")
}
