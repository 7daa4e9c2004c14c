package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/fieldstate/internal/definition"
	"github.com/matthewbaird/fieldstate/internal/engine"
	"github.com/matthewbaird/fieldstate/internal/event"
	"github.com/matthewbaird/fieldstate/internal/form"
	"github.com/matthewbaird/fieldstate/internal/logging"
)

const testForm = `
name: consent
fields:
  - id: agree
    kind: checkbox
  - id: reason
    required: "if:('#agree' :checked)"
`

func testDefinition(t *testing.T) *definition.Definition {
	t.Helper()
	def, err := definition.Parse([]byte(testForm), definition.FormatYAML)
	require.NoError(t, err)
	return def
}

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager(Options{MaxAge: time.Hour, IdleTimeout: time.Hour, Logger: logging.Discard()})
	s, err := m.Create(testDefinition(t))
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "consent", s.Form)
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSession_DoReturnsTransitions(t *testing.T) {
	var (
		mu     sync.Mutex
		shared []event.Transition
	)
	pub := event.PublisherFunc(func(_ context.Context, evt event.Transition) {
		mu.Lock()
		defer mu.Unlock()
		shared = append(shared, evt)
	})
	m := NewManager(Options{Publisher: pub, Logger: logging.Discard()})
	s, err := m.Create(testDefinition(t))
	require.NoError(t, err)

	// The initial pass hid reason; it reaches the shared publisher only.
	require.Len(t, shared, 1)
	assert.Equal(t, "hidden", shared[0].State)
	assert.Equal(t, s.ID, shared[0].Scope)

	got := s.Do(func(e *engine.Engine, _ *form.Document) {
		e.SetFieldValue("#agree", "true", "")
	})
	require.Len(t, got, 1)
	assert.Equal(t, "reason", got[0].FieldID)
	assert.Equal(t, "required", got[0].State)
	assert.Equal(t, "hidden", got[0].Previous)

	assert.Empty(t, s.Do(func(*engine.Engine, *form.Document) {}))
	assert.Len(t, shared, 2)
}

func TestSession_SnapshotAndDiagnostics(t *testing.T) {
	def, err := definition.Parse([]byte("fields: [{id: a}, {id: b, required: \"if:('#a' ==)\"}]"), definition.FormatYAML)
	require.NoError(t, err)
	m := NewManager(Options{Logger: logging.Discard()})
	s, err := m.Create(def)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ID)
	require.Len(t, s.Diagnostics(), 1)
	assert.Contains(t, s.Diagnostics()[0], "field b")
}

func TestManager_Expiry(t *testing.T) {
	m := NewManager(Options{MaxAge: time.Hour, IdleTimeout: time.Minute, Logger: logging.Discard()})
	s, err := m.Create(testDefinition(t))
	require.NoError(t, err)

	s.touchAt(time.Now().Add(-2 * time.Minute))
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestManager_Cleanup(t *testing.T) {
	m := NewManager(Options{MaxAge: time.Hour, IdleTimeout: time.Hour, Logger: logging.Discard()})
	old, err := m.Create(testDefinition(t))
	require.NoError(t, err)
	fresh, err := m.Create(testDefinition(t))
	require.NoError(t, err)

	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	assert.Equal(t, 1, m.Cleanup())

	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)
	_, err = m.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_ZeroTimeoutsNeverExpire(t *testing.T) {
	m := NewManager(Options{Logger: logging.Discard()})
	s, err := m.Create(testDefinition(t))
	require.NoError(t, err)
	s.CreatedAt = time.Now().Add(-1000 * time.Hour)
	s.touchAt(s.CreatedAt)
	assert.Equal(t, 0, m.Cleanup())
}

func TestManager_CreateBadDefinition(t *testing.T) {
	def, err := definition.Parse([]byte("callbacks: {x: 'len('}\nfields: []"), definition.FormatYAML)
	require.NoError(t, err)
	m := NewManager(Options{Logger: logging.Discard()})
	_, err = m.Create(def)
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestManager_Run(t *testing.T) {
	m := NewManager(Options{MaxAge: time.Millisecond, Logger: logging.Discard()})
	_, err := m.Create(testDefinition(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestManager_CleanupDuringDo(t *testing.T) {
	m := NewManager(Options{MaxAge: time.Hour, IdleTimeout: time.Hour, Logger: logging.Discard()})
	s, err := m.Create(testDefinition(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			v := "true"
			if i%2 == 1 {
				v = "false"
			}
			s.Do(func(e *engine.Engine, _ *form.Document) { e.SetFieldValue("#agree", v, "") })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			m.Cleanup()
			_, _ = m.Get(s.ID)
		}
	}()
	wg.Wait()

	_, err = m.Get(s.ID)
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now(), s.LastActiveAt(), time.Minute)
}
