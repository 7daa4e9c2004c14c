package form

import (
	"fmt"
	"sync"
)

// Signal is the native change notification a field emits.
type Signal string

const (
	// SignalChange fires for checkboxes, radios and selects.
	SignalChange Signal = "change"
	// SignalKeyUp fires for free-text controls.
	SignalKeyUp Signal = "keyup"
)

// SignalFor returns the signal f emits when its value changes.
func SignalFor(f *Field) Signal {
	if f.IsCheckable() || f.Tag() == "select" {
		return SignalChange
	}
	return SignalKeyUp
}

// Event is delivered to listeners when a signal is dispatched.
type Event struct {
	Field     *Field
	Signal    Signal
	Synthetic bool // dispatched by the engine rather than by an edit
}

// Listener receives dispatched events.
type Listener func(Event)

type subscription struct {
	signal   Signal
	listener Listener
}

// Document owns the fields of one form. It is not safe for concurrent use;
// callers serialise access the way a single UI thread would.
type Document struct {
	fields     []*Field
	containers []*Container
	byID       map[string]*Field
	listeners  map[*Field][]subscription
	global     []subscription

	mu        sync.Mutex
	selectors map[string]*Selector
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{
		byID:      make(map[string]*Field),
		listeners: make(map[*Field][]subscription),
		selectors: make(map[string]*Selector),
	}
}

// AddContainer registers a container. Containers are matched by query
// contexts and linked from fields.
func (d *Document) AddContainer(c *Container) *Container {
	d.containers = append(d.containers, c)
	return c
}

// Container returns the container with the given id.
func (d *Document) Container(id string) *Container {
	for _, c := range d.containers {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// AddField appends a field in document order.
func (d *Document) AddField(f *Field) error {
	if f.ID != "" {
		if _, dup := d.byID[f.ID]; dup {
			return fmt.Errorf("duplicate field id %q", f.ID)
		}
		d.byID[f.ID] = f
	}
	d.fields = append(d.fields, f)
	return nil
}

// Fields returns all fields in document order.
func (d *Document) Fields() []*Field {
	return d.fields
}

// Field returns the field with the given id, or nil.
func (d *Document) Field(id string) *Field {
	return d.byID[id]
}

// Compile parses a selector, caching the result.
func (d *Document) Compile(selector string) (*Selector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.selectors[selector]; ok {
		return s, nil
	}
	s, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	d.selectors[selector] = s
	return s, nil
}

// Query returns the fields matching selector in document order, restricted
// to fields inside containers matching context when context is non-empty.
// An empty selector matches every field. Malformed selectors match nothing.
func (d *Document) Query(selector, context string) []*Field {
	fields, _ := d.QueryErr(selector, context)
	return fields
}

// QueryErr is Query with the selector parse error exposed.
func (d *Document) QueryErr(selector, context string) ([]*Field, error) {
	var scope *Selector
	if context != "" {
		s, err := d.Compile(context)
		if err != nil {
			return nil, err
		}
		scope = s
	}
	var sel *Selector
	if selector != "" {
		s, err := d.Compile(selector)
		if err != nil {
			return nil, err
		}
		sel = s
	}
	var out []*Field
	for _, f := range d.fields {
		if scope != nil && (f.Container == nil || !scope.MatchContainer(f.Container)) {
			continue
		}
		if sel != nil && !sel.Match(f) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// QueryOne returns the first match or nil.
func (d *Document) QueryOne(selector, context string) *Field {
	if fields := d.Query(selector, context); len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Subscribe registers l for signal on f.
func (d *Document) Subscribe(f *Field, signal Signal, l Listener) {
	d.listeners[f] = append(d.listeners[f], subscription{signal: signal, listener: l})
}

// SubscribeAll registers l for signal on every field of the document.
func (d *Document) SubscribeAll(signal Signal, l Listener) {
	d.global = append(d.global, subscription{signal: signal, listener: l})
}

// Dispatch delivers a signal on f synchronously: first to f's own
// listeners, then to document-wide ones, each in subscription order.
func (d *Document) Dispatch(f *Field, signal Signal, synthetic bool) {
	evt := Event{Field: f, Signal: signal, Synthetic: synthetic}
	for _, subs := range [][]subscription{d.listeners[f], d.global} {
		for _, s := range subs {
			if s.signal == signal {
				s.listener(evt)
			}
		}
	}
}

// SetValue applies v to f the way a user edit would, keeping radio groups
// exclusive. It does not dispatch a signal.
func (d *Document) SetValue(f *Field, v string) {
	f.setValue(v)
	if f.Kind == KindRadio && f.Checked && f.Name != "" {
		for _, other := range d.fields {
			if other != f && other.Kind == KindRadio && other.Name == f.Name {
				other.Checked = false
			}
		}
	}
}
