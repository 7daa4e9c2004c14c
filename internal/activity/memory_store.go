package activity

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory slices.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) WriteEntries(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *MemoryStore) QueryByScope(_ context.Context, scope string, opts QueryOptions) ([]Entry, string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cursorTime time.Time
	hasCursor := false
	if opts.Cursor != "" {
		if t, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			cursorTime, hasCursor = t, true
		}
	}

	var matched []Entry
	for _, e := range s.entries {
		if e.Scope != scope {
			continue
		}
		if opts.FieldID != "" && e.FieldID != opts.FieldID {
			continue
		}
		if len(opts.States) > 0 && !slices.Contains(opts.States, e.State) {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.OccurredAt.After(*opts.Until) {
			continue
		}
		if hasCursor && !e.OccurredAt.Before(cursorTime) {
			continue
		}
		matched = append(matched, e)
	}

	// Newest first; entries written in the same instant keep reverse write order.
	slices.Reverse(matched)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	totalCount := len(matched)
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var nextCursor string
	if len(matched) > limit {
		matched = matched[:limit]
		nextCursor = matched[len(matched)-1].OccurredAt.Format(time.RFC3339Nano)
	}

	return matched, nextCursor, totalCount, nil
}

func (s *MemoryStore) Search(_ context.Context, query string, opts SearchOptions) ([]Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var matched []Entry
	for _, e := range s.entries {
		if !strings.Contains(strings.ToLower(e.Summary), q) {
			continue
		}
		if opts.Scope != "" && e.Scope != opts.Scope {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	totalCount := len(matched)
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, totalCount, nil
}

func (s *MemoryStore) DeleteScope(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool { return e.Scope == scope })
	return nil
}
