// Package activity stores the transition history of field-state sessions.
package activity

import "time"

// QueryOptions controls filtering and pagination for scope queries.
type QueryOptions struct {
	FieldID string     // restrict to one field
	States  []string   // restrict to transitions into these states
	Since   *time.Time // inclusive lower bound
	Until   *time.Time // inclusive upper bound
	Limit   int        // max results (default: 100, max: 500)
	Cursor  string     // cursor for pagination
}

// SearchOptions controls filtering for summary search.
type SearchOptions struct {
	Scope string     // restrict to one scope
	Since *time.Time // filter by time
	Limit int        // max results (default: 20)
}

// DefaultQueryOptions returns QueryOptions with sensible defaults.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{Limit: 100}
}

// DefaultSearchOptions returns SearchOptions with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit: 20,
	}
}
