package engine

import (
	"errors"
	"strings"
)

var (
	// ErrDependencyCycle is matched by every *CycleError.
	ErrDependencyCycle = errors.New("dependency cycle")
	// ErrPropagationLimit is recorded when a re-evaluation pass exceeds
	// its budget and the remaining queue is dropped.
	ErrPropagationLimit = errors.New("propagation limit exceeded")
)

// CycleError is recorded when wiring Field to Contingent would close a
// cycle. Path lists field ids from the contingent field back to itself.
type CycleError struct {
	Field      string
	Contingent string
	Path       []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) Unwrap() error { return ErrDependencyCycle }
