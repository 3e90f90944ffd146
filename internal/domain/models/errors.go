package models

import (
	"errors"
	"fmt"
)

// ValidationError names the offending file and field of a malformed
// definition document. Fatal at load time; nothing is partially applied.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: field %q: %s", e.File, e.Field, e.Message)
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Message)
}

// EmptyPoolError means filtering removed every symbol from the base
// universe. Fatal: callers must block, never substitute a fallback pool.
type EmptyPoolError struct {
	UniverseSize int
}

func (e *EmptyPoolError) Error() string {
	return fmt.Sprintf("pool build produced no symbols from a universe of %d", e.UniverseSize)
}

// MetricUnavailableError is recoverable: the single falsifier check is
// skipped and logged. Absence of data is never evidence of falsification.
type MetricUnavailableError struct {
	Metric string
	Scope  string
}

func (e *MetricUnavailableError) Error() string {
	return fmt.Sprintf("metric %q unavailable for scope %q", e.Metric, e.Scope)
}

// ErrNotFound is returned by registry lookups for unknown identifiers.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an identifier is re-registered with
// different content.
var ErrConflict = errors.New("identifier already registered with different content")
