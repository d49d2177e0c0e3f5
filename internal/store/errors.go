package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a query has no matching scan.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRange is returned for an unusable query argument, such as a
	// window whose start lies after its end.
	ErrInvalidRange = errors.New("invalid range")
)

// QueryError describes a failed query. It wraps ErrNotFound or
// ErrInvalidRange. The store is unchanged by a failed query.
type QueryError struct {
	Op     string
	Detail string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("store: %s: %v: %s", e.Op, e.Err, e.Detail)
}

func (e *QueryError) Unwrap() error { return e.Err }

func notFound(op, format string, args ...any) error {
	return &QueryError{Op: op, Detail: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

func invalidRange(op, format string, args ...any) error {
	return &QueryError{Op: op, Detail: fmt.Sprintf(format, args...), Err: ErrInvalidRange}
}
