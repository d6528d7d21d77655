package storage

import "errors"

// ErrNotFound is returned when a scoped mutation or lookup affects zero rows:
// the record either does not exist or belongs to a different principal. The
// two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("storage: not found")

// Error marks a failure originating in the store backend. Callers use it to
// tell store failures apart from unanticipated errors when deciding what to
// surface.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }
