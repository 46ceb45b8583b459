package model

import (
	"errors"
	"fmt"
)

var (
	// ErrHistoryUnavailable means the history store could not be read.
	// Evaluation must abort rather than run against a partial context;
	// the inbound transport is expected to redeliver the event.
	ErrHistoryUnavailable = errors.New("build history unavailable")

	// ErrUnknownActionSet means a callback referenced an action set that
	// is no longer pending. This is the normal outcome of a double-click
	// or a late click after the set was already resolved.
	ErrUnknownActionSet = errors.New("unknown or already resolved action set")

	// ErrSCMBusy means the local working copy lock could not be acquired
	// within the configured timeout. Callers should retry later.
	ErrSCMBusy = errors.New("scm working copy busy")

	// ErrNotImplemented means the configured SCM backend does not support
	// the requested operation.
	ErrNotImplemented = errors.New("not implemented for this SCM backend")
)

// RestrictionError is a non-2xx response from the SCM host's branch
// restriction API. The body is kept verbatim for diagnostics.
type RestrictionError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *RestrictionError) Error() string {
	return fmt.Sprintf("%s branch restriction: status %d: %s", e.Operation, e.StatusCode, e.Body)
}
