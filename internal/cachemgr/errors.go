// SPDX-License-Identifier: MIT

package cachemgr

import (
	"errors"
	"fmt"
)

var (
	// ErrInstallFailed wraps every install failure. The previous generation
	// stays active.
	ErrInstallFailed = errors.New("cachemgr: install failed")
	// ErrNoPending is returned by Activate when no generation is waiting.
	ErrNoPending = errors.New("cachemgr: no pending generation")
	// ErrUnavailable means a request has neither a network response nor a
	// cached fallback.
	ErrUnavailable = errors.New("cachemgr: resource unavailable offline")
	// ErrUpstream wraps transport failures reaching the origin.
	ErrUpstream = errors.New("cachemgr: origin unreachable")
	// ErrTooLarge is returned for origin bodies above the configured limit.
	ErrTooLarge = errors.New("cachemgr: response body too large")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cachemgr: manager closed")
)

// StatusError reports a non-2xx origin status where one was required.
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Path, e.Status)
}
