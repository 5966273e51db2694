package main

import (
	"errors"
	"fmt"

	"github.com/loykin/librarylink"
)

// Process exit codes for errors. A finished launch exits with the launched
// process's own code instead.
const (
	ExitOK              = 0
	ExitUsage           = 1
	ExitMalformed       = 2
	ExitNotFound        = 3
	ExitAccessDenied    = 4
	ExitPlatformFailure = 5
	ExitWaitFailed      = 6
	ExitTimeout         = 7
	ExitCancelled       = 8
	ExitSnapshot        = 9
)

// exitError carries a code that is not a failure, such as a forwarded
// process exit code.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func exitCodeFor(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, librarylink.ErrMalformed):
		return ExitMalformed
	case errors.Is(err, librarylink.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, librarylink.ErrAccessDenied):
		return ExitAccessDenied
	case errors.Is(err, librarylink.ErrPlatformFailure):
		return ExitPlatformFailure
	case errors.Is(err, librarylink.ErrWaitFailed):
		return ExitWaitFailed
	case errors.Is(err, librarylink.ErrTimeout):
		return ExitTimeout
	case errors.Is(err, librarylink.ErrCancelled):
		return ExitCancelled
	case errors.Is(err, librarylink.ErrSnapshot):
		return ExitSnapshot
	default:
		return ExitUsage
	}
}
