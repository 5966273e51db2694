package monitor

import (
	"errors"
	"fmt"

	"github.com/loykin/librarylink/internal/process"
)

// Kind classifies monitor failures.
type Kind int

const (
	WaitFailed Kind = iota + 1
	Timeout
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case WaitFailed:
		return "wait_failed"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var (
	ErrWaitFailed = errors.New("wait failed")
	ErrTimeout    = errors.New("wait timed out")
	ErrCancelled  = errors.New("wait cancelled")
	// ErrReleased is wrapped by WaitFailed when a MonitoredProcess is reused
	// after its handle was released. Handles cannot be reacquired.
	ErrReleased = errors.New("process handle already released")
)

// Error is returned for any non-exit outcome of a wait. A non-zero exit code
// is not an Error.
type Error struct {
	Kind Kind
	PID  uint32
	Code uint32 // platform diagnostic code for WaitFailed
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("pid %d: %s", e.PID, e.sentinel())
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.sentinel() }

func (e *Error) sentinel() error {
	switch e.Kind {
	case Timeout:
		return ErrTimeout
	case Cancelled:
		return ErrCancelled
	default:
		return ErrWaitFailed
	}
}

func waitFailed(pid uint32, err error) *Error {
	e := &Error{Kind: WaitFailed, PID: pid, Err: err}
	var we *process.WaitError
	if errors.As(err, &we) {
		e.Code = we.Code
	}
	return e
}
