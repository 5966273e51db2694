package process

import (
	"errors"
	"fmt"
	"syscall"
)

// Handle is an open, waitable reference to a process. It stays valid even if
// the PID is reused, until Close.
type Handle interface {
	PID() uint32
	// Wait blocks without polling until the process exits or cancel is
	// closed. It returns the OS exit code, or ErrInterrupted if cancel won.
	Wait(cancel <-chan struct{}) (uint32, error)
	// Close releases the handle. It never terminates the process.
	Close() error
}

// Waiter opens handles by PID.
type Waiter interface {
	Open(pid uint32) (Handle, error)
}

var (
	// ErrInterrupted is returned by Handle.Wait when the cancel signal fired first.
	ErrInterrupted = errors.New("wait interrupted")
	// ErrExitCodeUnavailable means the process exited but its status cannot be read,
	// e.g. it is not a child of this process on Linux.
	ErrExitCodeUnavailable = errors.New("exit code unavailable")
)

// WaitError is an OS-level failure to open or wait on a process.
type WaitError struct {
	Op   string
	PID  uint32
	Code uint32 // platform error code (Win32 error or errno), 0 if none
	Err  error
}

func (e *WaitError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s pid %d: %v (code %d)", e.Op, e.PID, e.Err, e.Code)
	}
	return fmt.Sprintf("%s pid %d: %v", e.Op, e.PID, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }

// NewWaiter returns the waiter for the running platform.
func NewWaiter() Waiter { return systemWaiter{} }

func errnoCode(err error) uint32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}
