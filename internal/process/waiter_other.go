//go:build !windows && !linux

package process

import "errors"

type systemWaiter struct{}

func (systemWaiter) Open(pid uint32) (Handle, error) {
	return nil, &WaitError{Op: "open", PID: pid, Err: errors.ErrUnsupported}
}
