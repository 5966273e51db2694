//go:build linux

package process

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type systemWaiter struct{}

// Open obtains a pidfd, which keeps referring to the same process even if
// its PID is recycled.
func (systemWaiter) Open(pid uint32) (Handle, error) {
	if pid == 0 {
		return nil, &WaitError{Op: "pidfd_open", PID: pid, Code: uint32(unix.ESRCH), Err: unix.ESRCH}
	}
	fd, err := unix.PidfdOpen(int(pid), 0)
	if err != nil {
		return nil, &WaitError{Op: "pidfd_open", PID: pid, Code: errnoCode(err), Err: err}
	}
	return &pidfdHandle{pid: pid, fd: fd}, nil
}

type pidfdHandle struct {
	pid uint32
	fd  int
}

func (h *pidfdHandle) PID() uint32 { return h.pid }

// Wait polls the pidfd together with a pipe written when cancel closes.
func (h *pidfdHandle) Wait(cancel <-chan struct{}) (uint32, error) {
	if h.fd < 0 {
		return 0, &WaitError{Op: "poll", PID: h.pid, Code: uint32(unix.EBADF), Err: unix.EBADF}
	}
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return 0, &WaitError{Op: "pipe2", PID: h.pid, Code: errnoCode(err), Err: err}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-cancel:
			_, _ = unix.Write(p[1], []byte{1})
		case <-done:
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
	}()

	fds := []unix.PollFd{
		{Fd: int32(h.fd), Events: unix.POLLIN},
		{Fd: int32(p[0]), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, &WaitError{Op: "poll", PID: h.pid, Code: errnoCode(err), Err: err}
		}
		if fds[0].Revents != 0 {
			return h.reap()
		}
		if fds[1].Revents != 0 {
			return 0, ErrInterrupted
		}
	}
}

// reap collects the exit status. Only children can be reaped; for any other
// process the exit is observed but the code is unavailable.
func (h *pidfdHandle) reap() (uint32, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(int(h.pid), &ws, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.ECHILD) {
			return 0, &WaitError{Op: "wait4", PID: h.pid, Code: uint32(unix.ECHILD), Err: fmt.Errorf("%w: %v", ErrExitCodeUnavailable, err)}
		}
		if err != nil {
			return 0, &WaitError{Op: "wait4", PID: h.pid, Code: errnoCode(err), Err: err}
		}
		break
	}
	switch {
	case ws.Exited():
		return uint32(ws.ExitStatus()), nil
	case ws.Signaled():
		return uint32(128 + int(ws.Signal())), nil
	}
	return 0, &WaitError{Op: "wait4", PID: h.pid, Err: fmt.Errorf("unexpected wait status %#x", uint32(ws))}
}

func (h *pidfdHandle) Close() error {
	if h.fd < 0 {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = -1
	return err
}
