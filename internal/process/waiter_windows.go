//go:build windows

package process

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

type systemWaiter struct{}

func (systemWaiter) Open(pid uint32) (Handle, error) {
	h, err := windows.OpenProcess(windows.SYNCHRONIZE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return nil, &WaitError{Op: "OpenProcess", PID: pid, Code: errnoCode(err), Err: err}
	}
	return &winHandle{pid: pid, h: h}, nil
}

type winHandle struct {
	pid uint32
	h   windows.Handle
}

func (w *winHandle) PID() uint32 { return w.pid }

// Wait blocks in WaitForMultipleObjects on the process handle and a manual
// reset event that is signalled when cancel closes.
func (w *winHandle) Wait(cancel <-chan struct{}) (uint32, error) {
	if w.h == 0 {
		return 0, &WaitError{Op: "wait", PID: w.pid, Err: windows.ERROR_INVALID_HANDLE, Code: uint32(windows.ERROR_INVALID_HANDLE)}
	}
	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return 0, &WaitError{Op: "CreateEvent", PID: w.pid, Code: errnoCode(err), Err: err}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-cancel:
			_ = windows.SetEvent(ev)
		case <-done:
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
		_ = windows.CloseHandle(ev)
	}()

	event, err := windows.WaitForMultipleObjects([]windows.Handle{w.h, ev}, false, windows.INFINITE)
	if err != nil {
		return 0, &WaitError{Op: "WaitForMultipleObjects", PID: w.pid, Code: errnoCode(err), Err: err}
	}
	switch event {
	case windows.WAIT_OBJECT_0:
		var code uint32
		if err := windows.GetExitCodeProcess(w.h, &code); err != nil {
			return 0, &WaitError{Op: "GetExitCodeProcess", PID: w.pid, Code: errnoCode(err), Err: err}
		}
		return code, nil
	case windows.WAIT_OBJECT_0 + 1:
		return 0, ErrInterrupted
	default:
		return 0, &WaitError{Op: "WaitForMultipleObjects", PID: w.pid, Code: event, Err: fmt.Errorf("unexpected wait result 0x%x", event)}
	}
}

func (w *winHandle) Close() error {
	if w.h == 0 {
		return nil
	}
	err := windows.CloseHandle(w.h)
	w.h = 0
	return err
}
