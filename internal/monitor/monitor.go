// Package monitor waits for activated processes to exit.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/loykin/librarylink/internal/logger"
	"github.com/loykin/librarylink/internal/metrics"
	"github.com/loykin/librarylink/internal/process"
)

// State of a MonitoredProcess.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateExited
	StateFailed
	StateTimedOut
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateExited:
		return "exited"
	case StateFailed:
		return "wait_failed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s >= StateExited }

// ExitCode is the OS exit code of a monitored process.
type ExitCode uint32

// MonitoredProcess owns the handle of one process. It is not safe for
// concurrent use; a single call path owns it from Attach to release.
type MonitoredProcess struct {
	pid    uint32
	handle process.Handle
	state  State
	code   ExitCode
}

// Attach opens a handle for pid. Failing to open is reported as WaitFailed
// since the process cannot be monitored.
func Attach(w process.Waiter, pid uint32) (*MonitoredProcess, error) {
	h, err := w.Open(pid)
	if err != nil {
		return nil, waitFailed(pid, err)
	}
	return &MonitoredProcess{pid: pid, handle: h, state: StateIdle}, nil
}

func (mp *MonitoredProcess) PID() uint32    { return mp.pid }
func (mp *MonitoredProcess) State() State   { return mp.state }
func (mp *MonitoredProcess) Code() ExitCode { return mp.code }

// Close releases the handle without waiting. It is a no-op once released.
func (mp *MonitoredProcess) Close() error {
	if mp.handle == nil {
		return nil
	}
	if !mp.state.Terminal() {
		mp.state = StateCancelled
	}
	return mp.release()
}

func (mp *MonitoredProcess) release() error {
	if mp.handle == nil {
		return nil
	}
	err := mp.handle.Close()
	mp.handle = nil
	return err
}

// Monitor performs blocking waits. The zero value is not usable; use New.
type Monitor struct {
	clock clockwork.Clock
	log   *slog.Logger
}

// New returns a Monitor. A nil clock selects the real clock.
func New(log *slog.Logger, clock clockwork.Clock) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{clock: clock, log: logger.OrDiscard(log)}
}

const (
	firedNone int32 = iota
	firedTimeout
	firedCancel
)

// Wait blocks until the process exits, timeout elapses (when > 0) or ctx is
// done. The handle is released on every return path. Timing out never
// terminates the process.
func (m *Monitor) Wait(ctx context.Context, mp *MonitoredProcess, timeout time.Duration) (ExitCode, error) {
	if mp == nil {
		return 0, &Error{Kind: WaitFailed, Err: ErrReleased}
	}
	if mp.handle == nil || mp.state != StateIdle {
		return 0, &Error{Kind: WaitFailed, PID: mp.pid, Err: ErrReleased}
	}
	mp.state = StateWaiting
	defer func() { _ = mp.release() }()

	var timerC <-chan time.Time
	if timeout > 0 {
		t := m.clock.NewTimer(timeout)
		defer t.Stop()
		timerC = t.Chan()
	}

	var fired atomic.Int32
	cancel := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			fired.Store(firedCancel)
			close(cancel)
		case <-timerC:
			fired.Store(firedTimeout)
			close(cancel)
		case <-stop:
		}
	}()

	start := m.clock.Now()
	m.log.Debug("waiting for process", "pid", mp.pid, "timeout", timeout)
	code, err := mp.handle.Wait(cancel)
	close(stop)
	elapsed := m.clock.Since(start)

	switch {
	case err == nil:
		mp.state = StateExited
		mp.code = ExitCode(code)
		metrics.IncWait(metrics.OutcomeExited)
		metrics.SetLastExitCode(code)
		m.log.Info("process exited", "pid", mp.pid, "exit_code", code, "elapsed", elapsed)
		return mp.code, nil
	case errors.Is(err, process.ErrInterrupted) && fired.Load() == firedTimeout:
		mp.state = StateTimedOut
		metrics.IncWait(metrics.OutcomeTimeout)
		m.log.Warn("wait timed out; process left running", "pid", mp.pid, "timeout", timeout)
		return 0, &Error{Kind: Timeout, PID: mp.pid}
	case errors.Is(err, process.ErrInterrupted):
		mp.state = StateCancelled
		metrics.IncWait(metrics.OutcomeCancelled)
		m.log.Warn("wait cancelled", "pid", mp.pid, "elapsed", elapsed)
		return 0, &Error{Kind: Cancelled, PID: mp.pid, Err: context.Cause(ctx)}
	default:
		mp.state = StateFailed
		metrics.IncWait(metrics.OutcomeWaitFailed)
		m.log.Error("wait failed", "pid", mp.pid, "err", err)
		return 0, waitFailed(mp.pid, err)
	}
}
