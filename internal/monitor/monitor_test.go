package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/loykin/librarylink/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle simulates an OS process handle.
type fakeHandle struct {
	pid    uint32
	code   uint32
	err    error
	block  bool // block until cancel fires
	waits  atomic.Int32
	closes atomic.Int32
}

func (h *fakeHandle) PID() uint32 { return h.pid }

func (h *fakeHandle) Wait(cancel <-chan struct{}) (uint32, error) {
	h.waits.Add(1)
	if h.err != nil {
		return 0, h.err
	}
	if h.block {
		<-cancel
		return 0, process.ErrInterrupted
	}
	return h.code, nil
}

func (h *fakeHandle) Close() error {
	h.closes.Add(1)
	return nil
}

type fakeWaiter struct {
	handles map[uint32]*fakeHandle
	openErr error
}

func (w fakeWaiter) Open(pid uint32) (process.Handle, error) {
	if w.openErr != nil {
		return nil, w.openErr
	}
	h, ok := w.handles[pid]
	if !ok {
		return nil, &process.WaitError{Op: "open", PID: pid, Code: 87, Err: errors.New("invalid parameter")}
	}
	return h, nil
}

func attach(t *testing.T, h *fakeHandle) *MonitoredProcess {
	t.Helper()
	mp, err := Attach(fakeWaiter{handles: map[uint32]*fakeHandle{h.pid: h}}, h.pid)
	require.NoError(t, err)
	require.Equal(t, StateIdle, mp.State())
	return mp
}

func TestWait_ReturnsExitCodeVerbatim(t *testing.T) {
	h := &fakeHandle{pid: 100, code: 42}
	mp := attach(t, h)
	code, err := New(nil, clockwork.NewFakeClock()).Wait(context.Background(), mp, 0)
	require.NoError(t, err)
	assert.Equal(t, ExitCode(42), code)
	assert.Equal(t, StateExited, mp.State())
	assert.Equal(t, ExitCode(42), mp.Code())
	assert.Equal(t, int32(1), h.closes.Load())
}

func TestWait_ExitBeforeTimeout(t *testing.T) {
	h := &fakeHandle{pid: 101, code: 0}
	mp := attach(t, h)
	code, err := New(nil, clockwork.NewFakeClock()).Wait(context.Background(), mp, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ExitCode(0), code)
	assert.Equal(t, int32(1), h.closes.Load())
}

func TestWait_TimeoutReleasesHandleWithoutRetry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	h := &fakeHandle{pid: 102, block: true}
	mp := attach(t, h)

	errCh := make(chan error, 1)
	go func() {
		_, err := New(nil, fc).Wait(context.Background(), mp, 5*time.Second)
		errCh <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(5 * time.Second)

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTimeout))
		var me *Error
		require.True(t, errors.As(err, &me))
		assert.Equal(t, Timeout, me.Kind)
		assert.Equal(t, uint32(102), me.PID)
	case <-ctx.Done():
		t.Fatal("wait did not time out")
	}
	assert.Equal(t, StateTimedOut, mp.State())
	assert.Equal(t, int32(1), h.closes.Load())
	assert.Equal(t, int32(1), h.waits.Load())
}

func TestWait_ContextCancel(t *testing.T) {
	h := &fakeHandle{pid: 103, block: true}
	mp := attach(t, h)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := New(nil, clockwork.NewFakeClock()).Wait(ctx, mp, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateCancelled, mp.State())
	assert.Equal(t, int32(1), h.closes.Load())
}

func TestWait_FailedIsTerminalAndNotRetried(t *testing.T) {
	osErr := &process.WaitError{Op: "WaitForMultipleObjects", PID: 104, Code: 6, Err: errors.New("the handle is invalid")}
	h := &fakeHandle{pid: 104, err: osErr}
	mp := attach(t, h)
	m := New(nil, clockwork.NewFakeClock())

	_, err := m.Wait(context.Background(), mp, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWaitFailed))
	assert.False(t, errors.Is(err, ErrTimeout))
	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, uint32(6), me.Code)
	assert.True(t, errors.Is(err, osErr))
	assert.Equal(t, StateFailed, mp.State())

	// a second wait must not touch the released handle
	_, err = m.Wait(context.Background(), mp, 0)
	assert.True(t, errors.Is(err, ErrReleased))
	assert.True(t, errors.Is(err, ErrWaitFailed))
	assert.Equal(t, int32(1), h.waits.Load())
	assert.Equal(t, int32(1), h.closes.Load())
}

func TestAttach_OpenFailureIsWaitFailed(t *testing.T) {
	_, err := Attach(fakeWaiter{}, 555)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWaitFailed))
	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, uint32(87), me.Code)
	assert.Equal(t, uint32(555), me.PID)
}

func TestClose_ReleasesOnce(t *testing.T) {
	h := &fakeHandle{pid: 105}
	mp := attach(t, h)
	require.NoError(t, mp.Close())
	require.NoError(t, mp.Close())
	assert.Equal(t, int32(1), h.closes.Load())
	assert.Equal(t, StateCancelled, mp.State())

	_, err := New(nil, nil).Wait(context.Background(), mp, 0)
	assert.True(t, errors.Is(err, ErrReleased))
	assert.Equal(t, int32(0), h.waits.Load())
}

func TestWait_NilProcess(t *testing.T) {
	_, err := New(nil, nil).Wait(context.Background(), nil, 0)
	assert.True(t, errors.Is(err, ErrWaitFailed))
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.False(t, StateWaiting.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.Equal(t, "timeout", Timeout.String())
}
