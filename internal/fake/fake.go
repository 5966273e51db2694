// Package fake provides in-memory stand-ins for the platform capabilities
// (activation, process wait, app listing) so launch flows can be tested on
// any OS.
package fake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/loykin/librarylink/internal/activation"
	"github.com/loykin/librarylink/internal/apps"
	"github.com/loykin/librarylink/internal/process"
)

// Handle simulates an open process handle.
type Handle struct {
	Pid uint32
	// Code is returned when the process "exits".
	Code uint32
	// Err is returned by Wait instead of an exit code.
	Err error
	// Exit, when non-nil, blocks Wait until it is closed. A nil Exit with
	// Block set waits for cancel only.
	Exit  chan struct{}
	Block bool

	waits  atomic.Int32
	closes atomic.Int32
}

func (h *Handle) PID() uint32 { return h.Pid }

func (h *Handle) Wait(cancel <-chan struct{}) (uint32, error) {
	h.waits.Add(1)
	if h.Err != nil {
		return 0, h.Err
	}
	switch {
	case h.Exit != nil:
		select {
		case <-h.Exit:
			return h.Code, nil
		case <-cancel:
			return 0, process.ErrInterrupted
		}
	case h.Block:
		<-cancel
		return 0, process.ErrInterrupted
	}
	return h.Code, nil
}

func (h *Handle) Close() error {
	h.closes.Add(1)
	return nil
}

// Waits reports how many times Wait was called.
func (h *Handle) Waits() int { return int(h.waits.Load()) }

// Closes reports how many times Close was called.
func (h *Handle) Closes() int { return int(h.closes.Load()) }

// Waiter hands out registered Handles.
type Waiter struct {
	mu      sync.Mutex
	handles map[uint32]*Handle
	opened  []uint32
}

// NewWaiter registers hs by PID.
func NewWaiter(hs ...*Handle) *Waiter {
	w := &Waiter{handles: make(map[uint32]*Handle)}
	for _, h := range hs {
		w.handles[h.Pid] = h
	}
	return w
}

// Add registers h.
func (w *Waiter) Add(h *Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handles[h.Pid] = h
}

func (w *Waiter) Open(pid uint32) (process.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened = append(w.opened, pid)
	h, ok := w.handles[pid]
	if !ok {
		return nil, &process.WaitError{Op: "open", PID: pid, Code: 87, Err: errors.New("invalid parameter")}
	}
	return h, nil
}

// Opened lists the PIDs passed to Open, in order.
func (w *Waiter) Opened() []uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint32(nil), w.opened...)
}

// Activator maps activation IDs to PIDs. Unknown IDs fail with NotFound,
// the way the platform reports an uninstalled package.
type Activator struct {
	mu    sync.Mutex
	apps  map[string]uint32
	errs  map[string]error
	calls []activation.Request
}

func NewActivator() *Activator {
	return &Activator{apps: make(map[string]uint32), errs: make(map[string]error)}
}

// Install makes id activatable as pid.
func (a *Activator) Install(id string, pid uint32) *Activator {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apps[id] = pid
	return a
}

// Fail makes activating id return err.
func (a *Activator) Fail(id string, err error) *Activator {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs[id] = err
	return a
}

func (a *Activator) Activate(_ context.Context, req activation.Request) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, req)
	if err, ok := a.errs[req.ActivationID]; ok {
		return 0, err
	}
	pid, ok := a.apps[req.ActivationID]
	if !ok {
		return 0, activation.FromHRESULT(req.ActivationID, 0x80073CF1, errors.New("package not installed"))
	}
	return pid, nil
}

// Calls returns the requests received so far.
func (a *Activator) Calls() []activation.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]activation.Request(nil), a.calls...)
}

// Source is a fixed app list.
type Source struct {
	Apps []apps.App
	Err  error
}

func (s Source) List(context.Context) ([]apps.App, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := append([]apps.App(nil), s.Apps...)
	apps.Sort(out)
	return out, nil
}
