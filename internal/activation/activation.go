// Package activation starts sandboxed applications by their activation
// identifier and hands the resulting process to the monitor.
package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/loykin/librarylink/internal/aumid"
	"github.com/loykin/librarylink/internal/logger"
	"github.com/loykin/librarylink/internal/metrics"
	"github.com/loykin/librarylink/internal/monitor"
	"github.com/loykin/librarylink/internal/process"
)

// Request is one activation. It is not modified after NewRequest.
type Request struct {
	ActivationID string
	Args         []string
}

// NewRequest copies args so later changes by the caller are not observed.
func NewRequest(id string, args ...string) Request {
	return Request{ActivationID: id, Args: slices.Clone(args)}
}

// Activator is the platform capability that starts an application and
// reports the PID of the process it created.
type Activator interface {
	Activate(ctx context.Context, req Request) (uint32, error)
}

// ActivatorFunc adapts a function to Activator.
type ActivatorFunc func(ctx context.Context, req Request) (uint32, error)

func (f ActivatorFunc) Activate(ctx context.Context, req Request) (uint32, error) {
	return f(ctx, req)
}

// Service validates, activates and attaches.
type Service struct {
	activator Activator
	waiter    process.Waiter
	log       *slog.Logger
}

// NewService wires an activator to a waiter. A nil activator selects System()
// and a nil waiter selects process.NewWaiter().
func NewService(a Activator, w process.Waiter, log *slog.Logger) *Service {
	if a == nil {
		a = System()
	}
	if w == nil {
		w = process.NewWaiter()
	}
	return &Service{activator: a, waiter: w, log: logger.OrDiscard(log)}
}

// Activate starts the application and returns it attached, ready for
// Monitor.Wait. Malformed identifiers never reach the platform.
func (s *Service) Activate(ctx context.Context, req Request) (*monitor.MonitoredProcess, error) {
	id, err := aumid.Parse(req.ActivationID)
	if err != nil {
		metrics.IncActivation(metrics.OutcomeMalformed)
		return nil, err
	}
	req.ActivationID = id.String()
	if ctx.Err() != nil {
		metrics.IncWait(metrics.OutcomeCancelled)
		return nil, &monitor.Error{Kind: monitor.Cancelled, Err: context.Cause(ctx)}
	}

	s.log.Debug("activating", "aumid", req.ActivationID, "args", len(req.Args))
	pid, err := s.activator.Activate(ctx, req)
	if err != nil {
		var ae *Error
		if !errors.As(err, &ae) {
			err = &Error{Kind: PlatformFailure, ActivationID: req.ActivationID, Err: err}
		}
		metrics.IncActivation(Outcome(err))
		s.log.Warn("activation failed", "aumid", req.ActivationID, "err", err)
		return nil, err
	}
	if pid == 0 {
		metrics.IncActivation(metrics.OutcomePlatformFailure)
		return nil, &Error{Kind: PlatformFailure, ActivationID: req.ActivationID, Err: fmt.Errorf("no process id returned")}
	}
	metrics.IncActivation(metrics.OutcomeOK)
	s.log.Info("activated", "aumid", req.ActivationID, "pid", pid)

	mp, err := monitor.Attach(s.waiter, pid)
	if err != nil {
		metrics.IncWait(metrics.OutcomeWaitFailed)
		s.log.Error("attach failed", "aumid", req.ActivationID, "pid", pid, "err", err)
		return nil, err
	}
	return mp, nil
}
