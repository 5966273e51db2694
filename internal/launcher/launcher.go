// Package launcher runs one activation from identifier to exit code.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/loykin/librarylink/internal/activation"
	"github.com/loykin/librarylink/internal/apps"
	"github.com/loykin/librarylink/internal/aumid"
	"github.com/loykin/librarylink/internal/detector"
	"github.com/loykin/librarylink/internal/logger"
	"github.com/loykin/librarylink/internal/metrics"
	"github.com/loykin/librarylink/internal/monitor"
	"github.com/loykin/librarylink/internal/process"
)

// DefaultFollowGrace is how long to wait for a replacement process.
const DefaultFollowGrace = 2 * time.Second

// Options for one launch.
type Options struct {
	// Timeout bounds the whole wait, including followed processes. 0 waits forever.
	Timeout time.Duration
	// Follow keeps monitoring processes started from the same install directory.
	Follow      bool
	FollowGrace time.Duration
	// VerifyInstalled checks the start menu before asking the platform.
	VerifyInstalled bool
	// Describe looks up the start menu display name. A failed lookup is only
	// logged. VerifyInstalled implies it.
	Describe bool
	Args     []string

	// OnActivated is called once the first process is attached.
	OnActivated func(Report)
	// OnFollow is called for each replacement process.
	OnFollow func(Report)
}

// Report describes a process being monitored.
type Report struct {
	ActivationID      string
	PackageFamilyName string
	// Name is the start menu display name, empty unless looked up.
	Name string
	PID  uint32
	Path string
}

// Result of a completed launch.
type Result struct {
	// RunID correlates the log lines of one launch.
	RunID             string           `json:"run_id"`
	ActivationID      string           `json:"aumid"`
	PackageFamilyName string           `json:"package_family_name"`
	Name              string           `json:"name,omitempty"`
	PID               uint32           `json:"pid"`
	Path              string           `json:"path"`
	ExitCode          monitor.ExitCode `json:"exit_code"`
	Followed          int              `json:"followed"`
	Elapsed           time.Duration    `json:"elapsed"`
}

// Deps are the capabilities a Launcher uses. Zero fields select the system
// implementation.
type Deps struct {
	Activator activation.Activator
	Waiter    process.Waiter
	Apps      apps.Source
	Lookup    func(ctx context.Context, pid uint32) (process.Record, error)
	List      detector.Lister
	Clock     clockwork.Clock
	Log       *slog.Logger
}

// Launcher is safe for concurrent use; each Launch owns its processes.
type Launcher struct {
	svc    *activation.Service
	mon    *monitor.Monitor
	waiter process.Waiter
	apps   apps.Source
	lookup func(ctx context.Context, pid uint32) (process.Record, error)
	list   detector.Lister
	clock  clockwork.Clock
	log    *slog.Logger
}

// New wires d.
func New(d Deps) *Launcher {
	log := logger.OrDiscard(d.Log)
	if d.Waiter == nil {
		d.Waiter = process.NewWaiter()
	}
	if d.Apps == nil {
		d.Apps = apps.NewPowerShellSource(apps.DefaultShell, nil)
	}
	if d.Lookup == nil {
		d.Lookup = process.Lookup
	}
	if d.List == nil {
		d.List = process.List
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	return &Launcher{
		svc:    activation.NewService(d.Activator, d.Waiter, log),
		mon:    monitor.New(log, d.Clock),
		waiter: d.Waiter,
		apps:   d.Apps,
		lookup: d.Lookup,
		list:   d.List,
		clock:  d.Clock,
		log:    log,
	}
}

// Launch resolves id, activates it and waits for exit. A non-zero exit code
// is a successful Result, not an error.
func (l *Launcher) Launch(ctx context.Context, id string, opts Options) (res Result, err error) {
	start := l.clock.Now()
	res.RunID = uuid.NewString()
	res.ActivationID = id
	log := l.log.With("run_id", res.RunID)
	defer func() {
		res.Elapsed = l.clock.Since(start)
		metrics.ObserveRunDuration(res.Elapsed.Seconds())
	}()

	parsed, err := aumid.Parse(id)
	if err != nil {
		metrics.IncActivation(metrics.OutcomeMalformed)
		return res, err
	}
	resolved := parsed.String()
	res.ActivationID = resolved
	res.PackageFamilyName = parsed.PackageFamilyName

	if opts.VerifyInstalled || opts.Describe {
		if res.Name, err = l.describe(ctx, log, resolved, opts.VerifyInstalled); err != nil {
			return res, err
		}
	}
	report := func(pid uint32, path string) Report {
		return Report{ActivationID: resolved, PackageFamilyName: res.PackageFamilyName, Name: res.Name, PID: pid, Path: path}
	}

	mp, err := l.svc.Activate(ctx, activation.NewRequest(resolved, opts.Args...))
	if err != nil {
		return res, err
	}
	res.PID = mp.PID()
	res.Path = l.pathOf(ctx, log, mp.PID())
	log.Info("launched", "aumid", resolved, "name", res.Name, "pid", res.PID, "path", res.Path)
	if opts.OnActivated != nil {
		opts.OnActivated(report(res.PID, res.Path))
	}

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = start.Add(opts.Timeout)
	}
	var det detector.Detector
	if opts.Follow {
		det = detector.NewDirDetector(res.Path, l.list)
	}
	grace := opts.FollowGrace
	if grace <= 0 {
		grace = DefaultFollowGrace
	}
	seen := []uint32{mp.PID()}

	for {
		timeout, ok := l.remaining(deadline)
		if !ok {
			_ = mp.Close()
			metrics.IncWait(metrics.OutcomeTimeout)
			return res, &monitor.Error{Kind: monitor.Timeout, PID: mp.PID()}
		}
		code, err := l.mon.Wait(ctx, mp, timeout)
		if err != nil {
			return res, err
		}
		res.ExitCode = code
		if det == nil || detector.DirOf(res.Path) == "" {
			break
		}

		next, err := l.follow(ctx, log, det, grace, deadline, seen)
		if err != nil {
			return res, err
		}
		if next == nil {
			break
		}
		mp = next
		seen = append(seen, mp.PID())
		res.Followed++
		rep := report(mp.PID(), l.pathOf(ctx, log, mp.PID()))
		log.Info("following replacement process", "aumid", resolved, "pid", rep.PID, "path", rep.Path)
		if opts.OnFollow != nil {
			opts.OnFollow(rep)
		}
	}
	log.Info("launch finished", "aumid", resolved, "exit_code", uint32(res.ExitCode), "followed", res.Followed, "elapsed", l.clock.Since(start))
	return res, nil
}

// describe returns the start menu name of id. With required set, a missing
// entry is NotFound and a failed listing is returned; otherwise both are
// logged and the name stays empty.
func (l *Launcher) describe(ctx context.Context, log *slog.Logger, id string, required bool) (string, error) {
	list, err := l.apps.List(ctx)
	if err != nil {
		if required {
			return "", err
		}
		log.Warn("app lookup failed", "aumid", id, "err", err)
		return "", nil
	}
	app, ok := apps.Find(list, id)
	if !ok {
		if required {
			metrics.IncActivation(metrics.OutcomeNotFound)
			return "", &activation.Error{Kind: activation.NotFound, ActivationID: id, Err: fmt.Errorf("not among %d installed apps", len(list))}
		}
		log.Warn("app not listed in start menu", "aumid", id)
		return "", nil
	}
	return app.DisplayName, nil
}

// follow waits the grace period and attaches to a replacement. It returns
// nil when the chain ends; snapshot and attach failures end it with a
// warning and the previous exit code stands. Cancellation is an error.
func (l *Launcher) follow(ctx context.Context, log *slog.Logger, det detector.Detector, grace time.Duration, deadline time.Time, seen []uint32) (*monitor.MonitoredProcess, error) {
	last := seen[len(seen)-1]
	rem, ok := l.remaining(deadline)
	if !ok {
		return nil, nil
	}
	if rem > 0 && rem < grace {
		grace = rem
	}
	select {
	case <-l.clock.After(grace):
	case <-ctx.Done():
		return nil, cancelled(ctx, last)
	}
	rec, found, err := det.Detect(ctx, seen...)
	if ctx.Err() != nil {
		return nil, cancelled(ctx, last)
	}
	if err != nil {
		log.Warn("follow: process snapshot failed", "detector", det.Describe(), "err", err)
		return nil, nil
	}
	if !found {
		log.Debug("follow: no replacement process", "detector", det.Describe())
		return nil, nil
	}
	mp, err := monitor.Attach(l.waiter, rec.PID)
	if err != nil {
		log.Warn("follow: attach failed", "pid", rec.PID, "err", err)
		return nil, nil
	}
	return mp, nil
}

func cancelled(ctx context.Context, pid uint32) error {
	metrics.IncWait(metrics.OutcomeCancelled)
	return &monitor.Error{Kind: monitor.Cancelled, PID: pid, Err: context.Cause(ctx)}
}

// remaining returns the time left before deadline. A zero deadline means no
// limit and yields (0, true).
func (l *Launcher) remaining(deadline time.Time) (time.Duration, bool) {
	if deadline.IsZero() {
		return 0, true
	}
	rem := deadline.Sub(l.clock.Now())
	return rem, rem > 0
}

func (l *Launcher) pathOf(ctx context.Context, log *slog.Logger, pid uint32) string {
	rec, err := l.lookup(ctx, pid)
	if err != nil {
		log.Debug("lookup failed", "pid", pid, "err", err)
		return ""
	}
	return rec.Path
}
