// Package librarylink launches sandboxed Windows apps by activation ID and
// waits for them to exit, so game libraries can track play sessions.
package librarylink

import (
	"context"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/loykin/librarylink/internal/activation"
	"github.com/loykin/librarylink/internal/apps"
	"github.com/loykin/librarylink/internal/aumid"
	cfg "github.com/loykin/librarylink/internal/config"
	"github.com/loykin/librarylink/internal/detector"
	"github.com/loykin/librarylink/internal/launcher"
	"github.com/loykin/librarylink/internal/logger"
	"github.com/loykin/librarylink/internal/metrics"
	"github.com/loykin/librarylink/internal/monitor"
	"github.com/loykin/librarylink/internal/process"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type ProcessRecord = process.Record

type ProcessListOptions = process.ListOptions

type App = apps.App

type AppSource = apps.Source

type Activator = activation.Activator

type ActivationRequest = activation.Request

type Waiter = process.Waiter

type Handle = process.Handle

type ExitCode = monitor.ExitCode

type LaunchOptions = launcher.Options

type LaunchReport = launcher.Report

type LaunchResult = launcher.Result

type Config = cfg.Config

type LogConfig = logger.Config

// Error sentinels for errors.Is.
var (
	ErrMalformed       = aumid.ErrMalformed
	ErrNotFound        = activation.ErrNotFound
	ErrAccessDenied    = activation.ErrAccessDenied
	ErrPlatformFailure = activation.ErrPlatformFailure
	ErrWaitFailed      = monitor.ErrWaitFailed
	ErrTimeout         = monitor.ErrTimeout
	ErrCancelled       = monitor.ErrCancelled
	ErrSnapshot        = process.ErrSnapshot
)

// Options selects the platform capabilities. Zero values use the system ones.
type Options struct {
	Activator Activator
	Waiter    Waiter
	Apps      AppSource
	// Shell runs Get-StartApps when Apps is nil.
	Shell  string
	Lookup func(ctx context.Context, pid uint32) (ProcessRecord, error)
	// List replaces the process snapshot. It decides which Record fields it
	// fills, so ProcessListOptions do not apply to it.
	List func(ctx context.Context) ([]ProcessRecord, error)
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Client is a thin facade over the internal packages.
// It is safe for concurrent use.
type Client struct {
	apps     AppSource
	listWith func(ctx context.Context, opts ProcessListOptions) ([]ProcessRecord, error)
	launch   *launcher.Launcher
	log      *slog.Logger
}

func New(o Options) *Client {
	if o.Apps == nil {
		o.Apps = apps.NewPowerShellSource(o.Shell, nil)
	}
	listWith := process.ListWith
	if o.List == nil {
		o.List = process.List
	} else {
		list := o.List
		listWith = func(ctx context.Context, _ ProcessListOptions) ([]ProcessRecord, error) { return list(ctx) }
	}
	log := logger.OrDiscard(o.Logger)
	return &Client{
		apps:     o.Apps,
		listWith: listWith,
		launch: launcher.New(launcher.Deps{
			Activator: o.Activator,
			Waiter:    o.Waiter,
			Apps:      o.Apps,
			Lookup:    o.Lookup,
			List:      detector.Lister(o.List),
			Clock:     o.Clock,
			Log:       log,
		}),
		log: log,
	}
}

// Processes returns a snapshot of running processes sorted by PID.
func (c *Client) Processes(ctx context.Context) ([]ProcessRecord, error) {
	return c.ProcessesWith(ctx, ProcessListOptions{})
}

// ProcessesWith is Processes with options, e.g. resolving command lines.
func (c *Client) ProcessesWith(ctx context.Context, opts ProcessListOptions) ([]ProcessRecord, error) {
	recs, err := c.listWith(ctx, opts)
	if err != nil {
		return nil, err
	}
	metrics.SetSnapshotProcesses(len(recs))
	c.log.Debug("process snapshot", "count", len(recs), "command_line", opts.CommandLine)
	return recs, nil
}

// Apps lists start-menu entries whose name contains search (any case).
// Unless all is set, entries that cannot be activated are hidden.
func (c *Client) Apps(ctx context.Context, search string, all bool) ([]App, error) {
	list, err := c.apps.List(ctx)
	if err != nil {
		return nil, err
	}
	if !all {
		list = apps.Activatable(list)
	}
	return apps.Filter(list, search), nil
}

// Launch activates id and waits for it (and, with Follow, its successors) to exit.
func (c *Client) Launch(ctx context.Context, id string, opts LaunchOptions) (LaunchResult, error) {
	return c.launch.Launch(ctx, id, opts)
}

// Resolve validates an activation ID.
func Resolve(id string) (string, error) { return aumid.Resolve(id) }

// LoadConfig reads an optional TOML file plus LIBRARYLINK_* env overrides.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewLogger builds the slog logger the CLI uses: colored text on stderr, or a
// rotating file when c.File is set. Close the returned closer when done.
func NewLogger(c LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	return logger.New(c, stderr)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// WriteMetricsTextfile writes g in the node_exporter textfile format.
func WriteMetricsTextfile(path string, g prometheus.Gatherer) error {
	return metrics.WriteTextfile(path, g)
}
