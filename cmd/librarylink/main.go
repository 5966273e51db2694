package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/librarylink"
	"github.com/loykin/librarylink/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// registry holds the librarylink collectors only, so a metrics textfile
// never duplicates the Go runtime metrics node_exporter already exports.
var registry = prometheus.NewRegistry()

func main() {
	attachConsole()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, librarylink.Options{})
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code. base supplies the
// platform capabilities; tests swap in fakes.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, base librarylink.Options) int {
	s := &session{base: base, stdout: stdout, stderr: stderr}
	defer s.close()

	root := buildRoot(s)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)

	code := exitCodeFor(err)
	var ee *exitError
	if err != nil && !errors.As(err, &ee) {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		if code == ExitUsage {
			_, _ = fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", root.Name())
		}
	}
	return code
}

// session is the per-invocation state built once flags are parsed.
type session struct {
	global GlobalFlags
	base   librarylink.Options
	stdout io.Writer
	stderr io.Writer

	cmd    command
	closer io.Closer
}

func (s *session) setup(cmd *cobra.Command) error {
	cfg, err := librarylink.LoadConfig(s.global.ConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = s.global.LogLevel
	}
	if cmd.Flags().Changed("log-file") {
		cfg.Log.File = s.global.LogFile
	}
	log, closer, err := logger.New(cfg.Log, s.stderr)
	if err != nil {
		return err
	}
	s.closer = closer
	if err := librarylink.RegisterMetrics(registry); err != nil {
		log.Warn("metrics registration failed", "err", err)
	}

	opts := s.base
	opts.Logger = log
	if opts.Shell == "" {
		opts.Shell = cfg.Apps.Shell
	}
	s.cmd = command{
		client: librarylink.New(opts),
		cfg:    cfg,
		reg:    registry,
		stdout: s.stdout,
		log:    log,
	}
	return nil
}

func (s *session) close() {
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

// buildRoot creates the root command with all subcommands.
func buildRoot(s *session) *cobra.Command {
	root := createRootCommand(s)
	root.AddCommand(
		createProcessesCommand(s, &ProcessesFlags{}),
		createLaunchCommand(s, &LaunchFlags{}),
		createListAppsCommand(s, &ListAppsFlags{}),
	)
	return root
}

// createRootCommand creates the root command with persistent flags
func createRootCommand(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:   "librarylink",
		Short: "Launch sandboxed Windows apps and wait for them to exit",
		Long: `librarylink starts Microsoft Store / Game Pass apps by their AUMID and stays
alive until the app exits, so game libraries can track play time.

Examples:
  librarylink list-apps --search forza
  librarylink uwp-launch Microsoft.ForzaHorizon5_8wekyb3d8bbwe!ForzaHorizon5 --follow
  librarylink processes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&s.global.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&s.global.LogLevel, "log-level", logger.DefaultLevel, "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&s.global.LogFile, "log-file", "", "write logs to a rotating file instead of stderr")
	return root
}

// createProcessesCommand creates the processes subcommand
func createProcessesCommand(s *session, f *ProcessesFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processes",
		Short: "List running processes with their executable paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.cmd.Processes(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.CommandLine, "command-line", false, "also show each process command line (slower)")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

// createLaunchCommand creates the uwp-launch subcommand
func createLaunchCommand(s *session, f *LaunchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uwp-launch <activation-id> [-- args...]",
		Short: "Activate an app by AUMID and wait for it to exit",
		Long: `Activate an app by its AUMID (PackageFamilyName!ApplicationId) and block until
the started process exits. The process exit code becomes librarylink's exit code.

Examples:
  librarylink uwp-launch Microsoft.WindowsCalculator_8wekyb3d8bbwe!App
  librarylink uwp-launch Microsoft.MinecraftUWP_8wekyb3d8bbwe!App --timeout 4h
  librarylink uwp-launch Publisher.Game_abc123!Game --follow -- -windowed`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, extra, err := splitLaunchArgs(cmd, args)
			if err != nil {
				return err
			}
			lf := *f
			launch := s.cmd.cfg.Launch
			if !cmd.Flags().Changed("timeout") {
				lf.Timeout = launch.Timeout
			}
			if !cmd.Flags().Changed("follow") {
				lf.Follow = launch.Follow
			}
			if !cmd.Flags().Changed("follow-grace") {
				lf.FollowGrace = launch.FollowGrace
			}
			if !cmd.Flags().Changed("verify") {
				lf.Verify = launch.VerifyInstalled
			}
			if !cmd.Flags().Changed("describe") {
				lf.Describe = launch.Describe
			}
			if !cmd.Flags().Changed("metrics-textfile") {
				lf.MetricsTextfile = s.cmd.cfg.Metrics.Textfile
			}
			if lf.Timeout < 0 || lf.FollowGrace < 0 {
				return fmt.Errorf("durations must not be negative")
			}
			return s.cmd.Launch(cmd.Context(), id, extra, lf)
		},
	}
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "stop waiting after this long (0 waits forever); the app keeps running")
	cmd.Flags().BoolVar(&f.Follow, "follow", false, "keep waiting on processes started from the same install directory")
	cmd.Flags().DurationVar(&f.FollowGrace, "follow-grace", 0, "how long to look for a replacement process (default from config, 2s)")
	cmd.Flags().BoolVar(&f.Verify, "verify", false, "check the app is installed before activating")
	cmd.Flags().BoolVar(&f.Describe, "describe", false, "look up the app's start menu name before activating")
	cmd.Flags().StringVar(&f.MetricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file when done")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print the launch result as JSON")
	return cmd
}

// createListAppsCommand creates the list-apps subcommand
func createListAppsCommand(s *session, f *ListAppsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-apps",
		Short: "List installed apps and their AUMIDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.cmd.ListApps(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Search, "search", "", "only show apps whose name contains this text (case-insensitive)")
	cmd.Flags().BoolVar(&f.All, "all", false, "include start menu entries that are not activatable")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON instead of a table")
	return cmd
}
