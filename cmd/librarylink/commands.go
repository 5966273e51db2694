package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/librarylink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type command struct {
	client *librarylink.Client
	cfg    *librarylink.Config
	reg    *prometheus.Registry
	stdout io.Writer
	log    *slog.Logger
}

// Processes prints the running processes.
func (c *command) Processes(ctx context.Context, f ProcessesFlags) error {
	recs, err := c.client.ProcessesWith(ctx, librarylink.ProcessListOptions{CommandLine: f.CommandLine})
	if err != nil {
		return err
	}
	if f.JSON {
		printJSON(c.stdout, recs)
		return nil
	}
	printProcesses(c.stdout, recs, f.CommandLine)
	return nil
}

// ListApps prints start-menu apps.
func (c *command) ListApps(ctx context.Context, f ListAppsFlags) error {
	list, err := c.client.Apps(ctx, f.Search, f.All)
	if err != nil {
		return err
	}
	if f.JSON {
		if list == nil {
			list = []librarylink.App{}
		}
		printJSON(c.stdout, list)
		return nil
	}
	printApps(c.stdout, list)
	return nil
}

// Launch activates id, waits and returns the process exit code as an
// exitError when it is not zero.
func (c *command) Launch(ctx context.Context, id string, args []string, f LaunchFlags) error {
	opts := librarylink.LaunchOptions{
		Timeout:         f.Timeout,
		Follow:          f.Follow,
		FollowGrace:     f.FollowGrace,
		VerifyInstalled: f.Verify,
		Describe:        f.Describe,
		Args:            args,
	}
	if !f.JSON {
		opts.OnActivated = func(r librarylink.LaunchReport) {
			_, _ = fmt.Fprintf(c.stdout, "Launched %s\n", r.ActivationID)
			if r.Name != "" {
				_, _ = fmt.Fprintf(c.stdout, "App: %s\n", r.Name)
			}
			_, _ = fmt.Fprintf(c.stdout, "Package: %s\n", r.PackageFamilyName)
			_, _ = fmt.Fprintf(c.stdout, "PID: %d\n", r.PID)
			_, _ = fmt.Fprintf(c.stdout, "Executable: %s\n", displayPath(r.Path))
			_, _ = fmt.Fprintln(c.stdout, "Waiting for process...")
		}
		opts.OnFollow = func(r librarylink.LaunchReport) {
			_, _ = fmt.Fprintf(c.stdout, "Following replacement process %d (%s)\n", r.PID, displayPath(r.Path))
		}
	}

	res, err := c.client.Launch(ctx, id, opts)
	if f.MetricsTextfile != "" {
		if werr := librarylink.WriteMetricsTextfile(f.MetricsTextfile, c.reg); werr != nil {
			c.log.Warn("metrics textfile not written", "path", f.MetricsTextfile, "err", werr)
		}
	}
	if err != nil {
		return err
	}
	if f.JSON {
		printJSON(c.stdout, res)
	} else {
		_, _ = fmt.Fprintf(c.stdout, "Process exited with code %d\n", uint32(res.ExitCode))
	}
	if res.ExitCode != 0 {
		return &exitError{code: int(res.ExitCode)}
	}
	return nil
}

// splitLaunchArgs separates the activation id from arguments after "--".
func splitLaunchArgs(cmd *cobra.Command, args []string) (string, []string, error) {
	dash := cmd.ArgsLenAtDash()
	switch {
	case len(args) == 0 || dash == 0:
		return "", nil, fmt.Errorf("activation id is required")
	case dash == -1 && len(args) > 1:
		return "", nil, fmt.Errorf("unexpected arguments %q; pass app arguments after --", args[1:])
	case dash > 1:
		return "", nil, fmt.Errorf("only one activation id is allowed before --")
	}
	return args[0], args[1:], nil
}
