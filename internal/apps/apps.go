// Package apps enumerates activatable applications from the start menu.
package apps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"github.com/loykin/librarylink/internal/aumid"
	"github.com/loykin/librarylink/internal/process"
)

// App is one start-menu entry.
type App struct {
	DisplayName  string `json:"name"`
	ActivationID string `json:"aumid"`
}

// Activatable reports whether the AppID has the AUMID shape. Win32 shortcuts
// listed by the start menu use paths or GUIDs instead.
func (a App) Activatable() bool { return aumid.Valid(a.ActivationID) }

// Source lists start-menu entries.
type Source interface {
	List(ctx context.Context) ([]App, error)
}

// Runner executes name with args and returns its stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// DefaultShell is used when PowerShellSource.Shell is empty.
const DefaultShell = "powershell"

const startAppsScript = "[Console]::OutputEncoding=[Text.Encoding]::UTF8; " +
	"Get-StartApps | ForEach-Object { \"$($_.Name)`t$($_.AppID)\" }"

// PowerShellSource lists apps through Get-StartApps.
type PowerShellSource struct {
	Shell string
	run   Runner
}

// NewPowerShellSource returns a source running shell (powershell or pwsh).
// A nil run selects os/exec.
func NewPowerShellSource(shell string, run Runner) *PowerShellSource {
	if run == nil {
		run = execRunner
	}
	return &PowerShellSource{Shell: shell, run: run}
}

// List implements Source.
func (s *PowerShellSource) List(ctx context.Context) ([]App, error) {
	shell := s.Shell
	if shell == "" {
		shell = DefaultShell
	}
	run := s.run
	if run == nil {
		run = execRunner
	}
	stdout, stderr, err := run(ctx, shell, "-NoProfile", "-NonInteractive", "-Command", startAppsScript)
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, &process.SnapshotError{Op: "list-apps", Err: err}
	}
	return Parse(stdout), nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	// #nosec G204
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = errors.Join(err, ctx.Err())
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse reads "name<TAB>appid" lines. Lines without a tab or with an empty
// AppID are skipped. The result is sorted by name, case-insensitively.
func Parse(out []byte) []App {
	out = bytes.TrimPrefix(out, utf8BOM)
	var list []App
	for _, line := range strings.Split(string(out), "\n") {
		name, id, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		list = append(list, App{DisplayName: strings.TrimSpace(name), ActivationID: id})
	}
	Sort(list)
	return list
}

// Sort orders apps by display name ignoring case, then by AUMID.
func Sort(list []App) {
	slices.SortStableFunc(list, func(a, b App) int {
		if c := strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)); c != 0 {
			return c
		}
		return strings.Compare(a.ActivationID, b.ActivationID)
	})
}

// Filter returns the apps whose DisplayName contains term, ignoring case.
// An empty term returns list unchanged.
func Filter(list []App, term string) []App {
	if term == "" {
		return list
	}
	needle := strings.ToLower(term)
	out := make([]App, 0, len(list))
	for _, a := range list {
		if strings.Contains(strings.ToLower(a.DisplayName), needle) {
			out = append(out, a)
		}
	}
	return out
}

// Activatable keeps only entries with an AUMID-shaped AppID.
func Activatable(list []App) []App {
	out := make([]App, 0, len(list))
	for _, a := range list {
		if a.Activatable() {
			out = append(out, a)
		}
	}
	return out
}

// Find looks up id. Package family names are case-insensitive on Windows.
func Find(list []App, id string) (App, bool) {
	id = strings.TrimSpace(id)
	for _, a := range list {
		if strings.EqualFold(a.ActivationID, id) {
			return a, true
		}
	}
	return App{}, false
}
