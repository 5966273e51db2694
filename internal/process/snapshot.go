package process

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// UnknownPath is shown in place of an executable path that could not be resolved.
const UnknownPath = "<Unknown>"

// Record is a point-in-time view of one OS process. It is stale as soon as
// it is returned.
type Record struct {
	PID         uint32    `json:"pid"`
	Name        string    `json:"name,omitempty"`
	Path        string    `json:"path"` // empty when access was denied
	CommandLine string    `json:"command_line,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}

// DisplayPath returns Path or UnknownPath.
func (r Record) DisplayPath() string {
	if r.Path == "" {
		return UnknownPath
	}
	return r.Path
}

// ErrSnapshot matches every *SnapshotError via errors.Is.
var ErrSnapshot = errors.New("snapshot failed")

// SnapshotError aborts a whole listing; partial results are never returned.
type SnapshotError struct {
	Op  string
	Err error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSnapshot, e.Op, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

func (e *SnapshotError) Is(target error) bool { return target == ErrSnapshot }

// ListOptions tunes List.
type ListOptions struct {
	// CommandLine also resolves each process command line, which is slow on Windows.
	CommandLine bool
}

// List enumerates all visible processes sorted by PID.
func List(ctx context.Context) ([]Record, error) {
	return ListWith(ctx, ListOptions{})
}

// ListWith is List with options.
func ListWith(ctx context.Context, opts ListOptions) ([]Record, error) {
	pids, err := gopsproc.PidsWithContext(ctx)
	if err != nil {
		return nil, &SnapshotError{Op: "enumerate processes", Err: err}
	}
	return collect(ctx, pids, func(ctx context.Context, pid int32) (Record, bool) {
		return describe(ctx, pid, opts)
	}), nil
}

// Lookup describes a single process.
func Lookup(ctx context.Context, pid uint32) (Record, error) {
	if pid == 0 {
		return Record{}, &SnapshotError{Op: "lookup", Err: fmt.Errorf("invalid pid 0")}
	}
	rec, ok := describe(ctx, int32(pid), ListOptions{CommandLine: true})
	if !ok {
		return Record{}, &SnapshotError{Op: fmt.Sprintf("lookup pid %d", pid), Err: gopsproc.ErrorProcessNotRunning}
	}
	return rec, nil
}

// collect drops the idle pseudo-process (pid 0), duplicate pids and processes
// that vanished during enumeration.
func collect(ctx context.Context, pids []int32, describe func(context.Context, int32) (Record, bool)) []Record {
	seen := make(map[int32]struct{}, len(pids))
	out := make([]Record, 0, len(pids))
	for _, pid := range pids {
		if pid <= 0 {
			continue
		}
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		rec, ok := describe(ctx, pid)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int {
		switch {
		case a.PID < b.PID:
			return -1
		case a.PID > b.PID:
			return 1
		}
		return 0
	})
	return out
}

// describe fills what it can. Permission failures leave fields empty; only a
// process that is no longer running is dropped.
func describe(ctx context.Context, pid int32, opts ListOptions) (Record, bool) {
	rec := Record{PID: uint32(pid)}
	p, err := gopsproc.NewProcessWithContext(ctx, pid)
	if errors.Is(err, gopsproc.ErrorProcessNotRunning) {
		return rec, false
	}
	if err != nil {
		return rec, true
	}
	if exe, err := p.ExeWithContext(ctx); err == nil {
		rec.Path = exe
	}
	if name, err := p.NameWithContext(ctx); err == nil {
		rec.Name = name
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		rec.StartedAt = time.UnixMilli(ms)
	}
	if opts.CommandLine {
		if cl, err := p.CmdlineWithContext(ctx); err == nil {
			rec.CommandLine = cl
		}
	}
	return rec, true
}
