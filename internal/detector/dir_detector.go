package detector

import (
	"context"
	"slices"
	"strings"

	"github.com/loykin/librarylink/internal/process"
)

// DirDetector finds a process whose executable lives under Dir. Matching is
// case-insensitive and stops at path separator boundaries, so C:\Games\Foo
// does not match C:\Games\FooBar\x.exe.
type DirDetector struct {
	Dir  string
	List Lister
}

// NewDirDetector watches the install directory of exe.
func NewDirDetector(exe string, list Lister) DirDetector {
	if list == nil {
		list = process.List
	}
	return DirDetector{Dir: DirOf(exe), List: list}
}

// Detect implements Detector. With several candidates the newest process
// wins, then the lowest PID.
func (d DirDetector) Detect(ctx context.Context, exclude ...uint32) (process.Record, bool, error) {
	prefix := normalizeDir(d.Dir)
	if prefix == "" {
		return process.Record{}, false, nil
	}
	list := d.List
	if list == nil {
		list = process.List
	}
	recs, err := list(ctx)
	if err != nil {
		return process.Record{}, false, err
	}
	var best process.Record
	found := false
	for _, r := range recs {
		if r.Path == "" || slices.Contains(exclude, r.PID) {
			continue
		}
		if !strings.HasPrefix(normalize(r.Path), prefix) {
			continue
		}
		if !found || r.StartedAt.After(best.StartedAt) || (r.StartedAt.Equal(best.StartedAt) && r.PID < best.PID) {
			best, found = r, true
		}
	}
	return best, found, nil
}

func (d DirDetector) Describe() string { return "dir:" + d.Dir }

// DirOf returns the directory part of a Windows or Unix path, or "" when
// path has no separator.
func DirOf(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i <= 0 {
		return ""
	}
	return path[:i]
}

func normalize(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
}

// normalizeDir lowercases dir and ensures one trailing separator.
func normalizeDir(dir string) string {
	dir = strings.TrimRight(normalize(strings.TrimSpace(dir)), "/")
	if dir == "" {
		return ""
	}
	return dir + "/"
}
