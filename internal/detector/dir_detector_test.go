package detector

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/loykin/librarylink/internal/process"
)

func listOf(recs ...process.Record) Lister {
	return func(context.Context) ([]process.Record, error) { return recs, nil }
}

func TestDirOf(t *testing.T) {
	cases := map[string]string{
		`C:\XboxGames\Forza\Content\launcher.exe`: `C:\XboxGames\Forza\Content`,
		"/opt/games/foo/bin/foo":                  "/opt/games/foo/bin",
		"foo.exe":                                 "",
		"":                                        "",
		"/foo":                                    "",
	}
	for in, want := range cases {
		if got := DirOf(in); got != want {
			t.Fatalf("DirOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDirDetector_CaseInsensitiveWithBoundary(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	d := NewDirDetector(`C:\XboxGames\Forza\Content\launcher.exe`, listOf(
		process.Record{PID: 10, Path: `C:\XboxGames\Forza\Content\launcher.exe`, StartedAt: t0},
		process.Record{PID: 11, Path: `C:\XboxGames\ForzaHorizon\Content\game.exe`, StartedAt: t0.Add(time.Second)},
		process.Record{PID: 12, Path: `c:\xboxgames\forza\content\bin\ForzaGame.exe`, StartedAt: t0.Add(2 * time.Second)},
		process.Record{PID: 13, Path: "", StartedAt: t0.Add(3 * time.Second)},
	))
	rec, ok, err := d.Detect(context.Background(), 10)
	if err != nil || !ok {
		t.Fatalf("Detect: ok=%v err=%v", ok, err)
	}
	if rec.PID != 12 {
		t.Fatalf("picked pid %d, want 12", rec.PID)
	}
	if got := d.Describe(); got != `dir:C:\XboxGames\Forza\Content` {
		t.Fatalf("Describe() = %q", got)
	}
}

func TestDirDetector_PrefersNewestThenLowestPID(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	d := DirDetector{Dir: "/games/a", List: listOf(
		process.Record{PID: 30, Path: "/games/a/x", StartedAt: t0},
		process.Record{PID: 21, Path: "/games/a/y", StartedAt: t0.Add(time.Second)},
		process.Record{PID: 20, Path: "/games/a/z", StartedAt: t0.Add(time.Second)},
	)}
	rec, ok, err := d.Detect(context.Background())
	if err != nil || !ok {
		t.Fatalf("Detect: ok=%v err=%v", ok, err)
	}
	if rec.PID != 20 {
		t.Fatalf("picked pid %d, want 20", rec.PID)
	}
}

func TestDirDetector_NoMatch(t *testing.T) {
	d := DirDetector{Dir: "/games/a/", List: listOf(
		process.Record{PID: 1, Path: "/games/ab/x"},
		process.Record{PID: 2, Path: "/games/a/x"},
	)}
	_, ok, err := d.Detect(context.Background(), 2)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if ok {
		t.Fatalf("expected no match")
	}
}

func TestDirDetector_EmptyDirNeverLists(t *testing.T) {
	called := false
	d := DirDetector{Dir: "", List: func(context.Context) ([]process.Record, error) {
		called = true
		return nil, nil
	}}
	_, ok, err := d.Detect(context.Background())
	if err != nil || ok {
		t.Fatalf("Detect: ok=%v err=%v", ok, err)
	}
	if called {
		t.Fatalf("empty dir must not take a snapshot")
	}
}

func TestDirDetector_ListError(t *testing.T) {
	boom := &process.SnapshotError{Op: "enumerate processes", Err: errors.New("boom")}
	d := DirDetector{Dir: "/x", List: func(context.Context) ([]process.Record, error) { return nil, boom }}
	if _, _, err := d.Detect(context.Background()); !errors.Is(err, process.ErrSnapshot) {
		t.Fatalf("want ErrSnapshot, got %v", err)
	}
}

func TestDirDetector_LiveFindsSelf(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	self, err := process.Lookup(context.Background(), uint32(os.Getpid()))
	if err != nil || self.Path == "" {
		t.Skip("own executable path not resolvable")
	}
	var d Detector = NewDirDetector(exe, nil)
	rec, ok, err := d.Detect(context.Background())
	if err != nil || !ok {
		t.Fatalf("Detect: ok=%v err=%v", ok, err)
	}
	if rec.PID == 0 {
		t.Fatalf("zero pid")
	}
}
