package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "librarylink.toml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" || cfg.Log.File != "" {
		t.Fatalf("log defaults: %+v", cfg.Log)
	}
	if cfg.Log.MaxSizeMB != 10 || cfg.Log.MaxBackups != 3 || cfg.Log.MaxAgeDays != 7 || !cfg.Log.Color {
		t.Fatalf("rotation defaults: %+v", cfg.Log)
	}
	l := cfg.Launch
	if l.Timeout != 0 || l.Follow || l.FollowGrace != 2*time.Second || l.VerifyInstalled || l.Describe {
		t.Fatalf("launch defaults: %+v", l)
	}
	if cfg.Apps.Shell != "powershell" {
		t.Fatalf("shell = %q", cfg.Apps.Shell)
	}
	if cfg.Metrics.Textfile != "" {
		t.Fatalf("textfile = %q", cfg.Metrics.Textfile)
	}
}

func TestLoad_File(t *testing.T) {
	p := writeTOML(t, `
[log]
level = "debug"
file = "C:/logs/librarylink.log"
max_backups = 5
color = false

[launch]
timeout = "45m"
follow = true
follow_grace = "5s"
verify_installed = true
describe = true

[apps]
shell = "pwsh"

[metrics]
textfile = "C:/metrics/librarylink.prom"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.File != "C:/logs/librarylink.log" || cfg.Log.MaxBackups != 5 || cfg.Log.Color {
		t.Fatalf("log: %+v", cfg.Log)
	}
	if cfg.Log.MaxSizeMB != 10 {
		t.Fatalf("unset keys keep defaults, got max_size_mb=%d", cfg.Log.MaxSizeMB)
	}
	l := cfg.Launch
	if l.Timeout != 45*time.Minute || !l.Follow || l.FollowGrace != 5*time.Second || !l.VerifyInstalled || !l.Describe {
		t.Fatalf("launch: %+v", l)
	}
	if cfg.Apps.Shell != "pwsh" {
		t.Fatalf("shell = %q", cfg.Apps.Shell)
	}
	if cfg.Metrics.Textfile != "C:/metrics/librarylink.prom" {
		t.Fatalf("textfile = %q", cfg.Metrics.Textfile)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeTOML(t, "[launch]\ntimeout = \"10s\"\n")
	t.Setenv("LIBRARYLINK_LAUNCH_TIMEOUT", "90s")
	t.Setenv("LIBRARYLINK_LOG_LEVEL", "error")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Launch.Timeout != 90*time.Second {
		t.Fatalf("timeout = %s, want env value 90s", cfg.Launch.Timeout)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("level = %q", cfg.Log.Level)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"level":   "[log]\nlevel = \"loud\"\n",
		"timeout": "[launch]\ntimeout = \"-1s\"\n",
		"grace":   "[launch]\nfollow_grace = \"-2s\"\n",
		"shell":   "[apps]\nshell = \" \"\n",
		"syntax":  "[log\nlevel=",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTOML(t, content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
