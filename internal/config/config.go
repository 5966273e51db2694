// Package config loads librarylink settings from an optional TOML file and
// LIBRARYLINK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/librarylink/internal/apps"
	"github.com/loykin/librarylink/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LIBRARYLINK_LAUNCH_TIMEOUT=30m.
const EnvPrefix = "LIBRARYLINK"

type Config struct {
	Log     logger.Config `toml:"log" mapstructure:"log"`
	Launch  LaunchConfig  `toml:"launch" mapstructure:"launch"`
	Apps    AppsConfig    `toml:"apps" mapstructure:"apps"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
}

type LaunchConfig struct {
	Timeout         time.Duration `toml:"timeout" mapstructure:"timeout"`
	Follow          bool          `toml:"follow" mapstructure:"follow"`
	FollowGrace     time.Duration `toml:"follow_grace" mapstructure:"follow_grace"`
	VerifyInstalled bool          `toml:"verify_installed" mapstructure:"verify_installed"`
	// Describe looks up the start menu display name before activating.
	Describe bool `toml:"describe" mapstructure:"describe"`
}

type AppsConfig struct {
	// Shell runs Get-StartApps: powershell or pwsh.
	Shell string `toml:"shell" mapstructure:"shell"`
}

type MetricsConfig struct {
	// Textfile, when set, receives Prometheus metrics after each launch.
	Textfile string `toml:"textfile" mapstructure:"textfile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", logger.DefaultLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.color", true)
	v.SetDefault("launch.timeout", time.Duration(0))
	v.SetDefault("launch.follow", false)
	v.SetDefault("launch.follow_grace", 2*time.Second)
	v.SetDefault("launch.verify_installed", false)
	v.SetDefault("launch.describe", false)
	v.SetDefault("apps.shell", apps.DefaultShell)
	v.SetDefault("metrics.textfile", "")
}

// Load reads path (optional) and applies environment overrides. An empty
// path means defaults plus environment; a named file that is missing is an
// error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Launch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("launch.timeout must not be negative: %s", c.Launch.Timeout))
	}
	if c.Launch.FollowGrace < 0 {
		errs = append(errs, fmt.Errorf("launch.follow_grace must not be negative: %s", c.Launch.FollowGrace))
	}
	if strings.TrimSpace(c.Apps.Shell) == "" {
		errs = append(errs, errors.New("apps.shell must not be empty"))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log rotation values must not be negative"))
	}
	return errors.Join(errs...)
}
