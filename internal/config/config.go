// Package config provides configuration management for filefilter.
//
// Configuration is loaded from four sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (FF_ prefix, e.g. FF_CALLER, FF_WORKDIR,
//     FF_FILTERDIR)
//  3. Config file (.filefilter.yaml)
//  4. Built-in defaults
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "FF"

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultWorkDir is the parent of the scratch directory when none is
// configured.
const DefaultWorkDir = "."

// Config represents the global configuration for filefilter.
type Config struct {
	// Caller is a program prefixed to every filter invocation, e.g. an
	// interpreter. Empty runs filters directly.
	Caller string `mapstructure:"caller" json:"caller" yaml:"caller"`

	// WorkDir is the parent directory of the per-run scratch directory.
	WorkDir string `mapstructure:"workdir" json:"workdir" yaml:"workdir"`

	// FilterDir is a list of directories, separated like $PATH, searched
	// for filters before $PATH.
	FilterDir string `mapstructure:"filterdir" json:"filterdir" yaml:"filterdir"`

	// Progress prints one line per filtered source on stderr.
	Progress bool `mapstructure:"progress" json:"progress" yaml:"progress"`

	// Jobs is the number of files filtered concurrently.
	Jobs int `mapstructure:"jobs" json:"jobs" yaml:"jobs"`

	// Timeout bounds every single filter run. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`

	// Lock takes an advisory lock on each target while it is rewritten.
	Lock bool `mapstructure:"lock" json:"lock" yaml:"lock"`

	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel" yaml:"log-level"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat" yaml:"log-format"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor" yaml:"no-color"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet" yaml:"quiet"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load(), not read from config itself.
	ConfigFile string `mapstructure:"-" json:"-" yaml:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		WorkDir:   DefaultWorkDir,
		Jobs:      1,
		LogLevel:  LogLevelInfo,
		LogFormat: LogFormatText,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if c.Jobs < 1 {
		return fmt.Errorf("invalid jobs %d: must be at least 1", c.Jobs)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout %s: must not be negative", c.Timeout)
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// EffectiveWorkDir returns WorkDir, or the default when it is empty.
func (c *Config) EffectiveWorkDir() string {
	if c.WorkDir == "" {
		return DefaultWorkDir
	}

	return c.WorkDir
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper. Every key is registered
// so that AutomaticEnv also applies to Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("caller", d.Caller)
	v.SetDefault("workdir", d.WorkDir)
	v.SetDefault("filterdir", d.FilterDir)
	v.SetDefault("progress", d.Progress)
	v.SetDefault("jobs", d.Jobs)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("lock", d.Lock)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("no-color", d.NoColor)
	v.SetDefault("quiet", d.Quiet)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	// Auto-discovery mode.
	v.SetConfigName(".filefilter")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "filefilter"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found → perfectly fine in auto-discovery.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}

		// Found a file but it was malformed.
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	// Bind the current command's own flags.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	// Walk up to root and bind all persistent flags at each level.
	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
