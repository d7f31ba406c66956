// Package config provides configuration types, defaults, and persistence for cvrexport.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/cvrexport/internal/cvr"
	"github.com/zjrosen/cvrexport/internal/driver"
	"github.com/zjrosen/cvrexport/internal/log"
	"github.com/zjrosen/cvrexport/internal/tracing"
)

// Config holds all configuration options for cvrexport.
type Config struct {
	// Executable is the converter path. Empty means bin/ReadCVRStats next
	// to the cvrexport binary.
	Executable   string          `mapstructure:"executable"`
	Folder       string          `mapstructure:"folder"`
	FileType     string          `mapstructure:"file_type"`
	TestRunLimit int             `mapstructure:"test_run_limit"`
	Scheduler    SchedulerConfig `mapstructure:"scheduler"`
	Scan         ScanConfig      `mapstructure:"scan"`
	Watch        WatchConfig     `mapstructure:"watch"`
	History      HistoryConfig   `mapstructure:"history"`
	UI           UIConfig        `mapstructure:"ui"`
	Tracing      TracingConfig   `mapstructure:"tracing"`
}

// SchedulerConfig tunes the cooperative streaming driver.
type SchedulerConfig struct {
	StepInterval time.Duration `mapstructure:"step_interval"`
	TurnBudget   int           `mapstructure:"turn_budget"`
	ChunkSize    int           `mapstructure:"chunk_size"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	// KillAfter force-terminates a child still running this long after a
	// cancel. Zero waits forever.
	KillAfter time.Duration `mapstructure:"kill_after"`
}

// ScanConfig controls how CVR files are counted in the chosen folder.
type ScanConfig struct {
	Patterns []string      `mapstructure:"patterns"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// WatchConfig controls the folder watcher.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// UIConfig holds user interface configuration options.
type UIConfig struct {
	WrapLog     bool `mapstructure:"wrap_log"`
	ShowHelpBar bool `mapstructure:"show_help_bar"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	FilePath     string  `mapstructure:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	d := driver.DefaultConfig()
	return Config{
		FileType:     string(cvr.SingleCVR),
		TestRunLimit: cvr.DefaultTestRunLimit,
		Scheduler: SchedulerConfig{
			StepInterval: d.StepInterval,
			TurnBudget:   d.TurnBudget,
			ChunkSize:    d.ChunkSize,
			DrainTimeout: d.DrainTimeout,
			KillAfter:    0,
		},
		Scan: ScanConfig{
			Patterns: append([]string(nil), cvr.DefaultPatterns...),
			CacheTTL: 30 * time.Second,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 250 * time.Millisecond,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryPath(),
		},
		UI: UIConfig{
			WrapLog:     true,
			ShowHelpBar: true,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     tracing.ExporterFile,
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Dir returns ~/.config/cvrexport, or "" if the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cvrexport")
}

// DefaultHistoryPath returns ~/.config/cvrexport/history.db.
func DefaultHistoryPath() string {
	if dir := Dir(); dir != "" {
		return filepath.Join(dir, "history.db")
	}
	return ""
}

// DefaultTracesFilePath returns ~/.config/cvrexport/traces/traces.jsonl.
func DefaultTracesFilePath() string {
	if dir := Dir(); dir != "" {
		return filepath.Join(dir, "traces", "traces.jsonl")
	}
	return ""
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error
	if c.FileType != "" {
		if _, err := cvr.ParseFileType(c.FileType); err != nil {
			errs = append(errs, fmt.Errorf("file_type: %w", err))
		}
	}
	if c.TestRunLimit < 0 {
		errs = append(errs, fmt.Errorf("test_run_limit must not be negative, got %d", c.TestRunLimit))
	}
	if err := c.DriverConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if c.Scan.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("scan.cache_ttl must not be negative"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative"))
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, fmt.Errorf("history.path is required when history is enabled"))
	}
	if err := validateTracing(c.Tracing); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateTracing(t TracingConfig) error {
	switch t.Exporter {
	case "", tracing.ExporterNone, tracing.ExporterFile, tracing.ExporterStdout, tracing.ExporterOTLP:
	default:
		return fmt.Errorf("tracing.exporter must be none, file, stdout or otlp, got %q", t.Exporter)
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1, got %v", t.SampleRate)
	}
	if t.Enabled && t.Exporter == tracing.ExporterFile && t.FilePath == "" {
		return fmt.Errorf("tracing.file_path is required for the file exporter")
	}
	return nil
}

// DriverConfig converts the scheduler section for the driver.
func (c Config) DriverConfig() driver.Config {
	return driver.Config{
		StepInterval: c.Scheduler.StepInterval,
		TurnBudget:   c.Scheduler.TurnBudget,
		ChunkSize:    c.Scheduler.ChunkSize,
		DrainTimeout: c.Scheduler.DrainTimeout,
		KillAfter:    c.Scheduler.KillAfter,
	}
}

// TracingConfig converts the tracing section for the tracing package.
func (c Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:      c.Tracing.Enabled,
		Exporter:     c.Tracing.Exporter,
		FilePath:     c.Tracing.FilePath,
		OTLPEndpoint: c.Tracing.OTLPEndpoint,
		SampleRate:   c.Tracing.SampleRate,
		ServiceName:  "cvrexport",
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# cvrexport configuration

# Path to the ReadCVRStats converter (default: bin/ReadCVRStats next to cvrexport)
# executable: /opt/cvr/bin/ReadCVRStats

# Last chosen CVR folder (updated when you pick a folder in the app)
# folder: /data/cvrs

# How the converter reads the folder: singlecvr or cvrreport
file_type: singlecvr

# Record limit for "Test Run"
test_run_limit: 100

# Streaming scheduler
scheduler:
  step_interval: 50ms   # Delay between streaming turns
  turn_budget: 250      # Max characters appended to the log per turn
  chunk_size: 100       # Max characters per read
  drain_timeout: 2s     # How long to wait for pipes to close after exit
  kill_after: 0s        # Kill a child this long after Cancel (0 = never)

# Counting CVR files in the chosen folder
scan:
  patterns:
    - "CvrExport*.json"
    - "*.zip"
  cache_ttl: 30s

# Refresh the file count when the folder changes
watch:
  enabled: true
  debounce: 250ms

# Run history (see 'cvrexport history')
history:
  enabled: true
  # path: ~/.config/cvrexport/history.db

ui:
  wrap_log: true        # Word-wrap long log lines
  show_help_bar: true   # Show key bindings at the bottom

# OpenTelemetry tracing of conversion sessions
# tracing:
#   enabled: false
#   exporter: file                  # none, file, stdout, otlp
#   file_path: ~/.config/cvrexport/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
