package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/cvrexport/internal/app"
	"github.com/zjrosen/cvrexport/internal/config"
	"github.com/zjrosen/cvrexport/internal/history"
	"github.com/zjrosen/cvrexport/internal/log"
	"github.com/zjrosen/cvrexport/internal/tracing"
)

func init() {
	// Query the terminal background before Bubble Tea owns stdin so the
	// OSC 11 reply does not show up as input.
	_ = lipgloss.HasDarkBackground()
}

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

const localConfigPath = ".cvrexport/config.yaml"

var rootCmd = &cobra.Command{
	Use:   "cvrexport",
	Short: "Export CVR files to CSV with ReadCVRStats",
	Long: `cvrexport runs the ReadCVRStats converter over a folder of cast vote
records and streams its output into a terminal UI.

Choose a folder, pick the file type (singlecvr or cvrreport), then start a
test run limited to a few records or process the whole folder. Use
'cvrexport run' for the same thing without the UI.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/cvrexport/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write a debug log (also CVREXPORT_DEBUG=1; path from CVREXPORT_LOG, level from CVREXPORT_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("executable", "",
		"path to the ReadCVRStats converter")
	rootCmd.PersistentFlags().StringP("file-type", "t", "",
		"converter file type: singlecvr or cvrreport")

	_ = viper.BindPFlag("executable", rootCmd.PersistentFlags().Lookup("executable"))
	_ = viper.BindPFlag("file_type", rootCmd.PersistentFlags().Lookup("file-type"))
}

func setDefaults(v *viper.Viper) {
	d := config.Defaults()
	v.SetDefault("executable", d.Executable)
	v.SetDefault("folder", d.Folder)
	v.SetDefault("file_type", d.FileType)
	v.SetDefault("test_run_limit", d.TestRunLimit)
	v.SetDefault("scheduler.step_interval", d.Scheduler.StepInterval)
	v.SetDefault("scheduler.turn_budget", d.Scheduler.TurnBudget)
	v.SetDefault("scheduler.chunk_size", d.Scheduler.ChunkSize)
	v.SetDefault("scheduler.drain_timeout", d.Scheduler.DrainTimeout)
	v.SetDefault("scheduler.kill_after", d.Scheduler.KillAfter)
	v.SetDefault("scan.patterns", d.Scan.Patterns)
	v.SetDefault("scan.cache_ttl", d.Scan.CacheTTL)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("ui.wrap_log", d.UI.WrapLog)
	v.SetDefault("ui.show_help_bar", d.UI.ShowHelpBar)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

func initConfig() {
	setDefaults(viper.GetViper())
	viper.SetEnvPrefix("CVREXPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .cvrexport/config.yaml (current directory)
		// 2. ~/.config/cvrexport/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			viper.AddConfigPath(config.Dir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// First run: write a commented default the app can update.
			defaultPath := defaultConfigPath()
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
		} else {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: decoding config: %v\n", err)
	}
}

func defaultConfigPath() string {
	if dir := config.Dir(); dir != "" {
		return filepath.Join(dir, "config.yaml")
	}
	return localConfigPath
}

// configFilePath is where folder and file type choices are saved.
func configFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return defaultConfigPath()
}

// setupLogging enables the debug log when --debug or CVREXPORT_DEBUG is set.
func setupLogging(prefix string) (func(), bool, error) {
	debug := os.Getenv("CVREXPORT_DEBUG") != "" || debugFlag
	if !debug {
		return func() {}, false, nil
	}
	logPath := os.Getenv("CVREXPORT_LOG")
	if logPath == "" {
		logPath = "debug.log"
	}
	cleanup, err := log.InitWithTeaLog(logPath, prefix)
	if err != nil {
		return nil, false, fmt.Errorf("initializing logging: %w", err)
	}
	if level := os.Getenv("CVREXPORT_LOG_LEVEL"); level != "" {
		log.SetMinLevel(log.ParseLevel(level))
	}
	log.Info(log.CatConfig, "cvrexport starting", "version", version, "debug", true, "logPath", logPath,
		"config", viper.ConfigFileUsed())
	return cleanup, true, nil
}

// services are the optional collaborators shared by the TUI and the
// headless runner.
type services struct {
	history *history.DB
	tracing *tracing.Provider
}

func openServices() (*services, error) {
	s := &services{}

	provider, err := tracing.NewProvider(cfg.TracingConfig())
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	s.tracing = provider

	if cfg.History.Enabled {
		db, err := history.NewDB(cfg.History.Path)
		if err != nil {
			// Conversions still work without a history.
			log.ErrorErr(log.CatHistory, "History unavailable", err, "path", cfg.History.Path)
			fmt.Fprintf(os.Stderr, "warning: run history disabled: %v\n", err)
		} else {
			s.history = db
		}
	}
	return s, nil
}

func (s *services) recorder() *history.Recorder {
	if s.history == nil {
		return nil
	}
	return history.NewRecorder(s.history.Runs())
}

func (s *services) Close() error {
	var errs []error
	if s.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, s.tracing.Shutdown(ctx))
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	return errors.Join(errs...)
}

func runApp(_ *cobra.Command, _ []string) error {
	cleanup, debug, err := setupLogging("cvrexport")
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	svc, err := openServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	opts := []app.Option{
		app.WithConfigPath(configFilePath()),
		app.WithDebug(debug),
	}
	if rec := svc.recorder(); rec != nil {
		opts = append(opts, app.WithRecorder(rec))
	}
	if svc.tracing.Enabled() {
		opts = append(opts, app.WithTracer(svc.tracing.Tracer()))
	}

	model := app.New(cfg, opts...)
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	final, err := p.Run()

	// Interrupt any live child and stop the folder watcher.
	if fm, ok := final.(app.Model); ok {
		_ = fm.Close()
	}
	_ = model.Close()

	if err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
