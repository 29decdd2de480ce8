// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Sweep   SweepConfig   `mapstructure:"sweep" yaml:"sweep"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instance the sweep drives.
// Either a local binary is launched (ExecPath/UserDataDir/Args) or an
// already-running instance is attached to via RemoteURL.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// RemoteURL is a DevTools websocket URL (ws://...). When set, no local
	// browser is launched.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	// ExecPath points at a specific Chrome/Chromium binary. Empty means
	// whatever chromedp finds on the PATH.
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
	// UserDataDir is a persistent profile directory. Reusing one between
	// runs keeps the signed-in session alive so the sweep does not have to
	// re-authenticate. Supports ~ expansion.
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
}

// SelectorConfig is the fixed lookup set the sweep uses against the page.
// The defaults target a Google Photos style library view; every entry is
// overridable for other photo UIs.
type SelectorConfig struct {
	// Container marks that the item grid has rendered at all.
	Container string `mapstructure:"container" yaml:"container"`
	// Checkbox matches the per-item selection control.
	Checkbox string `mapstructure:"checkbox" yaml:"checkbox"`
	// DeleteButton matches the primary delete control shown once a
	// selection is active.
	DeleteButton string `mapstructure:"delete_button" yaml:"delete_button"`
	// ConfirmText is the exact visible text of the confirmation control in
	// the dialog that follows the delete click.
	ConfirmText string `mapstructure:"confirm_text" yaml:"confirm_text"`
	// ConfirmScope is the element name searched for ConfirmText.
	ConfirmScope string `mapstructure:"confirm_scope" yaml:"confirm_scope"`
}

// SweepConfig tunes the batch deletion loop.
type SweepConfig struct {
	// TargetURL is the page the sweep navigates to before looping.
	TargetURL string `mapstructure:"target_url" yaml:"target_url"`
	// PollInterval is the fixed spacing between condition probes.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// WaitTimeout bounds every ordinary wait (container, items, controls).
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	// VerifyTimeout bounds the shorter post-deletion re-poll.
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	// ActionDelay is the settle pause after the confirm click.
	ActionDelay time.Duration `mapstructure:"action_delay" yaml:"action_delay"`
	// StallLimit is the number of consecutive no-progress iterations
	// tolerated before the loop halts (suspected external throttling).
	StallLimit int `mapstructure:"stall_limit" yaml:"stall_limit"`
	// MaxBatches caps the number of loop iterations. 0 means unlimited.
	MaxBatches int `mapstructure:"max_batches" yaml:"max_batches"`
	// BatchRate limits loop iterations per second.
	BatchRate float64 `mapstructure:"batch_rate" yaml:"batch_rate"`
	// VerifyRemoval selects the accounting policy: true re-polls after each
	// deletion and counts only observed decreases (with stall detection),
	// false trusts the pre-deletion count.
	VerifyRemoval bool `mapstructure:"verify_removal" yaml:"verify_removal"`
	// DryRun selects and counts a single batch without clicking anything.
	DryRun    bool           `mapstructure:"dry_run" yaml:"dry_run"`
	Selectors SelectorConfig `mapstructure:"selectors" yaml:"selectors"`
}

// ReportConfig controls the end-of-run report.
type ReportConfig struct {
	// Output is the report file path. Empty disables the report, "-" means
	// stdout.
	Output string `mapstructure:"output" yaml:"output"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "photosweep")
	v.SetDefault("logger.log_file", "photosweep.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1440)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.shutdown_grace", "15s")

	// -- Sweep --
	v.SetDefault("sweep.target_url", "https://photos.google.com/")
	v.SetDefault("sweep.poll_interval", "500ms")
	v.SetDefault("sweep.wait_timeout", "30s")
	v.SetDefault("sweep.verify_timeout", "5s")
	v.SetDefault("sweep.action_delay", "1500ms")
	v.SetDefault("sweep.stall_limit", 3)
	v.SetDefault("sweep.max_batches", 0)
	v.SetDefault("sweep.batch_rate", 0.5)
	v.SetDefault("sweep.verify_removal", true)
	v.SetDefault("sweep.dry_run", false)
	v.SetDefault("sweep.selectors.container", `div[role="main"]`)
	v.SetDefault("sweep.selectors.checkbox", `div[role="checkbox"][aria-label^="Select"]`)
	v.SetDefault("sweep.selectors.delete_button", `button[aria-label="Delete"]`)
	v.SetDefault("sweep.selectors.confirm_text", "Move to trash")
	v.SetDefault("sweep.selectors.confirm_scope", "button")

	// -- Report --
	v.SetDefault("report.output", "")
	v.SetDefault("report.format", "json")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Sweep.Validate(); err != nil {
		return fmt.Errorf("sweep configuration invalid: %w", err)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the sweep loop settings.
func (s *SweepConfig) Validate() error {
	if s.TargetURL == "" {
		return fmt.Errorf("sweep.target_url is required")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("sweep.poll_interval must be a positive duration")
	}
	if s.WaitTimeout <= 0 || s.VerifyTimeout <= 0 {
		return fmt.Errorf("sweep.wait_timeout and sweep.verify_timeout must be positive durations")
	}
	if s.StallLimit < 1 {
		return fmt.Errorf("sweep.stall_limit must be at least 1")
	}
	if s.MaxBatches < 0 {
		return fmt.Errorf("sweep.max_batches cannot be negative")
	}
	if s.BatchRate <= 0 {
		return fmt.Errorf("sweep.batch_rate must be greater than 0")
	}
	if s.Selectors.Container == "" || s.Selectors.Checkbox == "" ||
		s.Selectors.DeleteButton == "" || s.Selectors.ConfirmText == "" {
		return fmt.Errorf("sweep.selectors.{container,checkbox,delete_button,confirm_text} are all required")
	}
	if s.Selectors.ConfirmScope == "" {
		return fmt.Errorf("sweep.selectors.confirm_scope is required")
	}
	return nil
}
