// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Monitor() MonitorConfig

	SetBrowserHeadless(bool)
	SetMonitorTimeout(d time.Duration)
	SetMonitorDebounce(d time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	MonitorCfg MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Monitor() MonitorConfig { return c.MonitorCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetMonitorTimeout(d time.Duration) {
	c.MonitorCfg.Stabilization.Timeout = d
}
func (c *Config) SetMonitorDebounce(d time.Duration) {
	c.MonitorCfg.Stabilization.Debounce = d
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

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instance that hosts the page.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	UserAgent         string         `mapstructure:"user_agent" yaml:"user_agent"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	LaunchTimeout     time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// MonitorConfig holds the policy for monitored actions.
type MonitorConfig struct {
	// ActionWindow is waited out after the action returns and before the
	// stabilization wait starts.
	ActionWindow  time.Duration       `mapstructure:"action_window" yaml:"action_window"`
	ActionTimeout time.Duration       `mapstructure:"action_timeout" yaml:"action_timeout"`
	Capture       CaptureConfig       `mapstructure:"capture" yaml:"capture"`
	Listeners     ListenerConfig      `mapstructure:"listeners" yaml:"listeners"`
	Stabilization StabilizationConfig `mapstructure:"stabilization" yaml:"stabilization"`
}

// CaptureConfig bounds snapshot size.
type CaptureConfig struct {
	MaxElements int           `mapstructure:"max_elements" yaml:"max_elements"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Dialog policies applied after a dialog is recorded.
const (
	DialogAccept  = "accept"
	DialogDismiss = "dismiss"
	DialogIgnore  = "ignore"
)

// ListenerConfig controls event classification.
type ListenerConfig struct {
	ConsoleMarkers        []string      `mapstructure:"console_markers" yaml:"console_markers"`
	DialogPolicy          string        `mapstructure:"dialog_policy" yaml:"dialog_policy"`
	DialogPromptText      string        `mapstructure:"dialog_prompt_text" yaml:"dialog_prompt_text"`
	DialogResponseTimeout time.Duration `mapstructure:"dialog_response_timeout" yaml:"dialog_response_timeout"`
}

// StabilizationConfig holds the per-heuristic timing policy.
type StabilizationConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Debounce         time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Ceiling          time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
	SettleDelay      time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	NetworkQuiet     time.Duration `mapstructure:"network_quiet" yaml:"network_quiet"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	CleanupTimeout   time.Duration `mapstructure:"cleanup_timeout" yaml:"cleanup_timeout"`
	LoadingSelectors []string      `mapstructure:"loading_selectors" yaml:"loading_selectors"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "actionwatch")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})

	// -- Monitor --
	v.SetDefault("monitor.action_window", "100ms")
	v.SetDefault("monitor.action_timeout", "30s")
	v.SetDefault("monitor.capture.max_elements", 500)
	v.SetDefault("monitor.capture.timeout", "10s")
	v.SetDefault("monitor.listeners.console_markers", []string{"[BRIDGE]", "[ALERT]"})
	v.SetDefault("monitor.listeners.dialog_policy", DialogAccept)
	v.SetDefault("monitor.listeners.dialog_prompt_text", "")
	v.SetDefault("monitor.listeners.dialog_response_timeout", "2s")
	v.SetDefault("monitor.stabilization.timeout", "10s")
	v.SetDefault("monitor.stabilization.debounce", "500ms")
	v.SetDefault("monitor.stabilization.ceiling", "5s")
	v.SetDefault("monitor.stabilization.settle_delay", "300ms")
	v.SetDefault("monitor.stabilization.network_quiet", "500ms")
	v.SetDefault("monitor.stabilization.poll_interval", "100ms")
	v.SetDefault("monitor.stabilization.cleanup_timeout", "2s")
	v.SetDefault("monitor.stabilization.loading_selectors", []string{
		".loading", ".spinner", `[aria-busy="true"]`, `[data-loading="true"]`,
	})
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LoggerCfg.LogFile != "" {
		path, err := ExpandPath(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("invalid logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("could not resolve path '%s': %w", path, err)
	}
	return expanded, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if err := c.MonitorCfg.Validate(); err != nil {
		return fmt.Errorf("monitor configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the monitor policy.
func (m *MonitorConfig) Validate() error {
	if m.ActionWindow < 0 {
		return fmt.Errorf("action_window must not be negative")
	}
	if m.ActionTimeout <= 0 {
		return fmt.Errorf("action_timeout must be a positive duration")
	}
	if m.Capture.MaxElements <= 0 {
		return fmt.Errorf("capture.max_elements must be a positive integer")
	}
	switch m.Listeners.DialogPolicy {
	case DialogAccept, DialogDismiss, DialogIgnore:
	default:
		return fmt.Errorf("listeners.dialog_policy must be one of accept, dismiss, ignore (got %q)", m.Listeners.DialogPolicy)
	}
	return m.Stabilization.Validate()
}

// Validate checks the stabilization timings.
func (s *StabilizationConfig) Validate() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"stabilization.timeout", s.Timeout},
		{"stabilization.debounce", s.Debounce},
		{"stabilization.ceiling", s.Ceiling},
		{"stabilization.poll_interval", s.PollInterval},
		{"stabilization.cleanup_timeout", s.CleanupTimeout},
	}
	for _, entry := range durations {
		if entry.d <= 0 {
			return fmt.Errorf("%s must be a positive duration", entry.name)
		}
	}
	if s.SettleDelay < 0 || s.NetworkQuiet < 0 {
		return fmt.Errorf("stabilization.settle_delay and stabilization.network_quiet must not be negative")
	}
	if s.Ceiling < s.Debounce {
		return fmt.Errorf("stabilization.ceiling (%s) must not be shorter than stabilization.debounce (%s)", s.Ceiling, s.Debounce)
	}
	return nil
}
