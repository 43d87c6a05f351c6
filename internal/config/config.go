// Package config handles configuration loading, validation, and management for dolphind.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"

	"dolphind/internal/dolphin"
	"dolphind/internal/logging"
	"dolphind/internal/subghz"
)

// Version is the current configuration schema version.
const Version = 1

// EnvPrefix prefixes every environment override, e.g. DOLPHIND_LOG_LEVEL.
const EnvPrefix = "DOLPHIND_"

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Dolphin configures the stats actor and its timers.
	Dolphin DolphinConfig `toml:"dolphin" json:"dolphin" yaml:"dolphin" envPrefix:"DOLPHIN_"`

	// Receiver configures the sub-GHz receive scene.
	Receiver ReceiverConfig `toml:"receiver" json:"receiver" yaml:"receiver" envPrefix:"RECEIVER_"`

	// Storage configuration for persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage" envPrefix:"STORAGE_"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging" envPrefix:"LOG_"`

	// HTTP configures the metrics and health endpoints.
	HTTP HTTPConfig `toml:"http" json:"http" yaml:"http" envPrefix:"HTTP_"`

	// Telemetry configures OpenTelemetry tracing.
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry" yaml:"telemetry" envPrefix:"OTEL_"`

	// Notify selects the notification backend.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify" envPrefix:"NOTIFY_"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// DolphinConfig holds the stats actor schedule.
type DolphinConfig struct {
	// QueueSize bounds the actor's inbound queue.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size" env:"QUEUE_SIZE"`

	// ButthurtPeriodSec is the mood decay interval.
	ButthurtPeriodSec int `toml:"butthurt_period_sec" json:"butthurt_period_sec" yaml:"butthurt_period_sec" env:"BUTTHURT_PERIOD_SEC"`

	// FlushDelaySec is the persistence debounce after a deed.
	FlushDelaySec int `toml:"flush_delay_sec" json:"flush_delay_sec" yaml:"flush_delay_sec" env:"FLUSH_DELAY_SEC"`

	// ClearLimitsHour is the local hour at which daily limits reset.
	ClearLimitsHour int `toml:"clear_limits_hour" json:"clear_limits_hour" yaml:"clear_limits_hour" env:"CLEAR_LIMITS_HOUR"`

	// HousekeepingSec is how often the clear schedule is checked against the clock.
	HousekeepingSec int `toml:"housekeeping_sec" json:"housekeeping_sec" yaml:"housekeeping_sec" env:"HOUSEKEEPING_SEC"`

	// Timezone is an IANA zone name, or "Local".
	Timezone string `toml:"timezone" json:"timezone" yaml:"timezone" env:"TIMEZONE"`
}

// ReceiverConfig holds the sub-GHz receive settings.
type ReceiverConfig struct {
	// Frequencies is the selectable frequency list in Hz.
	Frequencies []uint32 `toml:"frequencies" json:"frequencies" yaml:"frequencies" env:"FREQUENCIES"`

	// HopperFrequencies is the hopper cycle in Hz.
	HopperFrequencies []uint32 `toml:"hopper_frequencies" json:"hopper_frequencies" yaml:"hopper_frequencies" env:"HOPPER_FREQUENCIES"`

	// DefaultFrequency is tuned on a fresh session.
	DefaultFrequency uint32 `toml:"default_frequency" json:"default_frequency" yaml:"default_frequency" env:"DEFAULT_FREQUENCY"`

	// Preset is the modem preset name, e.g. "AM650".
	Preset string `toml:"preset" json:"preset" yaml:"preset" env:"PRESET"`

	// Hopper starts the session with frequency hopping enabled.
	Hopper bool `toml:"hopper" json:"hopper" yaml:"hopper" env:"HOPPER"`

	// HistoryCapacity is the number of captures a session holds.
	HistoryCapacity int `toml:"history_capacity" json:"history_capacity" yaml:"history_capacity" env:"HISTORY_CAPACITY"`

	// DuplicatePolicy is "last" or "window".
	DuplicatePolicy string `toml:"duplicate_policy" json:"duplicate_policy" yaml:"duplicate_policy" env:"DUPLICATE_POLICY"`

	// DuplicateWindowMs is how long a repeated key is suppressed.
	DuplicateWindowMs int `toml:"duplicate_window_ms" json:"duplicate_window_ms" yaml:"duplicate_window_ms" env:"DUPLICATE_WINDOW_MS"`

	// DuplicateWindowSize is how many keys the "window" policy remembers.
	DuplicateWindowSize int `toml:"duplicate_window_size" json:"duplicate_window_size" yaml:"duplicate_window_size" env:"DUPLICATE_WINDOW_SIZE"`

	// TickMs is the scene tick period.
	TickMs int `toml:"tick_ms" json:"tick_ms" yaml:"tick_ms" env:"TICK_MS"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "file", "sqlite" or "memory".
	Type string `toml:"type" json:"type" yaml:"type" env:"TYPE"`

	// Path is the state file or database path.
	Path string `toml:"path" json:"path" yaml:"path" env:"PATH"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level" env:"LEVEL"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format" env:"FORMAT"`

	// Output is the log output: "stdout", "stderr", "file", or a file path.
	Output string `toml:"output" json:"output" yaml:"output" env:"OUTPUT"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path" env:"PATH"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb" env:"MAX_SIZE_MB"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups" env:"MAX_BACKUPS"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days" env:"MAX_AGE_DAYS"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress" env:"COMPRESS"`
}

// HTTPConfig holds the observability listener configuration.
type HTTPConfig struct {
	// Enabled starts the listener in "run".
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled" env:"ENABLED"`

	// Addr is the listen address.
	Addr string `toml:"addr" json:"addr" yaml:"addr" env:"ADDR"`

	// RateLimit is the sustained /v1 requests per second allowed per
	// client. Zero disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit" env:"RATE_LIMIT"`

	// RateBurst is the number of requests a client may make at once.
	RateBurst int `toml:"rate_burst" json:"rate_burst" yaml:"rate_burst" env:"RATE_BURST"`
}

// TelemetryConfig holds tracing configuration.
type TelemetryConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled" env:"ENABLED"`

	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string `toml:"endpoint" json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`

	// Insecure disables TLS to the collector.
	Insecure bool `toml:"insecure" json:"insecure" yaml:"insecure" env:"INSECURE"`

	ServiceName string `toml:"service_name" json:"service_name" yaml:"service_name" env:"SERVICE_NAME"`

	// SampleRatio is the fraction of traces kept, 0..1.
	SampleRatio float64 `toml:"sample_ratio" json:"sample_ratio" yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// NotifyConfig holds the notification backend.
type NotifyConfig struct {
	// Backend is "dbus", "log" or "none".
	Backend string `toml:"backend" json:"backend" yaml:"backend" env:"BACKEND"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()
	def := dolphin.DefaultConfig()

	return &Config{
		Version: Version,
		Dolphin: DolphinConfig{
			QueueSize:         def.QueueSize,
			ButthurtPeriodSec: int(def.ButthurtPeriod / time.Second),
			FlushDelaySec:     int(def.FlushDelay / time.Second),
			ClearLimitsHour:   def.ClearLimitsHour,
			HousekeepingSec:   int(def.HousekeepingInterval / time.Second),
			Timezone:          "Local",
		},
		Receiver: ReceiverConfig{
			Frequencies:         subghz.DefaultSetting().Frequencies(),
			HopperFrequencies:   hopperList(subghz.DefaultSetting()),
			DefaultFrequency:    subghz.DefaultFrequency,
			Preset:              subghz.DefaultPreset.String(),
			Hopper:              false,
			HistoryCapacity:     subghz.DefaultHistoryCapacity,
			DuplicatePolicy:     subghz.PolicyLast,
			DuplicateWindowMs:   int(subghz.DefaultDuplicateWindow / time.Millisecond),
			DuplicateWindowSize: 8,
			TickMs:              100,
		},
		Storage: StorageConfig{
			Type: "file",
			Path: filepath.Join(dir, "dolphin.state"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		HTTP: HTTPConfig{
			Enabled:   true,
			Addr:      "127.0.0.1:9464",
			RateLimit: 20,
			RateBurst: 40,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "dolphind",
			SampleRatio: 1.0,
		},
		Notify: NotifyConfig{
			Backend: "dbus",
		},
	}
}

func hopperList(s *subghz.Setting) []uint32 {
	out := make([]uint32, s.HopperCount())
	for i := range out {
		out[i] = s.HopperFrequency(i)
	}
	return out
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if p := FindConfigFile(); p != "" {
		return p
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all necessary directories for the daemon.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Storage.Path)}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DataDir returns the base dolphind directory.
// Uses platform-specific paths or DOLPHIND_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv(EnvPrefix + "DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Variables are prefixed with DOLPHIND_ and follow the section names, e.g.
// DOLPHIND_STORAGE_TYPE or DOLPHIND_RECEIVER_HOPPER_FREQUENCIES=315000000,433920000.
func (c *Config) ApplyEnvOverrides() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:   c.Version,
		Dolphin:   c.Dolphin,
		Receiver:  c.Receiver,
		Storage:   c.Storage,
		Logging:   c.Logging,
		HTTP:      c.HTTP,
		Telemetry: c.Telemetry,
		Notify:    c.Notify,
	}
	clone.Receiver.Frequencies = slices.Clone(c.Receiver.Frequencies)
	clone.Receiver.HopperFrequencies = slices.Clone(c.Receiver.HopperFrequencies)

	return clone
}

// DolphinSettings converts the [dolphin] section into actor settings.
func (c *Config) DolphinSettings() (dolphin.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return dolphin.Config{}, err
	}
	return dolphin.Config{
		QueueSize:            c.Dolphin.QueueSize,
		ButthurtPeriod:       time.Duration(c.Dolphin.ButthurtPeriodSec) * time.Second,
		FlushDelay:           time.Duration(c.Dolphin.FlushDelaySec) * time.Second,
		ClearLimitsPeriod:    24 * time.Hour,
		ClearLimitsHour:      c.Dolphin.ClearLimitsHour,
		HousekeepingInterval: time.Duration(c.Dolphin.HousekeepingSec) * time.Second,
		Location:             loc,
	}, nil
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Dolphin.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Dolphin.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", c.Dolphin.Timezone, err)
		}
		return loc, nil
	}
}

// ReceiverSetting builds the frequency setting from the [receiver] section.
func (c *Config) ReceiverSetting() (*subghz.Setting, error) {
	preset, err := subghz.ParsePreset(c.Receiver.Preset)
	if err != nil {
		return nil, err
	}
	s, err := subghz.NewSetting(c.Receiver.Frequencies, c.Receiver.HopperFrequencies, c.Receiver.DefaultFrequency)
	if err != nil {
		return nil, err
	}
	return s.WithPreset(preset), nil
}

// NewHistory builds an empty capture history from the [receiver] section.
func (c *Config) NewHistory() (*subghz.History, error) {
	policy, err := subghz.NewDuplicatePolicy(
		c.Receiver.DuplicatePolicy,
		time.Duration(c.Receiver.DuplicateWindowMs)*time.Millisecond,
		c.Receiver.DuplicateWindowSize,
	)
	if err != nil {
		return nil, err
	}
	return subghz.NewHistory(c.Receiver.HistoryCapacity, subghz.WithDuplicatePolicy(policy)), nil
}

// TickInterval returns the receiver scene tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Receiver.TickMs) * time.Millisecond
}

// LoggingSettings converts the [logging] section for the logging package.
func (c *Config) LoggingSettings() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	switch c.Logging.Output {
	case "stdout", "stderr", "both":
		lc.Output = c.Logging.Output
		lc.FilePath = c.Logging.FilePath
	case "file":
		lc.Output = "file"
		lc.FilePath = c.Logging.FilePath
	default:
		lc.Output = "file"
		lc.FilePath = c.Logging.Output
	}
	lc.MaxSizeMB = c.Logging.MaxSizeMB
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAgeDays = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	return lc, nil
}
