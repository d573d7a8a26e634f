// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: environment variables > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15s", "30s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all agent configuration.
type Config struct {
	Global    GlobalConfig    `yaml:"global"`
	WMI       WMIConfig       `yaml:"wmi"`
	OHM       OHMConfig       `yaml:"ohm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Spool     SpoolConfig     `yaml:"spool"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// path is the file the configuration was read from, if any.
	path string
}

// GlobalConfig selects which sections run.
type GlobalConfig struct {
	// EnabledSections is an allow list; empty means every known section.
	EnabledSections  []string `yaml:"enabled_sections"`
	DisabledSections []string `yaml:"disabled_sections"`
	OnlyFrom         []string `yaml:"only_from"`
	SectionTimeout   Duration `yaml:"section_timeout"`
}

// WMIConfig holds query engine and backoff settings.
type WMIConfig struct {
	// Timeout marks rows with the Timeout status when a query takes longer.
	Timeout Duration `yaml:"timeout"`
	// DelayOnFail is the cooling interval after a failed query.
	DelayOnFail Duration `yaml:"delay_on_fail"`
	// DelayOnFailSections use DelayOnFail as their floor; all others use 0.
	DelayOnFailSections []string `yaml:"delay_on_fail_sections"`
}

// OHMConfig holds settings of the OpenHardwareMonitor helper.
type OHMConfig struct {
	HelperPath       string   `yaml:"helper_path"`
	RequireElevation bool     `yaml:"require_elevation"`
	CacheTTL         Duration `yaml:"cache_ttl"`
	StopTimeout      Duration `yaml:"stop_timeout"`
}

// SchedulerConfig holds the collection cadence.
type SchedulerConfig struct {
	Interval Duration `yaml:"interval"`
}

// SpoolConfig holds the on-disk output spool settings.
type SpoolConfig struct {
	Dir       string `yaml:"dir"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	Keep      int    `yaml:"keep"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	// Listen is the HTTP address of /metrics; empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// DefaultDelayOnFail is the cooling interval of WMI sections after a failure.
const DefaultDelayOnFail = time.Hour

// DefaultDelayOnFailSections lists the WMI sections that cool down after a failure.
var DefaultDelayOnFailSections = []string{
	"openhardwaremonitor",
	"dotnet_clrmemory",
	"wmi_webservices",
	"wmi_cpuload",
	"msexch",
	"bad_wmi",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			SectionTimeout: Duration{30 * time.Second},
		},
		WMI: WMIConfig{
			Timeout:             Duration{5 * time.Second},
			DelayOnFail:         Duration{DefaultDelayOnFail},
			DelayOnFailSections: append([]string(nil), DefaultDelayOnFailSections...),
		},
		OHM: OHMConfig{
			RequireElevation: true,
			CacheTTL:         Duration{10 * time.Second},
			StopTimeout:      Duration{5 * time.Second},
		},
		Scheduler: SchedulerConfig{
			Interval: Duration{60 * time.Second},
		},
		Spool: SpoolConfig{
			Dir:       "./spool",
			MaxSizeMB: 20,
			Keep:      10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "./agent.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables take highest precedence and override values from the byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults.
// If path is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return LoadFromBytes(nil)
	}

	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		cfg.path = abs
	} else {
		cfg.path = path
	}
	return cfg, nil
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Path returns the file the configuration was loaded from, or "".
func (c *Config) Path() string { return c.path }

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("SA_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if sections := os.Getenv("SA_SECTIONS"); sections != "" {
		cfg.Global.EnabledSections = splitList(sections)
	}
	if path := os.Getenv("SA_OHM_PATH"); path != "" {
		cfg.OHM.HelperPath = path
	}
}

// splitList splits a comma or space separated list.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// IsSectionEnabled reports whether the allow/deny lists let name run.
func (c *Config) IsSectionEnabled(name string) bool {
	for _, d := range c.Global.DisabledSections {
		if strings.EqualFold(d, name) {
			return false
		}
	}
	if len(c.Global.EnabledSections) == 0 {
		return true
	}
	for _, e := range c.Global.EnabledSections {
		if strings.EqualFold(e, name) {
			return true
		}
	}
	return false
}

// DelayOnFailFor returns the backoff floor of a section.
func (c *Config) DelayOnFailFor(name string) time.Duration {
	for _, s := range c.WMI.DelayOnFailSections {
		if strings.EqualFold(s, name) {
			return c.WMI.DelayOnFail.Duration
		}
	}
	return 0
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Scheduler.Interval.Duration <= 0 {
		return fmt.Errorf("scheduler interval must be positive (got: %s)", c.Scheduler.Interval.Duration)
	}
	if c.Global.SectionTimeout.Duration <= 0 {
		return fmt.Errorf("section timeout must be positive (got: %s)", c.Global.SectionTimeout.Duration)
	}
	if c.WMI.DelayOnFail.Duration < 0 {
		return fmt.Errorf("delay_on_fail cannot be negative (got: %s)", c.WMI.DelayOnFail.Duration)
	}
	if c.OHM.StopTimeout.Duration <= 0 {
		return fmt.Errorf("ohm stop timeout must be positive (got: %s)", c.OHM.StopTimeout.Duration)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}
