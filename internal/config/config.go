// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/spf13/viper"

	"github.com/nivex/fastgate/internal/core"
)

// GlobalConfig represents the top-level static configuration.
// Maps to the `fastgate:` root key in YAML.
type GlobalConfig struct {
	Control ControlConfig `mapstructure:"control"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Events  EventsConfig  `mapstructure:"events"`
	Capture CaptureConfig `mapstructure:"capture"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// ─── Filter / Classifier ───

// FilterConfig configures the classifier and its whitelist tables.
type FilterConfig struct {
	QueueIndex      int          `mapstructure:"queue_index"`
	SrcV4Capacity   int          `mapstructure:"src_v4_capacity"`
	SrcV6Capacity   int          `mapstructure:"src_v6_capacity"`
	DstPortCapacity int          `mapstructure:"dst_port_capacity"`
	Rules           []RuleConfig `mapstructure:"rules"`
}

// RuleConfig is one static whitelist rule loaded at startup.
// Role "client" requires address; role "listener" requires port.
type RuleConfig struct {
	Role      string   `mapstructure:"role" yaml:"role"`
	Address   string   `mapstructure:"address" yaml:"address,omitempty"`
	Port      uint16   `mapstructure:"port" yaml:"port,omitempty"`
	Protocols []string `mapstructure:"protocols" yaml:"protocols"`
}

// ─── Events ───

// EventsConfig configures the decision event stream.
type EventsConfig struct {
	MinSeverity string `mapstructure:"min_severity"` // debug / info / warn / error
	BufferSize  int    `mapstructure:"buffer_size"`
}

// ─── Capture (observe mode) ───

// CaptureConfig configures the optional AF_PACKET tap that feeds live
// frames through the classifier.
type CaptureConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Device       string `mapstructure:"device"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	FanoutID     uint16 `mapstructure:"fanout_id"`
	BPFFilter    string `mapstructure:"bpf_filter"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string           `mapstructure:"level"`  // debug / info / warn / error
	Format string           `mapstructure:"format"` // json / text
	File   FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `fastgate: ...`.
type configRoot struct {
	Fastgate GlobalConfig `mapstructure:"fastgate"`
}

// Load loads configuration from file.
// The YAML file uses `fastgate:` as root key; env vars use the FASTGATE_
// prefix via the key replacer (e.g. key "fastgate.log.level" → FASTGATE_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Fastgate

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *GlobalConfig {
	v := viper.New()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		// Defaults are static; unmarshal cannot fail on them.
		panic(err)
	}
	cfg := root.Fastgate
	return &cfg
}

// setDefaults sets default values for configuration.
// All keys use the "fastgate." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Control defaults
	v.SetDefault("fastgate.control.socket", "/var/run/fastgate.sock")
	v.SetDefault("fastgate.control.pid_file", "/var/run/fastgate.pid")

	// Filter defaults
	v.SetDefault("fastgate.filter.queue_index", 0)
	v.SetDefault("fastgate.filter.src_v4_capacity", 1024)
	v.SetDefault("fastgate.filter.src_v6_capacity", 1024)
	v.SetDefault("fastgate.filter.dst_port_capacity", 128)

	// Event stream defaults
	v.SetDefault("fastgate.events.min_severity", "info")
	v.SetDefault("fastgate.events.buffer_size", 4096)

	// Capture defaults
	v.SetDefault("fastgate.capture.enabled", false)
	v.SetDefault("fastgate.capture.snap_len", 65535)
	v.SetDefault("fastgate.capture.buffer_size_mb", 8)
	v.SetDefault("fastgate.capture.timeout_ms", 100)

	// Metrics defaults
	v.SetDefault("fastgate.metrics.enabled", true)
	v.SetDefault("fastgate.metrics.listen", ":9091")
	v.SetDefault("fastgate.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("fastgate.log.level", "info")
	v.SetDefault("fastgate.log.format", "text")
	v.SetDefault("fastgate.log.file.enabled", false)
	v.SetDefault("fastgate.log.file.path", "/var/log/fastgate/fastgate.log")
	v.SetDefault("fastgate.log.file.rotation.max_size_mb", 100)
	v.SetDefault("fastgate.log.file.rotation.max_age_days", 30)
	v.SetDefault("fastgate.log.file.rotation.max_backups", 5)
	v.SetDefault("fastgate.log.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if !validLevels[cfg.Events.MinSeverity] {
		return fmt.Errorf("invalid events.min_severity: %s (must be debug/info/warn/error)", cfg.Events.MinSeverity)
	}

	if cfg.Filter.QueueIndex < 0 || cfg.Filter.QueueIndex >= 64 {
		return fmt.Errorf("filter.queue_index %d out of range [0,64)", cfg.Filter.QueueIndex)
	}

	if cfg.Capture.Enabled && cfg.Capture.Device == "" {
		return fmt.Errorf("capture.device is required when capture.enabled=true")
	}

	for i := range cfg.Filter.Rules {
		if err := cfg.Filter.Rules[i].Validate(); err != nil {
			return fmt.Errorf("filter.rules[%d]: %w", i, err)
		}
	}

	return nil
}

// Validate checks a single rule for structural validity.
func (r *RuleConfig) Validate() error {
	switch r.Role {
	case "client":
		if r.Address == "" {
			return fmt.Errorf("%w: client rule requires address", core.ErrConfigInvalid)
		}
		if _, err := netip.ParseAddr(r.Address); err != nil {
			return fmt.Errorf("%w: bad address %q: %v", core.ErrConfigInvalid, r.Address, err)
		}
	case "listener":
		if r.Port == 0 {
			return fmt.Errorf("%w: listener rule requires port", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: role must be client or listener, got %q", core.ErrConfigInvalid, r.Role)
	}

	if _, err := r.Mask(); err != nil {
		return err
	}
	return nil
}

// Mask converts the rule's protocol names to a bitmask.
func (r *RuleConfig) Mask() (uint8, error) {
	return ParseProtocols(r.Protocols)
}

// ParseProtocols converts protocol names to a whitelist bitmask.
// An empty list means all protocols.
func ParseProtocols(names []string) (uint8, error) {
	if len(names) == 0 {
		return core.MaskAll, nil
	}

	var mask uint8
	for _, name := range names {
		switch strings.ToLower(name) {
		case "tcp":
			mask |= core.MaskTCP
		case "udp":
			mask |= core.MaskUDP
		case "icmp":
			mask |= core.MaskICMP
		case "icmpv6":
			mask |= core.MaskICMPv6
		case "all":
			mask = core.MaskAll
		default:
			return 0, fmt.Errorf("%w: unknown protocol %q", core.ErrConfigInvalid, name)
		}
	}
	return mask, nil
}
