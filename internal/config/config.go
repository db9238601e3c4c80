// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/hepagent/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `hepagent:` root key in YAML.
type GlobalConfig struct {
	Agent       AgentConfig       `mapstructure:"agent"`
	Sender      SenderConfig      `mapstructure:"sender"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Log         LogConfig         `mapstructure:"log"`
}

// ─── Agent Identity ───

// AgentConfig holds the values stamped into every HEP3 packet.
type AgentConfig struct {
	VendorID  uint16 `mapstructure:"vendor_id"`  // chunk header vendor, 0 = generic
	CaptureID uint32 `mapstructure:"capture_id"` // chunk 0x0c
	AuthKey   string `mapstructure:"auth_key"`   // chunk 0x0e, omitted when empty
	NodeName  string `mapstructure:"node_name"`  // chunk 0x13, empty = os.Hostname()

	// CompressPayload switches large payloads to the gzip chunk (0x10).
	CompressPayload   bool `mapstructure:"compress_payload"`
	CompressThreshold int  `mapstructure:"compress_threshold"` // bytes

	// ProtocolTypes maps payload type names to chunk 0x0b values.
	// sip/xmpp/sdp are always known; entries here add or override.
	ProtocolTypes map[string]uint8 `mapstructure:"protocol_types"`
}

// ─── Sender ───

// SenderConfig configures delivery of HEP3 packets to collectors.
type SenderConfig struct {
	Transport         string        `mapstructure:"transport"` // udp | tcp
	Servers           []string      `mapstructure:"servers"`
	Routing           string        `mapstructure:"routing"` // hash | ring
	DSCP              int           `mapstructure:"dscp"`    // 0 = leave socket default
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"` // 0 = disabled
}

// ─── Correlation ───

// CorrelationConfig controls the flow → Call-ID cache.
type CorrelationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
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
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
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

// configRoot is the top-level wrapper matching the YAML structure `hepagent: ...`.
type configRoot struct {
	HepAgent GlobalConfig `mapstructure:"hepagent"`
}

// Load loads configuration from file.
// The YAML file uses `hepagent:` as root key; env vars use the HEPAGENT_ prefix
// (e.g., HEPAGENT_AGENT_CAPTURE_ID).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return fromViper(v)
}

// Default returns the configuration used when no file is given.
func Default() (*GlobalConfig, error) {
	return fromViper(viper.New())
}

func fromViper(v *viper.Viper) (*GlobalConfig, error) {
	// The `hepagent.` key prefix maps to `HEPAGENT_` in env vars via the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.HepAgent

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values; all keys use the "hepagent." prefix.
// Every scalar key needs a default, AutomaticEnv only resolves keys viper knows.
// protocol_types is a map and is configured from the file only.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("hepagent.log.level", "info")
	v.SetDefault("hepagent.log.format", "text")
	v.SetDefault("hepagent.log.outputs.file.enabled", false)
	v.SetDefault("hepagent.log.outputs.file.path", "/var/log/hepagent/hepagent.log")
	v.SetDefault("hepagent.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("hepagent.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("hepagent.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("hepagent.log.outputs.file.rotation.compress", true)

	// Agent defaults
	v.SetDefault("hepagent.agent.vendor_id", 0)
	v.SetDefault("hepagent.agent.capture_id", 0)
	v.SetDefault("hepagent.agent.auth_key", "")
	v.SetDefault("hepagent.agent.node_name", "")
	v.SetDefault("hepagent.agent.compress_payload", false)
	v.SetDefault("hepagent.agent.compress_threshold", 1024)

	// Sender defaults
	v.SetDefault("hepagent.sender.transport", "udp")
	v.SetDefault("hepagent.sender.servers", []string{"127.0.0.1:9060"})
	v.SetDefault("hepagent.sender.routing", "hash")
	v.SetDefault("hepagent.sender.dscp", 0)
	v.SetDefault("hepagent.sender.write_timeout", "3s")
	v.SetDefault("hepagent.sender.keepalive_interval", "0s")

	// Correlation defaults
	v.SetDefault("hepagent.correlation.enabled", true)
	v.SetDefault("hepagent.correlation.ttl", "10m")

	// Metrics defaults
	v.SetDefault("hepagent.metrics.enabled", false)
	v.SetDefault("hepagent.metrics.listen", ":9096")
	v.SetDefault("hepagent.metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}

	// ── Node name auto-detect ──
	if cfg.Agent.NodeName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Agent.NodeName = hostname
	}
	if cfg.Agent.CompressThreshold < 0 {
		return fmt.Errorf("%w: agent.compress_threshold must be >= 0", core.ErrConfigInvalid)
	}

	// ── Sender validation ──
	switch cfg.Sender.Transport {
	case "udp", "tcp":
	default:
		return fmt.Errorf("%w: unsupported sender.transport: %s (must be udp/tcp)", core.ErrConfigInvalid, cfg.Sender.Transport)
	}
	switch cfg.Sender.Routing {
	case "hash", "ring":
	default:
		return fmt.Errorf("%w: unsupported sender.routing: %s (must be hash/ring)", core.ErrConfigInvalid, cfg.Sender.Routing)
	}
	if len(cfg.Sender.Servers) == 0 {
		return fmt.Errorf("%w: sender.servers requires at least one host:port", core.ErrConfigInvalid)
	}
	if cfg.Sender.DSCP < 0 || cfg.Sender.DSCP > 63 {
		return fmt.Errorf("%w: sender.dscp must be within 0..63", core.ErrConfigInvalid)
	}
	if cfg.Sender.KeepAliveInterval < 0 {
		return fmt.Errorf("%w: sender.keepalive_interval must be >= 0", core.ErrConfigInvalid)
	}
	if cfg.Sender.KeepAliveInterval > 0 && cfg.Sender.KeepAliveInterval < time.Second {
		return fmt.Errorf("%w: sender.keepalive_interval must be at least 1s", core.ErrConfigInvalid)
	}

	// ── Correlation ──
	if cfg.Correlation.Enabled && cfg.Correlation.TTL <= 0 {
		return fmt.Errorf("%w: correlation.ttl must be positive", core.ErrConfigInvalid)
	}

	return nil
}

// SenderMap returns the sender section as the generic map components accept in Init.
func (cfg *GlobalConfig) SenderMap() map[string]any {
	return map[string]any{
		"transport":          cfg.Sender.Transport,
		"servers":            cfg.Sender.Servers,
		"routing":            cfg.Sender.Routing,
		"dscp":               cfg.Sender.DSCP,
		"write_timeout":      cfg.Sender.WriteTimeout.String(),
		"keepalive_interval": cfg.Sender.KeepAliveInterval.String(),
	}
}
