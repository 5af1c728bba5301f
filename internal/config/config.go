// Package config loads the process configuration for the srv6dp
// demo/simulation binary. Structure and Load/setDefaults split are
// modeled directly on nf/upf/internal/config/config.go (SPEC_FULL.md
// §10.3).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, one sub-struct per concern.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Table     TableConfig     `yaml:"table"`
	GSO       GSOConfig       `yaml:"gso"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EngineConfig sizes the scheduler that drives the four SRv6<->GTP-U
// engines.
type EngineConfig struct {
	FrameSize  int `yaml:"frame_size"`  // max buffer handles per frame, §5; not read by srv6dp, frame sizes are not bounded
	NumWorkers int `yaml:"num_workers"` // worker threads, one frame each
	Headroom   int `yaml:"headroom"`    // bytes of reserved prepend space per buffer, §6
}

// TableConfig seeds the local-SID/SR-policy table at startup from a flat
// config file, standing in for the control-plane binding calls a real
// deployment would make instead.
type TableConfig struct {
	EncapSource string     `yaml:"encap_source"` // GTP6.D.DI's configured global encap source
	LocalSIDs   []LocalSID `yaml:"local_sids"`
	Policies    []SRPolicy `yaml:"policies"`
}

type LocalSID struct {
	AdjIndex    uint32 `yaml:"adj_index"`
	PrefixLen   int    `yaml:"prefix_len"`
	Engine      string `yaml:"engine"` // "gtp4e" | "gtp6e" | "gtp6d" | "gtp6ddi"
	SRPrefix    string `yaml:"sr_prefix"`
	SRPrefixLen int    `yaml:"sr_prefixlen"`
}

type SRPolicy struct {
	BindingSID   string        `yaml:"binding_sid"`
	SegmentLists []SegmentList `yaml:"segment_lists"`
}

type SegmentList struct {
	Segments []string `yaml:"segments"`
}

// GSOConfig sizes the segmentation engine.
type GSOConfig struct {
	BufferDataCap int `yaml:"buffer_data_cap"`
}

// MetricsConfig configures the Prometheus metrics/admin HTTP surface.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingConfig is the tracing section of the config file. srv6dp does
// not read it: internal/scheduler emits one span per dispatched frame
// through the global OpenTelemetry tracer provider, and no exporter is
// set up from these fields.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// TelemetryConfig configures the optional per-packet rewrite trace sink.
type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ClickHouseDSN []string      `yaml:"clickhouse_addresses"`
	Database      string        `yaml:"database"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	BatchSize     int           `yaml:"batch_size"`
	// FlushIntervalSeconds is plain seconds rather than a time.Duration
	// field: yaml.v3 decodes scalars structurally (no TextUnmarshaler
	// hook for time.Duration), so a human-written "1s" would fail to
	// parse against a time.Duration field.
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
}

// FlushInterval returns the configured flush period as a time.Duration.
func (c TelemetryConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// LoggingConfig is the logging section of the config file. srv6dp builds
// its zap.Logger (info level, JSON) before loading the config and does
// not apply these fields.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file, applying defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	setDefaults(&cfg)
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Engine.FrameSize == 0 {
		cfg.Engine.FrameSize = 256 // §5: "up to 256 buffer handles"
	}
	if cfg.Engine.NumWorkers == 0 {
		cfg.Engine.NumWorkers = 4
	}
	if cfg.Engine.Headroom == 0 {
		cfg.Engine.Headroom = 192
	}
	if cfg.GSO.BufferDataCap == 0 {
		cfg.GSO.BufferDataCap = 2048
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9096"
	}
	if cfg.Telemetry.BatchSize == 0 {
		cfg.Telemetry.BatchSize = 256
	}
	if cfg.Telemetry.FlushIntervalSeconds == 0 {
		cfg.Telemetry.FlushIntervalSeconds = 1
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
