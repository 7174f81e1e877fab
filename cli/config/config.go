package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/suipack/archive"
	"github.com/pithecene-io/suipack/lode"
)

// Config represents a suipack.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Archive        string          `yaml:"archive"`
	Decompiler     string          `yaml:"decompiler"`
	Force          bool            `yaml:"force"`
	CheckpointFile string          `yaml:"checkpoint_file"`
	Endpoints      EndpointsConfig `yaml:"endpoints"`
	Save           SaveConfig      `yaml:"save"`
	Mirror         MirrorConfig    `yaml:"mirror"`
	Adapter        AdapterConfig   `yaml:"adapter"`
	Log            LogConfig       `yaml:"log"`
	Metrics        MetricsConfig   `yaml:"metrics"`
}

// EndpointsConfig holds remote query endpoint defaults.
type EndpointsConfig struct {
	GraphQL   string   `yaml:"graphql"`
	RPC       string   `yaml:"rpc"`
	Timeout   Duration `yaml:"timeout"`
	PageSize  int      `yaml:"page_size"`
	UserAgent string   `yaml:"user_agent"`
}

// SaveConfig toggles individual artifacts. Omitted toggles are enabled.
type SaveConfig struct {
	BCS        *bool `yaml:"bcs,omitempty"`
	Bytecode   *bool `yaml:"bytecode,omitempty"`
	Decompiled *bool `yaml:"decompiled,omitempty"`
	CallGraph  *bool `yaml:"call_graph,omitempty"`
	Metadata   *bool `yaml:"metadata,omitempty"`
}

// Options converts the toggles into archive save options.
func (s SaveConfig) Options() archive.SaveOptions {
	return archive.SaveOptions{
		BCS:        enabled(s.BCS),
		Bytecode:   enabled(s.Bytecode),
		Decompiled: enabled(s.Decompiled),
		CallGraph:  enabled(s.CallGraph),
		Metadata:   enabled(s.Metadata),
	}
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// MirrorConfig holds object-storage mirror defaults. An empty backend
// disables the mirror.
type MirrorConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// LodeConfig converts the section into a mirror config. For s3 the path
// is "bucket/prefix"; for fs it is the mirror directory.
func (m MirrorConfig) LodeConfig(force bool) lode.Config {
	cfg := lode.Config{Backend: m.Backend, Force: force}
	switch m.Backend {
	case lode.BackendS3:
		bucket, prefix := lode.ParseS3Path(m.Path)
		cfg.S3 = lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       m.Region,
			Endpoint:     m.Endpoint,
			UsePathStyle: m.S3PathStyle,
		}
	default:
		cfg.Root = m.Path
	}
	return cfg
}

// AdapterConfig holds completion adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// LogConfig enables a rotating log file.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig holds metrics export defaults.
type MetricsConfig struct {
	// Textfile is a node-exporter textfile collector path.
	Textfile string `yaml:"textfile"`
}

// Validate checks cross-field constraints the YAML decoder cannot.
func (c *Config) Validate() error {
	switch c.Mirror.Backend {
	case "", lode.BackendFS, lode.BackendS3:
	default:
		return fmt.Errorf("mirror.backend must be %q or %q, got %q", lode.BackendFS, lode.BackendS3, c.Mirror.Backend)
	}
	if c.Mirror.Backend != "" && c.Mirror.Path == "" {
		return fmt.Errorf("mirror.path is required for the %s backend", c.Mirror.Backend)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required for the %s adapter", c.Adapter.Type)
	}
	if c.Endpoints.PageSize < 0 {
		return fmt.Errorf("endpoints.page_size must be >= 0, got %d", c.Endpoints.PageSize)
	}
	return nil
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
