// Package config provides configuration loading with layered overrides.
// Load order: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	configloader "github.com/GabrielNunesIT/go-libs/config-loader"
)

// EnvPrefix is the prefix of environment variables that override file values.
// HEARTLOG_HEARTBEAT_INTERVAL maps to heartbeat.interval.
const EnvPrefix = "HEARTLOG_"

// Config is the root configuration structure for heartlog.
type Config struct {
	LogLevel  string          `koanf:"loglevel" yaml:"log_level" json:"log_level"`
	Sink      SinkConfig      `koanf:"sink"`
	Heartbeat HeartbeatConfig `koanf:"heartbeat"`
	Run       RunConfig       `koanf:"run"`
}

// SinkConfig selects and configures the handler installed on the logging
// context. Only the fields relevant to Kind are read.
type SinkConfig struct {
	Kind        string `koanf:"kind"`
	Destination string `koanf:"destination"`
	Level       string `koanf:"level"`

	MaxSizeMB   int           `koanf:"maxsizemb" yaml:"max_size_mb" json:"max_size_mb"`
	Backups     int           `koanf:"backups"`
	RotateEvery time.Duration `koanf:"rotateevery" yaml:"rotate_every" json:"rotate_every"`

	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Facility string `koanf:"facility"`

	Stream     string `koanf:"stream"` // "stderr" or "stdout"
	Capacity   int    `koanf:"capacity"`
	FlushLevel string `koanf:"flushlevel" yaml:"flush_level" json:"flush_level"`

	Mail          MailConfig          `koanf:"mail"`
	HTTP          HTTPConfig          `koanf:"http"`
	Elasticsearch ElasticsearchConfig `koanf:"elasticsearch"`
	Loki          LokiConfig          `koanf:"loki"`
	NATS          NATSConfig          `koanf:"nats"`
}

// MailConfig configures the smtp sink.
type MailConfig struct {
	Host     string   `koanf:"host"`
	From     string   `koanf:"from"`
	To       []string `koanf:"to"`
	Subject  string   `koanf:"subject"`
	User     string   `koanf:"user"`
	Password string   `koanf:"password"`
}

// HTTPConfig configures the http sink.
type HTTPConfig struct {
	URL    string `koanf:"url"`
	Method string `koanf:"method"` // "GET" or "POST"
}

// ElasticsearchConfig configures the elasticsearch sink.
type ElasticsearchConfig struct {
	Addresses     []string      `koanf:"addresses"`
	Index         string        `koanf:"index"`
	Username      string        `koanf:"username"`
	Password      string        `koanf:"password"`
	FlushInterval time.Duration `koanf:"flushinterval" yaml:"flush_interval" json:"flush_interval"`
}

// LokiConfig configures the loki sink.
type LokiConfig struct {
	URL           string            `koanf:"url"`
	TenantID      string            `koanf:"tenantid" yaml:"tenant_id" json:"tenant_id"`
	Labels        map[string]string `koanf:"labels"`
	BatchSize     int               `koanf:"batchsize" yaml:"batch_size" json:"batch_size"`
	FlushInterval time.Duration     `koanf:"flushinterval" yaml:"flush_interval" json:"flush_interval"`
}

// NATSConfig configures the nats sink.
type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// HeartbeatConfig configures the heartbeat emitter.
type HeartbeatConfig struct {
	Name string `koanf:"name"`

	// Interval is kept as text; anything that is not a plain non-negative
	// integer falls back to DefaultInterval.
	Interval        string `koanf:"interval"`
	DefaultInterval int    `koanf:"defaultinterval" yaml:"default_interval" json:"default_interval"`

	Elapsed string `koanf:"elapsed"` // "round" or "truncate"
	Message string `koanf:"message"`
	Replace bool   `koanf:"replace"`
}

// RunConfig controls the host loop.
type RunConfig struct {
	TickInterval time.Duration `koanf:"tickinterval" yaml:"tick_interval" json:"tick_interval"`
	BufferSize   int           `koanf:"buffersize" yaml:"buffer_size" json:"buffer_size"`
	WatchConfig  bool          `koanf:"watchconfig" yaml:"watch_config" json:"watch_config"`
}

// defaults returns the default configuration values.
func defaults() Config {
	return Config{
		LogLevel: "info",
		Sink: SinkConfig{
			Kind:        "stream",
			Level:       "info",
			MaxSizeMB:   50,
			Backups:     1,
			RotateEvery: time.Hour,
			Host:        "localhost",
			Stream:      "stderr",
			Capacity:    1000,
			FlushLevel:  "error",
			HTTP: HTTPConfig{
				Method: "GET",
			},
			Elasticsearch: ElasticsearchConfig{
				Index:         "heartlog",
				FlushInterval: 5 * time.Second,
			},
			Loki: LokiConfig{
				BatchSize:     100,
				FlushInterval: 1 * time.Second,
			},
			NATS: NATSConfig{
				Subject: "logs.heartlog",
			},
		},
		Heartbeat: HeartbeatConfig{
			Name:            "heartlog",
			DefaultInterval: 0,
			Elapsed:         "round",
		},
		Run: RunConfig{
			TickInterval: 1 * time.Second,
			BufferSize:   1000,
			WatchConfig:  true,
		},
	}
}

// Load reads configuration from all sources with proper override order.
// Order: defaults -> config file -> environment variables.
func Load(configPath string) (*Config, error) {
	opts := []configloader.Option[Config]{
		configloader.WithDefaults[Config](defaults()),
	}

	if configPath != "" {
		opts = append(opts, configloader.WithFile[Config](configPath))
	} else {
		for _, path := range []string{"./heartlog.yaml", "/etc/heartlog/config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				opts = append(opts, configloader.WithFile[Config](path))
				break
			}
		}
	}

	opts = append(opts, configloader.WithEnv[Config](EnvPrefix))

	loader := configloader.NewConfigLoader[Config](opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports settings that cannot work regardless of the sink kind.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Heartbeat.Elapsed) {
	case "", "round", "truncate":
	default:
		return fmt.Errorf("heartbeat.elapsed must be round or truncate, got %q", c.Heartbeat.Elapsed)
	}
	if c.Heartbeat.DefaultInterval < 0 {
		return fmt.Errorf("heartbeat.defaultinterval must not be negative, got %d", c.Heartbeat.DefaultInterval)
	}
	if c.Run.TickInterval <= 0 {
		return fmt.Errorf("run.tickinterval must be positive, got %s", c.Run.TickInterval)
	}
	if c.Run.BufferSize < 0 {
		return fmt.Errorf("run.buffersize must not be negative, got %d", c.Run.BufferSize)
	}
	switch strings.ToLower(c.Sink.Stream) {
	case "", "stderr", "stdout":
	default:
		return fmt.Errorf("sink.stream must be stderr or stdout, got %q", c.Sink.Stream)
	}
	return nil
}
