package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/HapticFlow/internal/adapters/daemon"
	"github.com/ghalamif/HapticFlow/internal/adapters/logtail"
	"github.com/ghalamif/HapticFlow/internal/adapters/opcua"
	"github.com/ghalamif/HapticFlow/internal/adapters/osc"
	"github.com/ghalamif/HapticFlow/internal/adapters/serial"
	"github.com/ghalamif/HapticFlow/internal/haptics"
	"github.com/ghalamif/HapticFlow/internal/mapper"
	"github.com/ghalamif/HapticFlow/internal/ports"
	"github.com/ghalamif/HapticFlow/internal/screen"
)

// Source transports.
const (
	TransportOSC      = "osc"
	TransportSerial   = "serial"
	TransportOPCUA    = "opcua"
	TransportLogTail  = "logtail"
	TransportScreen   = "screen"
	TransportExternal = "external"
)

// History backends.
const (
	BackendNone     = "none"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

type Config struct {
	Daemon   daemon.Config  `yaml:"daemon"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	History  HistoryConfig  `yaml:"history"`
	Sources  []SourceConfig `yaml:"sources"`
}

type DispatchConfig struct {
	QueueLen       int           `yaml:"queue_len"`
	OnQueueFull    string        `yaml:"on_queue_full"` // "drop", "block"
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
	PruneInterval  time.Duration `yaml:"prune_interval"`
	ThrottleTTL    time.Duration `yaml:"throttle_ttl"`
	Layout         string        `yaml:"layout"`
	StopOnShutdown *bool         `yaml:"stop_on_shutdown"`
}

// SendStop reports whether StopAll should be sent on shutdown (default true).
func (d DispatchConfig) SendStop() bool { return d.StopOnShutdown == nil || *d.StopOnShutdown }

type MetricsConfig struct {
	Addr     string `yaml:"addr"`
	Disabled bool   `yaml:"disabled"`
}

type HistoryConfig struct {
	Backend  string         `yaml:"backend"`
	Recent   int            `yaml:"recent"`
	Policy   ports.Policy   `yaml:"policy"`
	WAL      WALConfig      `yaml:"wal"`
	Postgres PostgresConfig `yaml:"postgres"`
	Bolt     BoltConfig     `yaml:"bolt"`
}

type WALConfig struct {
	Dir string `yaml:"dir"`
}

type PostgresConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type BoltConfig struct {
	Path    string `yaml:"path"`
	Bucket  string `yaml:"bucket"`
	MaxKeep int    `yaml:"max_keep"`
}

// SourceConfig is one integration: a transport, its settings and a mapper.
type SourceConfig struct {
	Name      string         `yaml:"name"`
	Transport string         `yaml:"transport"`
	Disabled  bool           `yaml:"disabled"`
	OSC       osc.Config     `yaml:"osc"`
	Serial    serial.Config  `yaml:"serial"`
	OPCUA     opcua.Config   `yaml:"opcua"`
	LogTail   logtail.Config `yaml:"logtail"`
	Screen    screen.Config  `yaml:"screen"`
	Mapper    mapper.Config  `yaml:"mapper"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Prepare applies defaults and validates an in-memory config.
func (c *Config) Prepare() error {
	c.applyDefaults()
	return c.validate()
}

func (c *Config) applyDefaults() {
	c.Daemon.ApplyDefaults()

	if c.Dispatch.QueueLen == 0 {
		c.Dispatch.QueueLen = 256
	}
	if c.Dispatch.OnQueueFull == "" {
		c.Dispatch.OnQueueFull = "drop"
	}
	if c.Dispatch.EnqueueTimeout == 0 {
		c.Dispatch.EnqueueTimeout = 20 * time.Millisecond
	}
	if c.Dispatch.PruneInterval == 0 {
		c.Dispatch.PruneInterval = time.Minute
	}
	if c.Dispatch.ThrottleTTL == 0 {
		c.Dispatch.ThrottleTTL = 5 * time.Minute
	}
	if c.Dispatch.Layout == "" {
		c.Dispatch.Layout = haptics.HardwareLayout.Name()
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9110"
	}

	h := &c.History
	if h.Backend == "" {
		h.Backend = BackendNone
	}
	if h.Recent == 0 {
		h.Recent = 50
	}
	if h.Policy.MaxWALSizeBytes == 0 {
		h.Policy.MaxWALSizeBytes = 256 << 20
	}
	if h.Policy.MaxQueueLen == 0 {
		h.Policy.MaxQueueLen = 10_000
	}
	if h.Policy.MaxBatchSize == 0 {
		h.Policy.MaxBatchSize = 500
	}
	if h.Policy.IdleSleep == 0 {
		h.Policy.IdleSleep = 50 * time.Millisecond
	}
	if h.Policy.OnQueueFull == "" {
		h.Policy.OnQueueFull = "drop"
	}
	if h.Policy.OnWALFull == "" {
		h.Policy.OnWALFull = "drop"
	}
	if h.WAL.Dir == "" {
		h.WAL.Dir = "./data/history"
	}
	if h.Postgres.Table == "" {
		h.Postgres.Table = "haptic_events"
	}
	if h.Bolt.Path == "" {
		h.Bolt.Path = "./data/history.db"
	}
	if h.Bolt.Bucket == "" {
		h.Bolt.Bucket = "events"
	}
	if h.Bolt.MaxKeep == 0 {
		h.Bolt.MaxKeep = 10_000
	}

	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Mapper.Kind == "" {
			s.Mapper.Kind = defaultMapperKind(s.Transport)
		}
		if s.Transport == TransportScreen && s.Mapper.Kind == mapper.KindEvents && s.Mapper.Events.Profile == "" {
			s.Mapper.Events.Profile = mapper.ProfileScreen
		}
		s.Mapper.ApplyDefaults()
		switch s.Transport {
		case TransportOSC:
			s.OSC.ApplyDefaults()
		case TransportSerial:
			s.Serial.ApplyDefaults()
		case TransportOPCUA:
			s.OPCUA.ApplyDefaults()
		case TransportLogTail:
			s.LogTail.ApplyDefaults()
		case TransportScreen:
			s.Screen.ApplyDefaults()
		}
	}
}

func defaultMapperKind(transport string) string {
	switch transport {
	case TransportOSC, TransportOPCUA:
		return mapper.KindDriving
	default:
		return mapper.KindEvents
	}
}

func (c *Config) validate() error {
	if err := c.Daemon.Validate(); err != nil {
		return fmt.Errorf("daemon.%w", err)
	}
	if c.Dispatch.QueueLen < 1 {
		return errors.New("dispatch.queue_len must be >= 1")
	}
	switch c.Dispatch.OnQueueFull {
	case "drop", "block":
	default:
		return fmt.Errorf("dispatch.on_queue_full must be drop or block, got %q", c.Dispatch.OnQueueFull)
	}
	if _, err := haptics.LayoutByName(c.Dispatch.Layout); err != nil {
		return fmt.Errorf("dispatch.layout: %w", err)
	}
	if !c.Metrics.Disabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required")
	}

	switch c.History.Backend {
	case BackendNone:
	case BackendPostgres:
		if c.History.Postgres.ConnString == "" {
			return errors.New("history.postgres.conn_string is required")
		}
	case BackendBolt:
		if c.History.Bolt.Path == "" {
			return errors.New("history.bolt.path is required")
		}
	default:
		return fmt.Errorf("history.backend must be none, postgres or bolt, got %q", c.History.Backend)
	}
	if c.History.Backend != BackendNone && c.History.WAL.Dir == "" {
		return errors.New("history.wal.dir is required")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("sources.%s: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if err := s.validate(); err != nil {
			return fmt.Errorf("sources.%s.%w", s.Name, err)
		}
	}
	return nil
}

func (s *SourceConfig) validate() error {
	var err error
	switch s.Transport {
	case TransportOSC:
		err = prefix("osc", s.OSC.Validate())
	case TransportSerial:
		err = prefix("serial", s.Serial.Validate())
	case TransportOPCUA:
		err = prefix("opcua", s.OPCUA.Validate())
	case TransportLogTail:
		err = prefix("logtail", s.LogTail.Validate())
	case TransportScreen:
		err = prefix("screen", s.Screen.Validate())
	case TransportExternal:
	default:
		return fmt.Errorf("transport: unknown transport %q", s.Transport)
	}
	if err != nil {
		return err
	}
	return prefix("mapper", s.Mapper.Validate())
}

func prefix(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key, err)
}

// Enabled returns the sources that are not disabled.
func (c *Config) Enabled() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}
