package hapticflow

import (
	"github.com/ghalamif/HapticFlow/internal/adapters/daemon"
	"github.com/ghalamif/HapticFlow/internal/adapters/logtail"
	"github.com/ghalamif/HapticFlow/internal/adapters/opcua"
	"github.com/ghalamif/HapticFlow/internal/adapters/osc"
	"github.com/ghalamif/HapticFlow/internal/adapters/serial"
	"github.com/ghalamif/HapticFlow/internal/app/config"
	"github.com/ghalamif/HapticFlow/internal/mapper"
	"github.com/ghalamif/HapticFlow/internal/ports"
	"github.com/ghalamif/HapticFlow/internal/screen"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// DaemonConfig locates the vest daemon.
	DaemonConfig = daemon.Config
	// DispatchConfig bounds the outbound queue and throttle tables.
	DispatchConfig = config.DispatchConfig
	// MetricsConfig configures the status/metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// HistoryConfig selects the event history backend.
	HistoryConfig = config.HistoryConfig
	// WALConfig locates the history journal.
	WALConfig = config.WALConfig
	// Policy controls journal/queue thresholds for the event history.
	Policy = ports.Policy
	// SourceConfig describes one integration.
	SourceConfig = config.SourceConfig
	// MapperConfig selects the driving or event rule set.
	MapperConfig = mapper.Config
	// EventsConfig configures a discrete-event profile.
	EventsConfig = mapper.EventsConfig
	// DrivingConfig configures the continuous telemetry channels.
	DrivingConfig = mapper.DrivingConfig
	OSCConfig     = osc.Config
	SerialConfig  = serial.Config
	OPCUAConfig   = opcua.Config
	LogTailConfig = logtail.Config
	ScreenConfig  = screen.Config
)

// Transport names accepted in SourceConfig.Transport.
const (
	TransportOSC      = config.TransportOSC
	TransportSerial   = config.TransportSerial
	TransportOPCUA    = config.TransportOPCUA
	TransportLogTail  = config.TransportLogTail
	TransportScreen   = config.TransportScreen
	TransportExternal = config.TransportExternal
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig decodes, defaults and validates YAML bytes.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
