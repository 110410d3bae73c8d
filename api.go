package hapticflow

import (
	base "github.com/ghalamif/HapticFlow/pkg/hapticflow"
)

// Re-exported errors for convenience.
var (
	ErrQueueFull         = base.ErrQueueFull
	ErrWALFull           = base.ErrWALFull
	ErrSourceClosed      = base.ErrSourceClosed
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/HapticFlow directly.
type (
	Config          = base.Config
	DaemonConfig    = base.DaemonConfig
	DispatchConfig  = base.DispatchConfig
	MetricsConfig   = base.MetricsConfig
	HistoryConfig   = base.HistoryConfig
	WALConfig       = base.WALConfig
	Policy          = base.Policy
	SourceConfig    = base.SourceConfig
	MapperConfig    = base.MapperConfig
	EventsConfig    = base.EventsConfig
	DrivingConfig   = base.DrivingConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	StreamInOption  = base.StreamInOption
	StreamOutOption = base.StreamOutOption
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	EventRecord     = base.EventRecord
	RecordBatchSink = base.RecordBatchSink
	Signal          = base.Signal
	GameEvent       = base.GameEvent
	TelemetrySample = base.TelemetrySample
	Message         = base.Message
	Source          = base.Source
	FrameSource     = base.FrameSource
	CommandSender   = base.CommandSender
	Sink            = base.Sink
	WAL             = base.WAL
	RecordQueue     = base.RecordQueue
	Observability   = base.Observability
	QueuedRecord    = base.QueuedRecord
	WALEntryID      = base.WALEntryID
	WALStats        = base.WALStats
	Status          = base.Status
	ExternalSource  = base.ExternalSource
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSource(name string, src Source) StreamInOption {
	return base.StreamInSource(name, src)
}

func StreamInExternal(name string, out **ExternalSource) StreamInOption {
	return base.StreamInExternal(name, out)
}

func StreamInFrames(name string, fs FrameSource) StreamInOption {
	return base.StreamInFrames(name, fs)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSender(s CommandSender) StreamOutOption {
	return base.StreamOutSender(s)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn RecordBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithSource(name string, src Source) RuntimeOption {
	return base.WithSource(name, src)
}

func WithFrameSource(name string, fs FrameSource) RuntimeOption {
	return base.WithFrameSource(name, fs)
}

func WithSender(s CommandSender) RuntimeOption {
	return base.WithSender(s)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithWAL(w WAL) RuntimeOption {
	return base.WithWAL(w)
}

func WithRecordQueue(q RecordQueue) RuntimeOption {
	return base.WithRecordQueue(q)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn RecordBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []EventRecord, func()) {
	return base.NewChannelSink(name, buffer)
}

// External sources.
func NewExternalSource(name string) *ExternalSource {
	return base.NewExternalSource(name)
}
