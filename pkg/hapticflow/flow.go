package hapticflow

import (
	"context"
	"errors"
)

// Flow chains Conf, StreamIN and StreamOUT into a ready Runtime.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption runs once the config is loaded.
type FlowOption func(*Flow)

// StreamInOption binds sources, frame capture or observability.
type StreamInOption func(*Flow)

// StreamOutOption binds the command sender or the history sink.
type StreamOutOption func(*Flow)

// Conf reads the YAML config at path.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig starts a Flow from a Config built in code.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	f := &Flow{cfg: cfg}
	apply(f, opts)
	return f, nil
}

// Config is editable until StreamOUT.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f != nil {
		f.appendOptions(opts...)
	}
	return f
}

func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f != nil {
		apply(f, opts)
	}
	return f
}

// StreamOUT applies opts and builds the Runtime. The bridge is not started.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Runtime, error) {
	if f == nil {
		return nil, errors.New("flow is nil")
	}
	apply(f, opts)
	return NewRuntime(f.cfg, f.opts...)
}

// Run builds the Runtime and blocks in Runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) { f.appendOptions(opts...) }
}

// StreamInSource binds src to the named integration.
func StreamInSource(name string, src Source) StreamInOption {
	return func(f *Flow) {
		if src != nil {
			f.appendOptions(WithSource(name, src))
		}
	}
}

// StreamInExternal binds a fresh ExternalSource to the named integration and
// stores it in out for publishing.
func StreamInExternal(name string, out **ExternalSource) StreamInOption {
	return func(f *Flow) {
		src := NewExternalSource(name)
		if out != nil {
			*out = src
		}
		f.appendOptions(WithSource(name, src))
	}
}

// StreamInFrames replaces the frame capture of a screen integration.
func StreamInFrames(name string, fs FrameSource) StreamInOption {
	return func(f *Flow) {
		if fs != nil {
			f.appendOptions(WithFrameSource(name, fs))
		}
	}
}

func StreamInObservability(obs Observability) StreamInOption {
	return StreamInOption(withObs(obs))
}

// StreamOutSender replaces the daemon connection.
func StreamOutSender(s CommandSender) StreamOutOption {
	return func(f *Flow) {
		if s != nil {
			f.appendOptions(WithSender(s))
		}
	}
}

// StreamOutSink replaces the history sink.
func StreamOutSink(s Sink) StreamOutOption {
	return func(f *Flow) {
		if s != nil {
			f.appendOptions(WithSink(s))
		}
	}
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return StreamOutOption(withObs(obs))
}

// StreamOutCallback writes history batches to fn.
func StreamOutCallback(name string, fn RecordBatchSink) StreamOutOption {
	return func(f *Flow) { f.appendOptions(WithSink(NewCallbackSink(name, fn))) }
}

func withObs(obs Observability) func(*Flow) {
	return func(f *Flow) {
		if obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

func apply[O ~func(*Flow)](f *Flow, opts []O) {
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
}

func (f *Flow) appendOptions(opts ...RuntimeOption) {
	if f == nil {
		return
	}
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
