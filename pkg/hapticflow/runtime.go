package hapticflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/ghalamif/HapticFlow/internal/adapters/capture"
	"github.com/ghalamif/HapticFlow/internal/adapters/daemon"
	"github.com/ghalamif/HapticFlow/internal/adapters/logtail"
	"github.com/ghalamif/HapticFlow/internal/adapters/observability"
	"github.com/ghalamif/HapticFlow/internal/adapters/opcua"
	"github.com/ghalamif/HapticFlow/internal/adapters/osc"
	"github.com/ghalamif/HapticFlow/internal/adapters/queue"
	"github.com/ghalamif/HapticFlow/internal/adapters/serial"
	"github.com/ghalamif/HapticFlow/internal/adapters/sink"
	"github.com/ghalamif/HapticFlow/internal/adapters/statushub"
	"github.com/ghalamif/HapticFlow/internal/adapters/wal"
	"github.com/ghalamif/HapticFlow/internal/app/config"
	"github.com/ghalamif/HapticFlow/internal/app/pipeline"
	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/haptics"
	"github.com/ghalamif/HapticFlow/internal/mapper"
	"github.com/ghalamif/HapticFlow/internal/ports"
	"github.com/ghalamif/HapticFlow/internal/screen"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	sources       map[string]Source
	frames        map[string]FrameSource
	sender        CommandSender
	sink          Sink
	wal           WAL
	queue         RecordQueue
	observability Observability
}

// WithSource binds a source to the configured integration of the same name.
// Integrations with transport "external" require one; for other transports
// it replaces the built-in adapter.
func WithSource(name string, src Source) RuntimeOption {
	return func(o *runtimeOverrides) {
		if o.sources == nil {
			o.sources = make(map[string]Source)
		}
		o.sources[name] = src
	}
}

// WithFrameSource replaces the display or image capture of a screen integration.
func WithFrameSource(name string, fs FrameSource) RuntimeOption {
	return func(o *runtimeOverrides) {
		if o.frames == nil {
			o.frames = make(map[string]FrameSource)
		}
		o.frames[name] = fs
	}
}

// WithSender routes commands somewhere other than the TCP daemon. If the
// sender also has Acquire/Release it is leased like the daemon connection.
func WithSender(s CommandSender) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sender = s
	}
}

// WithSink injects a history sink; history is recorded even when
// history.backend is "none".
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithWAL lets callers bring their own history journal.
func WithWAL(w WAL) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.wal = w
	}
}

// WithRecordQueue injects a custom history queue implementation.
func WithRecordQueue(q RecordQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend instead of the
// Prometheus one.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// Runtime wires every configured integration to the shared dispatcher and
// daemon connection, plus the status hub and optional event history.
type Runtime struct {
	cfg     *Config
	obs     ports.Observability
	session uuid.UUID

	conn       *daemon.Conn
	sender     ports.CommandSender
	lease      pipeline.Lease
	dispatcher *pipeline.Dispatcher

	integrations []*pipeline.Integration

	recent   *sink.RecentRing
	hub      *statushub.Hub
	history  *pipeline.History
	sink     ports.Sink
	postgres *sink.PostgresSink
	db       *sql.DB
	bolt     *sink.BoltSink

	mu        sync.Mutex
	started   bool
	stopped   bool
	gaugeStop chan struct{}
	gaugeDone chan struct{}
}

// NewRuntime validates cfg and builds the runtime. Nothing is started and no
// socket is opened until Start.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}

	overrides := runtimeOverrides{}
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs()
	}

	r := &Runtime{
		cfg:     cfg,
		obs:     obs,
		session: uuid.New(),
		recent:  sink.NewRecentRing(cfg.History.Recent),
	}
	r.hub = statushub.New(r.recent, obs)

	if overrides.sender != nil {
		r.sender = overrides.sender
		if l, ok := overrides.sender.(pipeline.Lease); ok {
			r.lease = l
		}
	} else {
		conn, err := daemon.New(cfg.Daemon, obs, daemon.WithStateListener(r.hub.SetConnection))
		if err != nil {
			return nil, err
		}
		r.conn = conn
		r.sender = conn
		r.lease = conn
	}

	r.dispatcher = pipeline.NewDispatcher(r.sender, pipeline.DispatchPolicy{
		QueueLen:       cfg.Dispatch.QueueLen,
		OnQueueFull:    cfg.Dispatch.OnQueueFull,
		EnqueueTimeout: cfg.Dispatch.EnqueueTimeout,
	}, obs)

	if err := r.buildHistory(overrides); err != nil {
		r.closeResources()
		return nil, err
	}

	layout, err := haptics.LayoutByName(cfg.Dispatch.Layout)
	if err != nil {
		r.closeResources()
		return nil, err
	}
	for _, sc := range cfg.Enabled() {
		integ, err := r.buildIntegration(sc, layout, overrides)
		if err != nil {
			r.closeResources()
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		r.integrations = append(r.integrations, integ)
		r.hub.SetSource(r.sourceStatus(integ))
	}
	return r, nil
}

func (r *Runtime) buildHistory(o runtimeOverrides) error {
	hc := r.cfg.History
	var snk ports.Sink
	switch {
	case o.sink != nil:
		snk = o.sink
	case hc.Backend == config.BackendPostgres:
		db, err := sql.Open("postgres", hc.Postgres.ConnString)
		if err != nil {
			return err
		}
		pg, err := sink.NewPostgresSink(db, hc.Postgres.Table)
		if err != nil {
			_ = db.Close()
			return err
		}
		r.db, r.postgres, snk = db, pg, pg
	case hc.Backend == config.BackendBolt:
		b, err := sink.OpenBoltSink(hc.Bolt.Path, hc.Bolt.Bucket, hc.Bolt.MaxKeep)
		if err != nil {
			return err
		}
		r.bolt, snk = b, b
	default:
		return nil
	}

	journal := o.wal
	if journal == nil {
		w, err := wal.NewFileWAL(hc.WAL.Dir)
		if err != nil {
			return err
		}
		journal = w
	}
	q := o.queue
	if q == nil {
		q = queue.NewMemQueue(hc.Policy.MaxQueueLen)
	}
	r.sink = snk
	r.history = pipeline.NewHistory(journal, q, snk, hc.Policy, r.obs)
	return nil
}

func (r *Runtime) buildIntegration(sc config.SourceConfig, layout haptics.Layout, o runtimeOverrides) (*pipeline.Integration, error) {
	src, err := r.buildSource(sc, o)
	if err != nil {
		return nil, err
	}
	m, err := mapper.New(sc.Mapper, layout, r.obs)
	if err != nil {
		return nil, err
	}
	return pipeline.NewIntegration(pipeline.IntegrationConfig{
		Name:          sc.Name,
		Transport:     sc.Transport,
		PruneInterval: r.cfg.Dispatch.PruneInterval,
		ThrottleTTL:   r.cfg.Dispatch.ThrottleTTL,
	}, src, m, r.lease, r.dispatcher, r.obs,
		pipeline.WithSession(r.session),
		pipeline.WithEmitter(r.emit))
}

func (r *Runtime) buildSource(sc config.SourceConfig, o runtimeOverrides) (ports.Source, error) {
	if src, ok := o.sources[sc.Name]; ok && src != nil {
		return src, nil
	}
	switch sc.Transport {
	case config.TransportOSC:
		return osc.NewSource(sc.Name, sc.OSC, r.obs)
	case config.TransportSerial:
		return serial.NewSource(sc.Name, sc.Serial, r.obs)
	case config.TransportOPCUA:
		return opcua.NewSource(sc.Name, sc.OPCUA, r.obs)
	case config.TransportLogTail:
		return logtail.New(sc.Name, sc.LogTail, r.obs)
	case config.TransportScreen:
		frames, ok := o.frames[sc.Name]
		if !ok || frames == nil {
			var err error
			if frames, err = capture.Open(sc.Screen.Display, sc.Screen.Image); err != nil {
				return nil, err
			}
		}
		return screen.NewWatcher(sc.Name, sc.Screen, frames, r.obs)
	case config.TransportExternal:
		return nil, errors.New("transport external needs a source registered with WithSource")
	default:
		return nil, fmt.Errorf("unknown transport %q", sc.Transport)
	}
}

// emit fans an accepted record out to the status surfaces and the history.
func (r *Runtime) emit(rec *domain.EventRecord) {
	r.recent.Add(rec)
	r.hub.Publish(rec)
	if r.history != nil {
		// drops are counted by History itself
		_ = r.history.Record(rec)
	}
}

func (r *Runtime) sourceStatus(i *pipeline.Integration) statushub.SourceStatus {
	return statushub.SourceStatus{
		Name:      i.Name(),
		Transport: i.Transport(),
		Mapper:    i.MapperKind(),
		Running:   i.Running(),
	}
}

// Start connects to the daemon, starts the status hub, the event history
// and every integration. It returns immediately; call Run to block on a
// context instead. A daemon that is not up yet is not an error: sends
// reconnect lazily.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("runtime already started")
	}
	if r.stopped {
		return errors.New("runtime already shut down")
	}

	if r.postgres != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.postgres.EnsureSchema(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
	}
	if r.history != nil {
		if err := r.history.Start(); err != nil {
			return err
		}
	}
	if !r.cfg.Metrics.Disabled {
		if err := r.hub.Start(r.cfg.Metrics.Addr); err != nil {
			return err
		}
	}

	r.dispatcher.Start()
	// held until Shutdown so the final stop goes out on an open socket
	if r.lease != nil {
		r.lease.Acquire()
	}
	if r.conn != nil {
		_ = r.conn.Connect(context.Background())
	}

	for idx, integ := range r.integrations {
		if err := integ.Start(); err != nil {
			for _, prev := range r.integrations[:idx] {
				_ = prev.Stop()
			}
			r.dispatcher.StopAll(false)
			if r.lease != nil {
				r.lease.Release()
			}
			return err
		}
		r.hub.SetSource(r.sourceStatus(integ))
	}

	r.gaugeStop = make(chan struct{})
	r.gaugeDone = make(chan struct{})
	go r.recordGauges(r.gaugeStop, r.gaugeDone, time.Second)

	r.started = true
	r.obs.LogInfo("runtime_started",
		ports.Field{Key: "integrations", Value: len(r.integrations)},
		ports.Field{Key: "daemon", Value: r.cfg.Daemon.Addr()},
		ports.Field{Key: "session", Value: r.session})
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops every integration, drains the dispatch queue, optionally
// stops all cells and releases the daemon connection, then closes the
// history and the status hub.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	var errs []error
	if started {
		close(r.gaugeStop)
		<-r.gaugeDone

		for _, integ := range r.integrations {
			if err := integ.Stop(); err != nil {
				errs = append(errs, err)
			}
			r.hub.SetSource(r.sourceStatus(integ))
		}
		r.dispatcher.StopAll(r.cfg.Dispatch.SendStop())
		if r.lease != nil {
			r.lease.Release()
		}
	}

	if r.history != nil {
		if err := r.history.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.hub.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, r.closeBackends())
	return errors.Join(errs...)
}

// closeResources releases everything NewRuntime opened.
func (r *Runtime) closeResources() {
	if r.history != nil {
		_ = r.history.Stop()
	}
	_ = r.closeBackends()
}

func (r *Runtime) closeBackends() error {
	var errs []error
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	if r.bolt != nil {
		errs = append(errs, r.bolt.Close())
		r.bolt = nil
	}
	return errors.Join(errs...)
}

func (r *Runtime) recordGauges(stop <-chan struct{}, done chan<- struct{}, interval time.Duration) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			keys := 0
			for _, integ := range r.integrations {
				keys += integ.ThrottleKeys()
			}
			r.obs.SetGauge("hapticflow_throttle_keys", float64(keys))
			if r.history != nil {
				r.obs.SetGauge("hapticflow_history_wal_size_bytes", float64(r.history.Stats().SizeBytes))
				r.obs.SetGauge("hapticflow_history_queue_length", float64(r.history.QueueLen()))
			}
		}
	}
}

// Send queues a message for the daemon outside of any integration.
func (r *Runtime) Send(msg Message) bool {
	return r.dispatcher.Enqueue(msg)
}

// Connection reports the daemon socket state. Custom senders always report
// Connected.
func (r *Runtime) Connection() ConnectionState {
	if r.conn == nil {
		return domain.Connected
	}
	return r.conn.State()
}

// Status returns the same snapshot served on /status.
func (r *Runtime) Status() Status {
	return r.hub.Snapshot()
}

// Recent returns recently emitted records, newest first.
func (r *Runtime) Recent() []*EventRecord {
	return r.recent.Snapshot()
}

// StatusAddr is the bound status/metrics address, empty until Start.
func (r *Runtime) StatusAddr() string {
	return r.hub.Addr()
}

// Integrations lists the configured integration names in start order.
func (r *Runtime) Integrations() []string {
	names := make([]string, len(r.integrations))
	for i, integ := range r.integrations {
		names[i] = integ.Name()
	}
	return names
}

// Session identifies the records emitted by this runtime.
func (r *Runtime) Session() uuid.UUID { return r.session }
