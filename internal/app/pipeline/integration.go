package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/haptics"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// Lease is the reference-counted side of the daemon connection.
type Lease interface {
	Acquire()
	Release()
}

type IntegrationConfig struct {
	Name          string
	Transport     string
	Buffer        int
	PruneInterval time.Duration
	ThrottleTTL   time.Duration
}

type IntegrationOption func(*Integration)

// WithEmitter receives every record that reached the dispatch queue.
func WithEmitter(fn func(*domain.EventRecord)) IntegrationOption {
	return func(i *Integration) { i.emit = append(i.emit, fn) }
}

func WithSession(id uuid.UUID) IntegrationOption {
	return func(i *Integration) { i.session = id }
}

func WithIntegrationClock(now func() time.Time) IntegrationOption {
	return func(i *Integration) { i.now = now }
}

// Integration runs one source through its own mapper and throttle.
type Integration struct {
	cfg        IntegrationConfig
	source     ports.Source
	mapper     ports.Mapper
	throttle   *haptics.Throttle
	lease      Lease
	dispatcher *Dispatcher
	obs        ports.Observability
	emit       []func(*domain.EventRecord)
	session    uuid.UUID
	now        func() time.Time

	mu      sync.Mutex
	running bool
	signals chan domain.Signal
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewIntegration(cfg IntegrationConfig, src ports.Source, m ports.Mapper, lease Lease, d *Dispatcher, obs ports.Observability, opts ...IntegrationOption) (*Integration, error) {
	if cfg.Name == "" {
		return nil, errors.New("integration name is required")
	}
	if src == nil || m == nil || d == nil {
		return nil, fmt.Errorf("integration %s: source, mapper and dispatcher are required", cfg.Name)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Minute
	}
	if cfg.ThrottleTTL <= 0 {
		cfg.ThrottleTTL = 5 * time.Minute
	}
	i := &Integration{
		cfg:        cfg,
		source:     src,
		mapper:     m,
		throttle:   haptics.NewThrottle(),
		lease:      lease,
		dispatcher: d,
		obs:        obs,
		session:    uuid.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func (i *Integration) Name() string { return i.cfg.Name }

func (i *Integration) Transport() string { return i.cfg.Transport }

func (i *Integration) MapperKind() string { return i.mapper.Kind() }

func (i *Integration) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running
}

func (i *Integration) ThrottleKeys() int { return i.throttle.Len() }

// Start acquires the daemon connection and starts the source.
func (i *Integration) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return fmt.Errorf("integration %s already running", i.cfg.Name)
	}
	if i.lease != nil {
		i.lease.Acquire()
	}
	i.signals = make(chan domain.Signal, i.cfg.Buffer)
	i.stop = make(chan struct{})
	if err := i.source.Start(i.signals); err != nil {
		if i.lease != nil {
			i.lease.Release()
		}
		return fmt.Errorf("integration %s: %w", i.cfg.Name, err)
	}
	i.running = true
	i.wg.Add(1)
	go i.loop(i.signals, i.stop)

	i.obs.LogInfo("integration_started",
		ports.Field{Key: "name", Value: i.cfg.Name},
		ports.Field{Key: "transport", Value: i.cfg.Transport},
		ports.Field{Key: "mapper", Value: i.mapper.Kind()})
	return nil
}

// Stop stops the source, drains the loop and releases the connection.
func (i *Integration) Stop() error {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return nil
	}
	i.running = false
	stop := i.stop
	i.mu.Unlock()

	err := i.source.Stop()
	close(stop)
	i.wg.Wait()
	if i.lease != nil {
		i.lease.Release()
	}
	i.obs.LogInfo("integration_stopped", ports.Field{Key: "name", Value: i.cfg.Name})
	return err
}

func (i *Integration) loop(signals <-chan domain.Signal, stop <-chan struct{}) {
	defer i.wg.Done()
	prune := time.NewTicker(i.cfg.PruneInterval)
	defer prune.Stop()
	for {
		select {
		case <-stop:
			return
		case sig := <-signals:
			i.Handle(sig)
		case <-prune.C:
			if n := i.throttle.Prune(i.now().Add(-i.cfg.ThrottleTTL)); n > 0 {
				i.obs.LogInfo("throttle_pruned", ports.Field{Key: "name", Value: i.cfg.Name}, ports.Field{Key: "keys", Value: n})
			}
		}
	}
}

// Handle maps one signal and enqueues whatever survives the throttle. It
// returns the number of messages enqueued.
func (i *Integration) Handle(sig domain.Signal) int {
	start := time.Now()
	at := sig.At
	if at.IsZero() {
		at = i.now()
	}
	if sig.Source == "" {
		sig.Source = i.cfg.Name
	}

	if sig.Telemetry != nil && !sig.Telemetry.Valid() {
		i.obs.IncCounter("hapticflow_malformed_signals_total", 1)
	}
	pulses := Collapse(i.mapper.Map(sig))
	sent := 0
	for _, p := range pulses {
		if !i.throttle.ShouldFire(p.Key, at, p.Cooldown) {
			i.obs.IncCounter("hapticflow_commands_throttled_total", 1)
			continue
		}
		for _, msg := range p.Messages {
			if !i.dispatcher.Enqueue(msg) {
				continue
			}
			sent++
			if len(i.emit) == 0 {
				continue
			}
			rec := domain.NewEventRecord(i.session, i.cfg.Name, p.Key, msg, at)
			for _, fn := range i.emit {
				fn(rec)
			}
		}
	}
	i.obs.ObserveLatency("hapticflow_map_latency_seconds", time.Since(start).Seconds())
	return sent
}

// Collapse keeps one pulse per key. A later pulse replaces an earlier one in
// place, so the last evaluated rule wins for a cell.
func Collapse(pulses []domain.Pulse) []domain.Pulse {
	if len(pulses) < 2 {
		return pulses
	}
	idx := make(map[string]int, len(pulses))
	out := make([]domain.Pulse, 0, len(pulses))
	for _, p := range pulses {
		if j, ok := idx[p.Key]; ok {
			out[j] = p
			continue
		}
		idx[p.Key] = len(out)
		out = append(out, p)
	}
	return out
}
