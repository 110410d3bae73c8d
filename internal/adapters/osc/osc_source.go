// Package osc receives telemetry and event edges over Open Sound Control.
package osc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// FieldBinding maps an OSC address onto a telemetry field.
type FieldBinding struct {
	Address string  `yaml:"address"`
	Field   string  `yaml:"field"`
	Scale   float64 `yaml:"scale"`
}

// EventBinding fires a game event when the address rises above 0.5.
type EventBinding struct {
	Address string `yaml:"address"`
	Event   string `yaml:"event"`
	Hand    string `yaml:"hand"`
}

type Config struct {
	Addr   string         `yaml:"addr"`
	Tick   time.Duration  `yaml:"tick"`
	Fields []FieldBinding `yaml:"fields"`
	Events []EventBinding `yaml:"events"`
}

func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:9001"
	}
	if c.Tick <= 0 {
		c.Tick = 50 * time.Millisecond
	}
	for i := range c.Fields {
		if c.Fields[i].Scale == 0 {
			c.Fields[i].Scale = 1
		}
	}
}

func (c *Config) Validate() error {
	if len(c.Fields) == 0 && len(c.Events) == 0 {
		return errors.New("at least one field or event binding is required")
	}
	seen := make(map[string]bool)
	for _, f := range c.Fields {
		if !domain.ValidField(f.Field) {
			return fmt.Errorf("field binding %s: unknown telemetry field %q", f.Address, f.Field)
		}
		if seen[f.Address] {
			return fmt.Errorf("address %s bound twice", f.Address)
		}
		seen[f.Address] = true
	}
	for _, e := range c.Events {
		if e.Event == "" {
			return fmt.Errorf("event binding %s: event is required", e.Address)
		}
		if seen[e.Address] {
			return fmt.Errorf("address %s bound twice", e.Address)
		}
		seen[e.Address] = true
	}
	return nil
}

// Source is a UDP OSC server feeding one integration.
type Source struct {
	name string
	cfg  Config
	obs  ports.Observability

	fields map[string]FieldBinding
	events map[string]EventBinding

	mu       sync.Mutex
	snapshot domain.TelemetrySample
	dirty    bool
	levels   map[string]float64

	started bool
	conn    net.PacketConn
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewSource(name string, cfg Config, obs ports.Observability) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Source{
		name:   name,
		cfg:    cfg,
		obs:    obs,
		fields: make(map[string]FieldBinding, len(cfg.Fields)),
		events: make(map[string]EventBinding, len(cfg.Events)),
		levels: make(map[string]float64),
	}
	for _, f := range cfg.Fields {
		s.fields[f.Address] = f
	}
	for _, e := range cfg.Events {
		s.events[e.Address] = e
	}
	return s, nil
}

// Addr reports the bound UDP address once started.
func (s *Source) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *Source) Start(out chan<- domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("osc source %s already started", s.name)
	}

	conn, err := net.ListenPacket("udp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("osc listen %s: %w", s.cfg.Addr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	dispatcher := osc.NewStandardDispatcher()
	for addr := range s.fields {
		if err := dispatcher.AddMsgHandler(addr, func(msg *osc.Message) { s.emit(ctx, out, s.handleMessage(msg)) }); err != nil {
			cancel()
			_ = conn.Close()
			return fmt.Errorf("osc handler %s: %w", addr, err)
		}
	}
	for addr := range s.events {
		if err := dispatcher.AddMsgHandler(addr, func(msg *osc.Message) { s.emit(ctx, out, s.handleMessage(msg)) }); err != nil {
			cancel()
			_ = conn.Close()
			return fmt.Errorf("osc handler %s: %w", addr, err)
		}
	}
	server := &osc.Server{Addr: s.cfg.Addr, Dispatcher: dispatcher}

	s.conn = conn
	s.cancel = cancel
	s.started = true

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := server.Serve(conn); err != nil && ctx.Err() == nil {
			s.obs.LogError("osc_serve_failed", err, ports.Field{Key: "source", Value: s.name})
		}
	}()
	go s.tickLoop(ctx, out)

	s.obs.LogInfo("osc_listening", ports.Field{Key: "source", Value: s.name}, ports.Field{Key: "addr", Value: conn.LocalAddr().String()})
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel, conn := s.cancel, s.conn
	s.cancel, s.conn = nil, nil
	s.mu.Unlock()

	cancel()
	err := conn.Close()
	s.wg.Wait()
	return err
}

func (s *Source) emit(ctx context.Context, out chan<- domain.Signal, sig *domain.Signal) {
	if sig == nil {
		return
	}
	select {
	case <-ctx.Done():
	case out <- *sig:
	}
}

func (s *Source) tickLoop(ctx context.Context, out chan<- domain.Signal) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.emit(ctx, out, s.flush(now))
		}
	}
}

// flush returns the snapshot if any field changed since the last flush.
func (s *Source) flush(now time.Time) *domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	s.dirty = false
	sig := domain.TelemetrySignal(s.name, now, s.snapshot)
	return &sig
}

func argFloat(arg any) (float64, bool) {
	switch v := arg.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// handleMessage updates the snapshot for field addresses and returns an
// event signal on a rising edge of an event address.
func (s *Source) handleMessage(msg *osc.Message) *domain.Signal {
	if len(msg.Arguments) == 0 {
		s.obs.IncCounter("hapticflow_malformed_signals_total", 1)
		return nil
	}
	v, ok := argFloat(msg.Arguments[0])
	if !ok {
		s.obs.IncCounter("hapticflow_malformed_signals_total", 1)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.fields[msg.Address]; ok {
		_ = s.snapshot.SetField(f.Field, v*f.Scale)
		s.dirty = true
		return nil
	}
	e, ok := s.events[msg.Address]
	if !ok {
		return nil
	}
	prev := s.levels[msg.Address]
	s.levels[msg.Address] = v
	if prev > 0.5 || v <= 0.5 {
		return nil
	}
	sig := domain.EventSignal(s.name, time.Now(), domain.GameEvent{Name: e.Event, Hand: e.Hand})
	return &sig
}

var _ ports.Source = (*Source)(nil)
