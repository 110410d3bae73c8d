// Package serial reads telemetry and events from a microcontroller or mod
// bridge over a serial port.
package serial

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	goserial "go.bug.st/serial"

	"github.com/ghalamif/HapticFlow/internal/adapters/lineparse"
	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

type Config struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReopenDelay time.Duration `yaml:"reopen_delay"`
}

func (c *Config) ApplyDefaults() {
	if c.Baud <= 0 {
		c.Baud = 115200
	}
	if c.ReopenDelay <= 0 {
		c.ReopenDelay = 2 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("device is required")
	}
	return nil
}

// Opener opens the port. Tests swap it for an in-memory pipe.
type Opener func(device string, baud int) (io.ReadCloser, error)

func openPort(device string, baud int) (io.ReadCloser, error) {
	p, err := goserial.Open(device, &goserial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return p, nil
}

type Option func(*Source)

func WithOpener(o Opener) Option { return func(s *Source) { s.open = o } }

// Source accepts three line shapes: key=value telemetry, JSON events and
// tactsuit console lines.
type Source struct {
	name string
	cfg  Config
	obs  ports.Observability
	open Opener
	now  func() time.Time

	sample domain.TelemetrySample

	mu      sync.Mutex
	started bool
	port    io.ReadCloser
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewSource(name string, cfg Config, obs ports.Observability, opts ...Option) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Source{name: name, cfg: cfg, obs: obs, open: openPort, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Source) Start(out chan<- domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("serial source %s already started", s.name)
	}
	s.stop = make(chan struct{})
	s.started = true
	s.wg.Add(1)
	go s.run(out)
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stop)
	var err error
	if s.port != nil {
		err = s.port.Close()
		s.port = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Source) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Source) run(out chan<- domain.Signal) {
	defer s.wg.Done()
	for !s.stopped() {
		port, err := s.open(s.cfg.Device, s.cfg.Baud)
		if err != nil {
			s.obs.LogError("serial_open_failed", err, ports.Field{Key: "source", Value: s.name})
			select {
			case <-s.stop:
				return
			case <-time.After(s.cfg.ReopenDelay):
			}
			continue
		}

		s.mu.Lock()
		if s.stopped() {
			s.mu.Unlock()
			_ = port.Close()
			return
		}
		s.port = port
		s.mu.Unlock()
		s.obs.LogInfo("serial_opened", ports.Field{Key: "source", Value: s.name}, ports.Field{Key: "device", Value: s.cfg.Device})

		err = s.readLines(port, out)

		s.mu.Lock()
		if s.port == port {
			_ = port.Close()
			s.port = nil
		}
		s.mu.Unlock()
		if s.stopped() {
			return
		}
		if err != nil {
			s.obs.LogError("serial_read_failed", err, ports.Field{Key: "source", Value: s.name})
		}
		select {
		case <-s.stop:
			return
		case <-time.After(s.cfg.ReopenDelay):
		}
	}
}

func (s *Source) readLines(r io.Reader, out chan<- domain.Signal) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if sig, ok := s.parseLine(line); ok {
				select {
				case out <- sig:
				case <-s.stop:
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (s *Source) parseLine(line string) (domain.Signal, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.Signal{}, false
	}

	var parse lineparse.EventParser
	switch {
	case strings.HasPrefix(line, "{"):
		parse = lineparse.ParseJSONEvent
	case strings.Contains(line, "[Tactsuit]"):
		parse = lineparse.ParseTactsuit
	}
	if parse != nil {
		ev, ok, err := parse(line)
		if err != nil {
			s.obs.IncCounter("hapticflow_malformed_signals_total", 1)
			return domain.Signal{}, false
		}
		if !ok {
			return domain.Signal{}, false
		}
		return domain.EventSignal(s.name, s.now(), *ev), true
	}

	if _, err := lineparse.ApplyKV(&s.sample, line); err != nil {
		s.obs.IncCounter("hapticflow_malformed_signals_total", 1)
		return domain.Signal{}, false
	}
	return domain.TelemetrySignal(s.name, s.now(), s.sample), true
}

var _ ports.Source = (*Source)(nil)
