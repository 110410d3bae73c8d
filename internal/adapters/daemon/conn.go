// Package daemon owns the TCP connection to the vest daemon. Sends are best
// effort: failures are logged and counted, never returned.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// Config describes where the daemon listens and how to talk to it.
type Config struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReconnectCooldown time.Duration `yaml:"reconnect_cooldown"`
	PingInterval      time.Duration `yaml:"ping_interval"`
}

func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 5050
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = time.Second
	}
	if c.ReconnectCooldown <= 0 {
		c.ReconnectCooldown = 3 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port must be in 1..65535")
	}
	if c.PingInterval < 0 {
		return errors.New("ping_interval must be >= 0")
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// StateFunc observes connection state changes.
type StateFunc func(state domain.ConnectionState, lastErr error)

type Option func(*Conn)

func WithDialer(d DialFunc) Option {
	return func(c *Conn) { c.dial = d }
}

// WithClock replaces the clock used for the reconnect cooldown.
func WithClock(now func() time.Time) Option {
	return func(c *Conn) { c.now = now }
}

func WithStateListener(fn StateFunc) Option {
	return func(c *Conn) { c.listeners = append(c.listeners, fn) }
}

// Conn is the single shared daemon connection. It is safe for concurrent use.
type Conn struct {
	cfg       Config
	obs       ports.Observability
	dial      DialFunc
	now       func() time.Time
	listeners []StateFunc

	dialMu sync.Mutex // serializes connect attempts
	sendMu sync.Mutex // one line on the wire at a time

	mu          sync.Mutex
	conn        net.Conn
	state       domain.ConnectionState
	lastErr     error
	lastAttempt time.Time
	attempted   bool
	refs        int
	pingCancel  context.CancelFunc
	pingWG      sync.WaitGroup
}

func New(cfg Config, obs ports.Observability, opts ...Option) (*Conn, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Conn{cfg: cfg, obs: obs, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		var d net.Dialer
		c.dial = d.DialContext
	}
	obs.SetGauge("hapticflow_daemon_connected", 0)
	return c, nil
}

func (c *Conn) Addr() string { return c.cfg.Addr() }

// OnStateChange registers fn for later state transitions.
func (c *Conn) OnStateChange(fn StateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Connect dials the daemon once. It never retries.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.lastAttempt = c.now()
	c.attempted = true
	c.mu.Unlock()
	return c.connect(ctx)
}

func (c *Conn) connect(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	if c.State() == domain.Connected {
		return nil
	}
	c.obs.IncCounter("hapticflow_reconnect_attempts_total", 1)

	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, err := c.dial(dctx, "tcp", c.cfg.Addr())
	if err != nil {
		err = fmt.Errorf("dial %s: %w", c.cfg.Addr(), err)
		c.setState(nil, domain.Disconnected, err)
		c.obs.LogError("daemon_connect_failed", err, ports.Field{Key: "addr", Value: c.cfg.Addr()})
		return err
	}
	c.setState(conn, domain.Connected, nil)
	c.obs.LogInfo("daemon_connected", ports.Field{Key: "addr", Value: c.cfg.Addr()})
	return nil
}

// TryReconnect reports whether the connection is usable, dialing at most
// once per reconnect cooldown.
func (c *Conn) TryReconnect(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == domain.Connected {
		c.mu.Unlock()
		return true
	}
	now := c.now()
	if c.attempted && now.Sub(c.lastAttempt) < c.cfg.ReconnectCooldown {
		c.mu.Unlock()
		return false
	}
	c.lastAttempt = now
	c.attempted = true
	c.mu.Unlock()

	return c.connect(ctx) == nil
}

// Send writes one JSON line. Failures mark the connection down.
func (c *Conn) Send(msg domain.Message) {
	if !c.TryReconnect(context.Background()) {
		c.obs.IncCounter("hapticflow_commands_dropped_total", 1)
		return
	}
	line, err := msg.Line()
	if err != nil {
		c.obs.IncCounter("hapticflow_send_failures_total", 1)
		c.obs.LogError("daemon_encode_failed", err, ports.Field{Key: "message", Value: msg.String()})
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.obs.IncCounter("hapticflow_commands_dropped_total", 1)
		return
	}

	if err := writeLine(conn, line, c.cfg.WriteTimeout); err != nil {
		c.dropConn(conn, err)
		c.obs.IncCounter("hapticflow_send_failures_total", 1)
		c.obs.LogError("daemon_send_failed", err, ports.Field{Key: "message", Value: msg.String()})
		return
	}
	c.obs.IncCounter("hapticflow_commands_sent_total", 1)
}

// writeLine refuses to write without a deadline so a hung daemon cannot
// stall the caller.
func writeLine(conn net.Conn, line []byte, timeout time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// dropConn closes conn if it is still the current one.
func (c *Conn) dropConn(conn net.Conn, cause error) {
	c.mu.Lock()
	current := c.conn == conn
	c.mu.Unlock()
	_ = conn.Close()
	if current {
		c.setState(nil, domain.Disconnected, cause)
	}
}

// Disconnect closes the socket. Calling it again is a no-op.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.Close()
	c.setState(nil, domain.Disconnected, nil)
	c.obs.LogInfo("daemon_disconnected", ports.Field{Key: "addr", Value: c.cfg.Addr()})
}

// Acquire registers one user of the connection and starts the heartbeat for
// the first one.
func (c *Conn) Acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
	if c.refs == 1 && c.cfg.PingInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.pingCancel = cancel
		c.pingWG.Add(1)
		go c.pingLoop(ctx)
	}
}

// Release drops one user; the last one closes the socket.
func (c *Conn) Release() {
	c.mu.Lock()
	if c.refs == 0 {
		c.mu.Unlock()
		return
	}
	c.refs--
	last := c.refs == 0
	cancel := c.pingCancel
	if last {
		c.pingCancel = nil
	}
	c.mu.Unlock()

	if !last {
		return
	}
	if cancel != nil {
		cancel()
		c.pingWG.Wait()
	}
	c.Disconnect()
}

func (c *Conn) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

func (c *Conn) pingLoop(ctx context.Context) {
	defer c.pingWG.Done()
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Send(domain.Ping())
		}
	}
}

func (c *Conn) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Conn) setState(conn net.Conn, state domain.ConnectionState, err error) {
	c.mu.Lock()
	changed := c.state != state
	c.conn = conn
	c.state = state
	if err != nil {
		c.lastErr = err
	}
	lastErr := c.lastErr
	listeners := c.listeners
	c.mu.Unlock()

	if state == domain.Connected {
		c.obs.SetGauge("hapticflow_daemon_connected", 1)
	} else {
		c.obs.SetGauge("hapticflow_daemon_connected", 0)
	}
	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(state, lastErr)
	}
}

var _ ports.CommandSender = (*Conn)(nil)
