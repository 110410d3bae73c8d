package opcua

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// Config opens an OPC UA session against a simulator or rig controller that
// publishes driving telemetry as variables.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Nodes            []NodeConfig  `yaml:"nodes"`
}

// NodeConfig binds one monitored variable to a telemetry field
// (see domain.TelemetrySample.SetField).
type NodeConfig struct {
	NodeID string  `yaml:"node_id"`
	Field  string  `yaml:"field"`
	Scale  float64 `yaml:"scale"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "HapticFlow"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 50 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
	for i := range c.Nodes {
		if c.Nodes[i].Scale == 0 {
			c.Nodes[i].Scale = 1
		}
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	if _, ok := securityModes[strings.ToLower(c.SecurityMode)]; !ok && c.SecurityMode != "" {
		return fmt.Errorf("unknown security_mode %q", c.SecurityMode)
	}
	for _, n := range c.Nodes {
		if _, err := ua.ParseNodeID(n.NodeID); err != nil {
			return fmt.Errorf("node %q: %w", n.NodeID, err)
		}
		if !domain.ValidField(n.Field) {
			return fmt.Errorf("node %q: unknown telemetry field %q", n.NodeID, n.Field)
		}
	}
	return nil
}

var securityModes = map[string]string{
	"none":             "None",
	"sign":             "Sign",
	"signandencrypt":   "SignAndEncrypt",
	"sign_and_encrypt": "SignAndEncrypt",
}

// session is one live client plus its subscription.
type session struct {
	client *opcua.Client
	sub    *opcua.Subscription
}

func (s *session) close(ctx context.Context) error {
	var err error
	if s.sub != nil {
		if e := s.sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if e := s.client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
		err = errors.Join(err, e)
	}
	return err
}

// Source subscribes to the configured variables, keeps a running telemetry
// snapshot and emits it after every data-change notification.
type Source struct {
	name string
	cfg  Config
	obs  ports.Observability

	mu       sync.Mutex
	sess     *session
	cancel   context.CancelFunc
	handles  map[uint32]NodeConfig
	snapshot domain.TelemetrySample
	wg       sync.WaitGroup
}

func NewSource(name string, cfg Config, obs ports.Observability) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	handles := make(map[uint32]NodeConfig, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		handles[uint32(i+1)] = n
	}
	return &Source{name: name, cfg: cfg, obs: obs, handles: handles}, nil
}

func (s *Source) Start(out chan<- domain.Signal) error {
	s.mu.Lock()
	running := s.sess != nil
	s.mu.Unlock()
	if running {
		return fmt.Errorf("opcua source %s already started", s.name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	notify := make(chan *opcua.PublishNotificationData, len(s.cfg.Nodes)*4)
	sess, err := s.open(ctx, notify)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.sess = sess
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consume(ctx, notify, out)
	s.obs.LogInfo("opcua_subscribed",
		ports.Field{Key: "source", Value: s.name},
		ports.Field{Key: "endpoint", Value: s.cfg.Endpoint},
		ports.Field{Key: "nodes", Value: len(s.cfg.Nodes)})
	return nil
}

// open connects, subscribes and monitors every node; on failure everything
// already opened is closed again.
func (s *Source) open(ctx context.Context, notify chan<- *opcua.PublishNotificationData) (sess *session, err error) {
	client, err := opcua.NewClient(s.cfg.Endpoint, clientOptions(s.cfg)...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect %s: %w", s.cfg.Endpoint, err)
	}
	sess = &session{client: client}
	defer func() {
		if err != nil {
			_ = sess.close(ctx)
		}
	}()

	sess.sub, err = client.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: s.cfg.PublishInterval}, notify)
	if err != nil {
		return nil, fmt.Errorf("opcua subscribe: %w", err)
	}
	for handle, node := range s.handles {
		if err := s.monitor(ctx, sess.sub, handle, node); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func (s *Source) monitor(ctx context.Context, sub *opcua.Subscription, handle uint32, node NodeConfig) error {
	id, err := ua.ParseNodeID(node.NodeID)
	if err != nil {
		return fmt.Errorf("node %q: %w", node.NodeID, err)
	}
	req := opcua.NewMonitoredItemCreateRequestWithDefaults(id, ua.AttributeIDValue, handle)
	if s.cfg.SamplingInterval > 0 {
		req.RequestedParameters.SamplingInterval = float64(s.cfg.SamplingInterval / time.Millisecond)
	}
	res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	switch {
	case err != nil:
		return fmt.Errorf("monitor node %q: %w", node.NodeID, err)
	case len(res.Results) == 0:
		return fmt.Errorf("monitor node %q: empty result", node.NodeID)
	case res.Results[0].StatusCode != ua.StatusOK:
		return fmt.Errorf("monitor node %q: %s", node.NodeID, res.Results[0].StatusCode)
	}
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	sess, cancel := s.sess, s.cancel
	s.sess, s.cancel = nil, nil
	s.mu.Unlock()
	if sess == nil {
		return nil
	}

	cancel()
	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	err := sess.close(ctx)
	s.wg.Wait()
	return err
}

func (s *Source) consume(ctx context.Context, notify <-chan *opcua.PublishNotificationData, out chan<- domain.Signal) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notify:
			if n == nil {
				continue
			}
			if n.Error != nil {
				s.obs.LogError("opcua_notification_failed", n.Error, ports.Field{Key: "source", Value: s.name})
				continue
			}
			data, ok := n.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			if sig, ok := s.apply(data); ok {
				select {
				case <-ctx.Done():
					return
				case out <- sig:
				}
			}
		}
	}
}

// apply folds one notification batch into the snapshot.
func (s *Source) apply(data *ua.DataChangeNotification) (domain.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		changed bool
		at      time.Time
	)
	for _, item := range data.MonitoredItems {
		node, ok := s.handles[item.ClientHandle]
		if !ok || item.Value == nil {
			continue
		}
		v, ok := numeric(item.Value.Value)
		if !ok {
			kind := "nil"
			if raw := item.Value.Value; raw != nil {
				kind = fmt.Sprintf("%T", raw.Value())
			}
			s.obs.IncCounter("hapticflow_malformed_signals_total", 1)
			s.obs.LogInfo("opcua_unsupported_value",
				ports.Field{Key: "node", Value: node.NodeID},
				ports.Field{Key: "type", Value: kind})
			continue
		}
		if err := s.snapshot.SetField(node.Field, v*node.Scale); err != nil {
			continue
		}
		changed = true
		at = latest(at, item.Value.ServerTimestamp, item.Value.SourceTimestamp)
	}
	if !changed {
		return domain.Signal{}, false
	}
	if at.IsZero() {
		at = time.Now()
	}
	return domain.TelemetrySignal(s.name, at, s.snapshot), true
}

func latest(ts ...time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t.After(out) {
			out = t
		}
	}
	return out
}

func clientOptions(cfg Config) []opcua.Option {
	mode, ok := securityModes[strings.ToLower(cfg.SecurityMode)]
	if !ok {
		mode = "None"
	}
	opts := []opcua.Option{
		opcua.SecurityModeString(mode),
		opcua.SecurityPolicy(cfg.SecurityPolicy),
		opcua.ApplicationName(cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if cfg.Username != "" {
		return append(opts, opcua.AuthUsername(cfg.Username, cfg.Password))
	}
	return append(opts, opcua.AuthAnonymous())
}

// numeric widens any boolean or numeric variant to float64.
func numeric(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v.Value())
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

var _ ports.Source = (*Source)(nil)
