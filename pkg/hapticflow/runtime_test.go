package hapticflow

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/HapticFlow/internal/domain"
)

func externalConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Metrics: MetricsConfig{Disabled: true},
		History: HistoryConfig{
			Policy: Policy{IdleSleep: time.Millisecond, MaxBatchSize: 16},
			WAL:    WALConfig{Dir: t.TempDir()},
		},
		Sources: []SourceConfig{{
			Name:      "sdk",
			Transport: TransportExternal,
			Mapper:    MapperConfig{Kind: "events", Events: EventsConfig{Profile: "pistolwhip"}},
		}},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRuntimeWithCustomAdapters(t *testing.T) {
	cfg := externalConfig(t)

	src := NewExternalSource("sdk")
	sinkStub := &stubSink{}
	obsStub := &stubObservability{}
	sender := &leasedSender{}

	rt, err := NewRuntime(cfg,
		WithSource("sdk", src),
		WithSink(sinkStub),
		WithWAL(&stubWAL{}),
		WithRecordQueue(&stubQueue{}),
		WithObservability(obsStub),
		WithSender(sender),
	)
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	if rt.sink != sinkStub {
		t.Fatalf("expected custom sink to be used")
	}
	if rt.obs != obsStub {
		t.Fatalf("expected custom observability to be used")
	}
	if rt.sender != sender || rt.conn != nil {
		t.Fatalf("expected custom sender to replace the daemon connection")
	}
	if rt.db != nil || rt.bolt != nil {
		t.Fatalf("expected no backend to be opened when a custom sink is provided")
	}
	if rt.history == nil {
		t.Fatalf("expected history to run for a custom sink")
	}
	if names := rt.Integrations(); len(names) != 1 || names[0] != "sdk" {
		t.Fatalf("unexpected integrations: %v", names)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown of an unstarted runtime: %v", err)
	}
}

func TestNewRuntimeRequiresExternalSource(t *testing.T) {
	_, err := NewRuntime(externalConfig(t), WithObservability(&stubObservability{}), WithSender(&leasedSender{}))
	if err == nil || !strings.Contains(err.Error(), "WithSource") {
		t.Fatalf("expected missing external source error, got %v", err)
	}
}

func TestNewRuntimeRejectsInvalidConfig(t *testing.T) {
	cfg := externalConfig(t)
	cfg.Dispatch.OnQueueFull = "spill"
	if _, err := NewRuntime(cfg, WithObservability(&stubObservability{})); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := NewRuntime(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestRuntimeLeasesSenderAndStopsCells(t *testing.T) {
	cfg := externalConfig(t)
	src := NewExternalSource("sdk")
	sender := &leasedSender{}

	rt, err := NewRuntime(cfg,
		WithSource("sdk", src),
		WithSender(sender),
		WithObservability(&stubObservability{}),
	)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rt.Start(); err == nil {
		t.Fatalf("second start must fail")
	}

	if err := src.PublishEvent(GameEvent{Name: "death"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, "death triggers", func() bool {
		msgs, _ := sender.snapshot()
		return len(msgs) == domain.CellCount
	})
	if got := len(rt.Recent()); got != domain.CellCount {
		t.Fatalf("expected %d recent records, got %d", domain.CellCount, got)
	}

	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	msgs, refs := sender.snapshot()
	if refs != 0 {
		t.Fatalf("expected every lease released, %d left", refs)
	}
	if sender.peak != 2 {
		t.Fatalf("expected runtime and integration leases, peak=%d", sender.peak)
	}
	if last := msgs[len(msgs)-1]; last.Kind != domain.KindStop {
		t.Fatalf("expected stop last, got %s", last)
	}
	if err := src.PublishEvent(GameEvent{Name: "death"}); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("expected ErrSourceClosed after shutdown, got %v", err)
	}
}

// fakeDaemon accepts connections and collects every line written.
type fakeDaemon struct {
	ln    net.Listener
	mu    sync.Mutex
	lines []string
	wg    sync.WaitGroup
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDaemon{ln: ln}
	d.wg.Add(1)
	go d.accept()
	t.Cleanup(func() {
		_ = ln.Close()
		d.wg.Wait()
	})
	return d
}

func (d *fakeDaemon) accept() {
	defer d.wg.Done()
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer conn.Close()
			sc := bufio.NewScanner(conn)
			for sc.Scan() {
				d.mu.Lock()
				d.lines = append(d.lines, sc.Text())
				d.mu.Unlock()
			}
		}()
	}
}

func (d *fakeDaemon) port() int { return d.ln.Addr().(*net.TCPAddr).Port }

func (d *fakeDaemon) received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

func TestRuntimeEndToEndOverTCP(t *testing.T) {
	daemon := newFakeDaemon(t)

	cfg := externalConfig(t)
	cfg.Daemon = DaemonConfig{Host: "127.0.0.1", Port: daemon.port()}
	cfg.Metrics = MetricsConfig{Addr: "127.0.0.1:0"}

	var ext *ExternalSource
	out, batches, closeSink := NewChannelSink("records", 16)
	defer closeSink()

	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig: %v", err)
	}
	rt, err := flow.
		StreamIN(
			StreamInExternal("sdk", &ext),
			StreamInObservability(&stubObservability{}),
		).
		StreamOUT(StreamOutSink(out))
	if err != nil {
		t.Fatalf("StreamOUT: %v", err)
	}
	if ext == nil {
		t.Fatalf("expected the external source to be handed back")
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if rt.StatusAddr() == "" {
		t.Fatalf("expected the status hub to be listening")
	}
	waitFor(t, "daemon connection", func() bool { return rt.Connection() == domain.Connected })

	if err := ext.PublishEvent(GameEvent{Name: "death"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, "trigger lines", func() bool { return len(daemon.received()) >= domain.CellCount })

	var stored int
	deadline := time.After(2 * time.Second)
	for stored < domain.CellCount {
		select {
		case batch := <-batches:
			for _, rec := range batch {
				if rec.Command != string(domain.KindTrigger) || rec.Speed != domain.MaxSpeed {
					t.Fatalf("unexpected history record: %+v", rec)
				}
				if rec.Session != rt.Session() {
					t.Fatalf("record carries the wrong session")
				}
			}
			stored += len(batch)
		case <-deadline:
			t.Fatalf("history stored %d of %d records", stored, domain.CellCount)
		}
	}

	status := rt.Status()
	if status.Connection != domain.Connected.String() || len(status.Sources) != 1 || !status.Sources[0].Running {
		t.Fatalf("unexpected status: %+v", status)
	}

	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	waitFor(t, "stop line", func() bool {
		lines := daemon.received()
		return len(lines) > 0 && lines[len(lines)-1] == `{"cmd":"stop"}`
	})
	for _, line := range daemon.received()[:domain.CellCount] {
		if !strings.HasPrefix(line, `{"cmd":"trigger","cell":`) || !strings.HasSuffix(line, `"speed":10}`) {
			t.Fatalf("unexpected trigger line %q", line)
		}
	}
	if rt.Connection() != domain.Disconnected {
		t.Fatalf("expected the last release to close the socket")
	}
}
