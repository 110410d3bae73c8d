package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ghalamif/HapticFlow/internal/mapper"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
daemon:
  reconnect_cooldown: 4s
history:
  backend: bolt
sources:
  - name: ac
    transport: osc
    osc:
      fields:
        - address: /car/speed
          field: speed
  - name: pistolwhip
    transport: logtail
    logtail:
      path: ./pw.log
      format: jsonl
  - name: hud
    transport: screen
    screen:
      image: ./frame.png
      redness:
        - name: vignette
          rect: {x: 0, y: 0, w: 1, h: 1}
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Daemon.Addr() != "127.0.0.1:5050" || cfg.Daemon.ReconnectCooldown != 4*time.Second {
		t.Fatalf("unexpected daemon config %+v", cfg.Daemon)
	}
	if cfg.Dispatch.QueueLen != 256 || cfg.Dispatch.OnQueueFull != "drop" || cfg.Dispatch.Layout != "hardware" {
		t.Fatalf("unexpected dispatch defaults %+v", cfg.Dispatch)
	}
	if !cfg.Dispatch.SendStop() {
		t.Fatalf("stop on shutdown defaults to true")
	}
	if cfg.Metrics.Addr != ":9110" {
		t.Fatalf("expected default metrics addr :9110, got %s", cfg.Metrics.Addr)
	}
	if cfg.History.Recent != 50 || cfg.History.Bolt.Bucket != "events" || cfg.History.Policy.MaxBatchSize != 500 {
		t.Fatalf("unexpected history defaults %+v", cfg.History)
	}

	if got := cfg.Sources[0].Mapper.Kind; got != mapper.KindDriving {
		t.Fatalf("osc sources default to the driving mapper, got %s", got)
	}
	if got := cfg.Sources[0].OSC.Tick; got != 50*time.Millisecond {
		t.Fatalf("expected osc tick 50ms, got %s", got)
	}
	if got := cfg.Sources[1].Mapper.Events.Profile; got != mapper.ProfilePistolWhip {
		t.Fatalf("expected pistolwhip profile, got %s", got)
	}
	if got := cfg.Sources[2].Mapper.Events.Profile; got != mapper.ProfileScreen {
		t.Fatalf("screen sources default to the screen profile, got %s", got)
	}
	if len(cfg.Enabled()) != 3 {
		t.Fatalf("expected all sources enabled")
	}
}

func TestValidateNamesOffendingKey(t *testing.T) {
	cases := map[string]string{
		"daemon:\n  port: 70000\n":                          "daemon.port must be in 1..65535",
		"dispatch:\n  on_queue_full: spin\n":                "dispatch.on_queue_full",
		"dispatch:\n  layout: diagonal\n":                   "dispatch.layout",
		"history:\n  backend: postgres\n":                   "history.postgres.conn_string is required",
		"history:\n  backend: redis\n":                      "history.backend",
		"sources:\n  - name: a\n    transport: carrier\n":  "sources.a.transport",
		"sources:\n  - name: a\n    transport: serial\n":   "sources.a.serial: device is required",
		"sources:\n  - name: a\n    transport: external\n  - name: a\n    transport: external\n": "sources.a: duplicate name",
		"sources:\n  - transport: external\n":               "sources[0].name is required",
		"sources:\n  - name: a\n    transport: external\n    mapper:\n      kind: events\n      events:\n        profile: doom\n": "sources.a.mapper: unknown event profile",
	}
	for doc, want := range cases {
		_, err := Parse([]byte(doc))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("config %q: expected error containing %q, got %v", doc, want, err)
		}
	}
}
