package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ghalamif/HapticFlow"
	"github.com/ghalamif/HapticFlow/internal/adapters/capture"
	"github.com/ghalamif/HapticFlow/internal/adapters/daemon"
	"github.com/ghalamif/HapticFlow/internal/adapters/observability"
	"github.com/ghalamif/HapticFlow/internal/app/config"
	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/haptics"
	"github.com/ghalamif/HapticFlow/internal/screen"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "send":
		err = sendCommand(os.Args[2:])
	case "calibrate":
		err = calibrateCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("hapticflow %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to bridge configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := hapticflow.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := hapticflow.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good: daemon %s, %d source(s)\n", *cfgPath, cfg.Daemon.Addr(), len(cfg.Enabled()))
	for _, s := range cfg.Enabled() {
		fmt.Printf("  %-16s %-8s mapper=%s\n", s.Name, s.Transport, s.Mapper.Kind)
	}
	return nil
}

var statsKeys = []string{
	"hapticflow_daemon_connected",
	"hapticflow_commands_sent_total",
	"hapticflow_commands_throttled_total",
	"hapticflow_commands_dropped_total",
	"hapticflow_dispatch_queue_length",
	"hapticflow_malformed_signals_total",
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9110/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scanMetrics(resp.Body, statsKeys)
	if err != nil {
		return err
	}
	fmt.Printf("[%s] connected=%.0f sent=%.0f throttled=%.0f dropped=%.0f queue=%.0f malformed=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["hapticflow_daemon_connected"],
		values["hapticflow_commands_sent_total"],
		values["hapticflow_commands_throttled_total"],
		values["hapticflow_commands_dropped_total"],
		values["hapticflow_dispatch_queue_length"],
		values["hapticflow_malformed_signals_total"],
	)
	return nil
}

// scanMetrics reads unlabelled samples for keys from Prometheus text format.
func scanMetrics(r io.Reader, keys []string) (map[string]float64, error) {
	targets := make(map[string]float64, len(keys))
	for _, k := range keys {
		targets[k] = 0
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	return targets, scanner.Err()
}

func sendCommand(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	host := fs.String("host", "127.0.0.1", "Daemon host")
	port := fs.Int("port", 5050, "Daemon port")
	kind := fs.String("cmd", "trigger", "trigger, stop or ping")
	cell := fs.Int("cell", 0, "Cell index 0..7 for trigger")
	speed := fs.Int("speed", 5, "Speed 1..10 for trigger")
	if err := fs.Parse(args); err != nil {
		return err
	}

	msg, err := oneShotMessage(*kind, *cell, *speed)
	if err != nil {
		return err
	}

	conn, err := daemon.New(daemon.Config{Host: *host, Port: *port}, observability.NewPromObs())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer conn.Disconnect()

	conn.Send(msg)
	if conn.State() != domain.Connected {
		return fmt.Errorf("send %s: %v", msg, conn.LastError())
	}
	fmt.Printf("sent %s to %s\n", msg, conn.Addr())
	return nil
}

func oneShotMessage(kind string, cell, speed int) (domain.Message, error) {
	var msg domain.Message
	switch kind {
	case "trigger":
		msg = domain.Trigger(cell, speed)
	case "stop":
		msg = domain.Stop()
	case "ping":
		msg = domain.Ping()
	default:
		return msg, fmt.Errorf("unknown cmd %q", kind)
	}
	if !msg.Valid() {
		return msg, fmt.Errorf("invalid %s: cell must be in 0..%d and speed in 1..%d", kind, domain.CellCount-1, domain.MaxSpeed)
	}
	return msg, nil
}

func calibrateCommand(args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	source := fs.String("source", "", "Screen source to calibrate (default: first screen source)")
	image := fs.String("image", "", "PNG or BMP frame to evaluate")
	outDir := fs.String("out", "./debug_roi", "Directory for ROI crops")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *image == "" {
		return errors.New("-image is required")
	}

	cfg, err := hapticflow.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	sc, err := screenSource(cfg, *source)
	if err != nil {
		return err
	}

	frame, err := capture.NewFile(*image).Capture(context.Background())
	if err != nil {
		return err
	}
	b := frame.Bounds()
	now := time.Now()
	fmt.Printf("frame %s %dx%d, source %s\n", *image, b.Dx(), b.Dy(), sc.Name)
	for _, d := range sc.Screen.Detectors(haptics.NewThrottle()) {
		px, err := d.Rect().ToPixels(b.Dx(), b.Dy())
		if err != nil {
			fmt.Printf("  %-12s %-20s %v\n", d.Kind(), d.Name(), err)
			continue
		}
		res := d.Evaluate(frame, px, now)
		path, err := screen.SaveCrop(*outDir, d.Kind()+"_"+d.Name()+".bmp", frame, px)
		if err != nil {
			return err
		}
		fmt.Printf("  %-12s %-20s score=%.3f roi=%v crop=%s\n", d.Kind(), d.Name(), res.Score, px, path)
	}
	return nil
}

func screenSource(cfg *config.Config, name string) (config.SourceConfig, error) {
	for _, s := range cfg.Sources {
		if s.Transport != config.TransportScreen {
			continue
		}
		if name == "" || s.Name == name {
			return s, nil
		}
	}
	if name == "" {
		return config.SourceConfig{}, errors.New("no screen source configured")
	}
	return config.SourceConfig{}, fmt.Errorf("no screen source named %q", name)
}

func printUsage() {
	fmt.Printf(`HapticFlow CLI

Usage:
  hapticflow <command> [flags]

Commands:
  run        Start every configured integration and bridge it to the vest daemon
  validate   Load and validate a config file without starting anything
  stats      Poll the Prometheus metrics endpoint and print live counters
  send       Send one trigger, stop or ping to the daemon
  calibrate  Run the screen detectors once against a saved frame and dump ROI crops

Examples:
  hapticflow run -config ./data/config.yaml
  hapticflow validate -config ./data/config.yaml
  hapticflow stats -url http://localhost:9110/metrics -interval 1s
  hapticflow send -cmd trigger -cell 3 -speed 7
  hapticflow calibrate -config ./data/config.yaml -image frame.png -out ./debug_roi
`)
}
