// Package logtail follows a game's console log and turns matching lines into
// events.
package logtail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ghalamif/HapticFlow/internal/adapters/lineparse"
	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

type Config struct {
	Path         string        `yaml:"path"`
	Format       string        `yaml:"format"` // tactsuit | jsonl
	PollInterval time.Duration `yaml:"poll_interval"`
	FromStart    bool          `yaml:"from_start"`
}

func (c *Config) ApplyDefaults() {
	if c.Format == "" {
		c.Format = lineparse.FormatTactsuit
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
}

func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path is required")
	}
	if _, err := lineparse.ParserFor(c.Format); err != nil {
		return err
	}
	return nil
}

// Tailer polls one file. fsnotify write events shorten the wait between
// polls when the platform delivers them.
type Tailer struct {
	name  string
	cfg   Config
	obs   ports.Observability
	parse lineparse.EventParser
	now   func() time.Time

	offset  int64
	partial []byte

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func New(name string, cfg Config, obs ports.Observability) (*Tailer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	parse, _ := lineparse.ParserFor(cfg.Format)
	return &Tailer{name: name, cfg: cfg, obs: obs, parse: parse, now: time.Now}, nil
}

func (t *Tailer) Start(out chan<- domain.Signal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return fmt.Errorf("log tail %s already started", t.name)
	}
	t.offset = 0
	t.partial = nil
	if !t.cfg.FromStart {
		if fi, err := os.Stat(t.cfg.Path); err == nil {
			t.offset = fi.Size()
		}
	}

	var wake <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if werr := watcher.Add(filepath.Dir(t.cfg.Path)); werr != nil {
			t.obs.LogError("logtail_watch_unavailable", werr, ports.Field{Key: "source", Value: t.name})
			_ = watcher.Close()
			watcher = nil
		} else {
			wake = watcher.Events
		}
	} else {
		watcher = nil
	}

	t.stop = make(chan struct{})
	t.started = true
	t.wg.Add(1)
	go t.loop(out, watcher, wake)

	t.obs.LogInfo("logtail_started",
		ports.Field{Key: "source", Value: t.name},
		ports.Field{Key: "path", Value: t.cfg.Path},
		ports.Field{Key: "offset", Value: t.offset})
	return nil
}

func (t *Tailer) Stop() error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = false
	close(t.stop)
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}

func (t *Tailer) loop(out chan<- domain.Signal, watcher *fsnotify.Watcher, wake <-chan fsnotify.Event) {
	defer t.wg.Done()
	if watcher != nil {
		defer watcher.Close()
	}
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	target := filepath.Clean(t.cfg.Path)
	for {
		select {
		case <-t.stop:
			return
		case ev, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
		case <-ticker.C:
		}
		for _, sig := range t.poll() {
			select {
			case out <- sig:
			case <-t.stop:
				return
			}
		}
	}
}

// poll reads everything appended since the last call. A missing or shrunken
// file restarts reading from offset 0.
func (t *Tailer) poll() []domain.Signal {
	f, err := os.Open(t.cfg.Path)
	if err != nil {
		t.offset = 0
		t.partial = nil
		return nil
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil
	}
	if fi.Size() < t.offset {
		t.obs.LogInfo("logtail_truncated", ports.Field{Key: "source", Value: t.name})
		t.offset = 0
		t.partial = nil
	}
	if fi.Size() == t.offset {
		return nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		t.obs.LogError("logtail_seek_failed", err, ports.Field{Key: "source", Value: t.name})
		return nil
	}
	chunk, err := io.ReadAll(f)
	if err != nil {
		t.obs.LogError("logtail_read_failed", err, ports.Field{Key: "source", Value: t.name})
		return nil
	}
	t.offset += int64(len(chunk))
	return t.consume(chunk)
}

// consume splits a chunk into lines, keeping an unterminated tail for the
// next chunk.
func (t *Tailer) consume(chunk []byte) []domain.Signal {
	data := append(t.partial, chunk...)
	t.partial = nil

	var sigs []domain.Signal
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(data[:i], "\r"))
		data = data[i+1:]
		if sig, ok := t.parseLine(line); ok {
			sigs = append(sigs, sig)
		}
	}
	if len(data) > 0 {
		t.partial = append([]byte(nil), data...)
	}
	return sigs
}

func (t *Tailer) parseLine(line string) (domain.Signal, bool) {
	ev, ok, err := t.parse(line)
	if err != nil {
		t.obs.IncCounter("hapticflow_malformed_signals_total", 1)
		return domain.Signal{}, false
	}
	if !ok {
		return domain.Signal{}, false
	}
	return domain.EventSignal(t.name, t.now(), *ev), true
}

var _ ports.Source = (*Tailer)(nil)
