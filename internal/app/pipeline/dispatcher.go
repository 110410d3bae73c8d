package pipeline

import (
	"sync"
	"time"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// DispatchPolicy bounds the outbound queue in front of the daemon.
type DispatchPolicy struct {
	QueueLen       int
	OnQueueFull    string // "drop" or "block"
	EnqueueTimeout time.Duration
}

// Dispatcher owns the single goroutine that writes to the daemon. Every
// integration enqueues here, so each source's messages reach the wire in
// the order they were generated.
type Dispatcher struct {
	sender ports.CommandSender
	pol    DispatchPolicy
	obs    ports.Observability

	mu      sync.RWMutex
	out     chan domain.Message
	started bool
	closed  bool
	done    chan struct{}
}

func NewDispatcher(sender ports.CommandSender, pol DispatchPolicy, obs ports.Observability) *Dispatcher {
	if pol.QueueLen <= 0 {
		pol.QueueLen = 256
	}
	return &Dispatcher{
		sender: sender,
		pol:    pol,
		obs:    obs,
		out:    make(chan domain.Message, pol.QueueLen),
		done:   make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.run()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.out {
		d.sender.Send(msg)
		d.obs.SetGauge("hapticflow_dispatch_queue_length", float64(len(d.out)))
	}
}

// Enqueue hands msg to the sender goroutine. It returns false when the
// message was dropped.
func (d *Dispatcher) Enqueue(msg domain.Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.out <- msg:
		d.obs.SetGauge("hapticflow_dispatch_queue_length", float64(len(d.out)))
		return true
	default:
	}

	if d.pol.OnQueueFull == "block" && d.pol.EnqueueTimeout > 0 {
		timer := time.NewTimer(d.pol.EnqueueTimeout)
		defer timer.Stop()
		select {
		case d.out <- msg:
			return true
		case <-timer.C:
		}
	}
	d.obs.IncCounter("hapticflow_commands_dropped_total", 1)
	return false
}

func (d *Dispatcher) Len() int { return len(d.out) }

// StopAll drains the queue, then optionally tells the daemon to stop every
// cell.
func (d *Dispatcher) StopAll(sendStop bool) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.out)
	started := d.started
	d.mu.Unlock()

	if started {
		<-d.done
	}
	if sendStop {
		d.sender.Send(domain.Stop())
	}
}
