package observability

import (
	"fmt"
	"log"
	"strings"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
)

type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

var counterHelp = map[string]string{
	"hapticflow_commands_sent_total":      "Wire messages written to the vest daemon.",
	"hapticflow_commands_throttled_total": "Pulses suppressed by the per-key cooldown.",
	"hapticflow_commands_dropped_total":   "Messages dropped by a full dispatch queue or a down daemon.",
	"hapticflow_send_failures_total":      "Daemon writes that failed with an I/O error.",
	"hapticflow_reconnect_attempts_total": "Dials made towards the vest daemon.",
	"hapticflow_malformed_signals_total":  "Source lines, packets or events that could not be mapped.",
	"hapticflow_capture_errors_total":     "Screen frames that could not be captured.",
	"hapticflow_history_ingested_total":   "Event records written to the history sink.",
	"hapticflow_history_dlq_total":        "Event records the history sink rejected.",
	"hapticflow_history_dropped_total":    "Event records lost to journal or queue backpressure.",
}

var gaugeHelp = map[string]string{
	"hapticflow_daemon_connected":       "1 while the daemon socket is open.",
	"hapticflow_dispatch_queue_length":  "Messages waiting for the sender goroutine.",
	"hapticflow_history_wal_size_bytes": "Size of the event history journal on disk.",
	"hapticflow_history_queue_length":   "Event records buffered ahead of the history sink.",
	"hapticflow_throttle_keys":          "Live keys across all integration throttles.",
}

var histoHelp = map[string]string{
	"hapticflow_map_latency_seconds":          "Time from signal receipt to enqueued pulses.",
	"hapticflow_history_sink_latency_seconds": "Time to write one history batch to the sink.",
}

func NewPromObs() *PromObs {
	p := &PromObs{
		counters: make(map[string]prometheus.Counter, len(counterHelp)),
		gauges:   make(map[string]prometheus.Gauge, len(gaugeHelp)),
		histos:   make(map[string]prometheus.Observer, len(histoHelp)),
	}
	var collectors []prometheus.Collector
	for name, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		p.counters[name] = c
		collectors = append(collectors, c)
	}
	for name, help := range gaugeHelp {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		p.gauges[name] = g
		collectors = append(collectors, g)
	}
	for name, help := range histoHelp {
		h := prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		})
		p.histos[name] = h
		collectors = append(collectors, h)
	}

	prometheus.MustRegister(collectors...)
	return p
}

func formatFields(fields []ports.Field) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	log.Printf("INFO: %s%s", msg, formatFields(fields))
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("ERROR: %s: %v%s", msg, err, formatFields(fields))
	}
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("CRITICAL: %s: %v%s", msg, err, formatFields(fields))
	}
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.WALEntryID, r *domain.EventRecord, err error) {
	p.IncCounter("hapticflow_history_dlq_total", 1)
	if err != nil && r != nil {
		log.Printf("DLQ record id=%d event=%s source=%s err=%v", id, r.ID, r.Source, err)
	}
}

var _ ports.Observability = (*PromObs)(nil)
