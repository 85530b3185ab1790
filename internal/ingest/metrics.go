package ingest

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons used as the "reason" label.
const (
	dropParse  = "parse"
	dropDecode = "decode"
	dropPanic  = "panic"
)

// Metrics counts ingestion activity. Counters are always kept in memory for
// the status endpoint; Prometheus collectors are only created when a
// registerer is supplied.
type Metrics struct {
	received    atomic.Uint64
	decoded     atomic.Uint64
	dropped     atomic.Uint64
	connections atomic.Int64

	messagesReceived  prometheus.Counter
	samplesDecoded    prometheus.Counter
	messagesDropped   *prometheus.CounterVec
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	handleDuration    prometheus.Histogram
}

// MetricsSnapshot is a point-in-time copy of the in-memory counters.
type MetricsSnapshot struct {
	MessagesReceived  uint64 `json:"messages_received"`
	SamplesDecoded    uint64 `json:"samples_decoded"`
	MessagesDropped   uint64 `json:"messages_dropped"`
	ConnectionsActive int64  `json:"connections_active"`
}

// NewMetrics creates the ingest counters and registers them with reg when it
// is not nil. Collectors that are already registered are reused, so several
// servers can share one registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	if reg == nil {
		return m
	}

	m.messagesReceived = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rempos",
		Subsystem: "ingest",
		Name:      "messages_received_total",
		Help:      "Total telemetry messages received over WebSocket",
	}))
	m.samplesDecoded = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rempos",
		Subsystem: "ingest",
		Name:      "samples_decoded_total",
		Help:      "Total messages decoded into a sensor sample",
	}))
	m.messagesDropped = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rempos",
		Subsystem: "ingest",
		Name:      "messages_dropped_total",
		Help:      "Total messages dropped, by reason",
	}, []string{"reason"}))
	m.connectionsActive = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rempos",
		Subsystem: "ingest",
		Name:      "connections_active",
		Help:      "Number of open device connections",
	}))
	m.connectionsTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rempos",
		Subsystem: "ingest",
		Name:      "connections_total",
		Help:      "Total device connections accepted",
	}))
	m.handleDuration = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rempos",
		Subsystem: "ingest",
		Name:      "handle_duration_seconds",
		Help:      "Time spent parsing, decoding and storing one message",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}))
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		MessagesReceived:  m.received.Load(),
		SamplesDecoded:    m.decoded.Load(),
		MessagesDropped:   m.dropped.Load(),
		ConnectionsActive: m.connections.Load(),
	}
}

func (m *Metrics) messageReceived() {
	m.received.Add(1)
	if m.messagesReceived != nil {
		m.messagesReceived.Inc()
	}
}

func (m *Metrics) sampleDecoded(took time.Duration) {
	m.decoded.Add(1)
	if m.samplesDecoded != nil {
		m.samplesDecoded.Inc()
		m.handleDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) messageDropped(reason string) {
	m.dropped.Add(1)
	if m.messagesDropped != nil {
		m.messagesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) connectionOpened() {
	m.connections.Add(1)
	if m.connectionsActive != nil {
		m.connectionsActive.Inc()
		m.connectionsTotal.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	m.connections.Add(-1)
	if m.connectionsActive != nil {
		m.connectionsActive.Dec()
	}
}
