package web

import (
	"sync/atomic"
	"time"

	"rempos/internal/bridge"
	"rempos/internal/sample"
)

// Bridge is the part of the controller the HTTP surface reads from.
type Bridge interface {
	Latest() (sample.Sample, error)
	Status() bridge.Status
}

type Status struct {
	startUnixNano int64
	product       atomic.Value // string
	version       atomic.Value // string
	bind          atomic.Value // string
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.product.Store("")
	s.version.Store("")
	s.bind.Store("")
	return s
}

// SetStatic records the configured identity and bind so they show up even
// while the bridge is down.
func (s *Status) SetStatic(product, version, bind string) {
	if product != "" {
		s.product.Store(product)
	}
	if version != "" {
		s.version.Store(version)
	}
	if bind != "" {
		s.bind.Store(bind)
	}
}

type StatusSnapshot struct {
	Service   string `json:"service"`
	Product   string `json:"product"`
	Version   string `json:"version"`
	NowUTC    string `json:"now_utc"`
	UptimeSec int64  `json:"uptime_sec"`

	Bind       string `json:"bind"`
	IngestAddr string `json:"ingest_addr,omitempty"`
	State      string `json:"state"`
	Running    bool   `json:"running"`
	LastError  string `json:"last_error,omitempty"`

	SamplesStored    uint64 `json:"samples_stored"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesDropped  uint64 `json:"messages_dropped"`
	ConnectionsOpen  int64  `json:"connections_open"`
	LastSampleUTC    string `json:"last_sample_utc,omitempty"`
	LastSampleAgeSec *int64 `json:"last_sample_age_sec,omitempty"`
	BridgeStartedUTC string `json:"bridge_started_utc,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time, b Bridge) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "rempos",
		Product:   s.product.Load().(string),
		Version:   s.version.Load().(string),
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Bind:      s.bind.Load().(string),
		State:     "idle",
	}
	if b == nil {
		return snap
	}

	bs := b.Status()
	snap.IngestAddr = bs.Addr
	snap.State = bs.State
	snap.Running = bs.Running
	snap.LastError = bs.LastError
	snap.SamplesStored = bs.Samples
	snap.MessagesReceived = bs.Ingest.MessagesReceived
	snap.MessagesDropped = bs.Ingest.MessagesDropped
	snap.ConnectionsOpen = bs.Connections
	if !bs.StartedAt.IsZero() {
		snap.BridgeStartedUTC = bs.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if !bs.LastSample.IsZero() {
		snap.LastSampleUTC = bs.LastSample.UTC().Format(time.RFC3339Nano)
		age := int64(nowUTC.Sub(bs.LastSample).Seconds())
		if age < 0 {
			age = 0
		}
		snap.LastSampleAgeSec = &age
	}
	return snap
}
