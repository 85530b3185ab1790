// Package bridge owns the ingestion server and the latest-sample mailbox and
// exposes the sample to in-process consumers.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rempos/internal/ingest"
	"rempos/internal/mailbox"
	"rempos/internal/sample"
)

var (
	// ErrNotStarted is returned by the getters while the controller is not running.
	ErrNotStarted = errors.New("bridge: not started")
	// ErrNoData is returned by the getters before the first sample arrived.
	ErrNoData = errors.New("bridge: no sample received yet")
)

type Config struct {
	Ingest ingest.Config
}

type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics shares one set of ingest counters across every server the
// controller starts.
func WithMetrics(m *ingest.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Status is a point-in-time view of the controller for status reporting.
type Status struct {
	Running     bool
	State       string
	Addr        string
	StartedAt   time.Time
	Samples     uint64
	LastSample  time.Time
	LastError   string
	Ingest      ingest.MetricsSnapshot
	HasSample   bool
	Connections int64
}

// Controller runs one ingestion server on a worker goroutine and keeps the
// most recent decoded sample. The zero value is not usable; use New.
type Controller struct {
	cfg     Config
	log     zerolog.Logger
	metrics *ingest.Metrics
	box     *mailbox.Mailbox[sample.Sample]

	mu        sync.Mutex
	srv       *ingest.Server
	done      chan struct{}
	startedAt time.Time
	lastErr   error
}

func New(cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg: cfg,
		log: log.With().Str("component", "bridge").Logger(),
		box: mailbox.New[sample.Sample](),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = ingest.NewMetrics(nil)
	}
	return c
}

// Start creates a controller and starts it. The returned handle is the only
// way to reach the running service; the caller owns it and must Close it.
func Start(ctx context.Context, cfg Config, b ingest.Bind, opts ...Option) (*Controller, error) {
	c := New(cfg, opts...)
	if err := c.Start(ctx, b); err != nil {
		return nil, err
	}
	return c, nil
}

// Start binds the ingestion server and runs it on one worker goroutine.
// It returns once the bind has succeeded or failed. A bind failure leaves
// the controller stopped and Start may be retried. Calling Start while
// already running is a no-op.
//
// The server stops when ctx is done or when Stop is called.
func (c *Controller) Start(ctx context.Context, b ingest.Bind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runningLocked() {
		return nil
	}

	srv, err := ingest.New(c.cfg.Ingest, c.box.Update,
		ingest.WithLogger(c.log.With().Str("component", "ingest").Logger()),
		ingest.WithMetrics(c.metrics),
	)
	if err != nil {
		return err
	}
	if err := srv.Listen(b); err != nil {
		c.lastErr = err
		c.log.Error().Err(err).Str("bind", b.String()).Msg("start failed")
		return fmt.Errorf("bridge: start: %w", err)
	}

	done := make(chan struct{})
	c.srv = srv
	c.done = done
	c.startedAt = time.Now().UTC()
	c.lastErr = nil

	go func() {
		defer close(done)
		if err := srv.Serve(ctx); err != nil {
			c.log.Error().Err(err).Msg("ingest server exited")
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
		}
	}()

	c.log.Info().Str("addr", srv.Addr().String()).Msg("started")
	return nil
}

// Stop stops the server and waits for the worker goroutine to exit. Once it
// returns the mailbox is never written again. Safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	srv, done := c.srv, c.done
	c.srv, c.done = nil, nil
	c.mu.Unlock()
	if srv == nil {
		return
	}

	srv.Stop()
	<-done
	c.log.Info().Msg("stopped")
}

// Close is Stop, for use with defer.
func (c *Controller) Close() error {
	c.Stop()
	return nil
}

// Running reports whether the worker is serving. It turns false on its own if
// the context given to Start is cancelled.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningLocked()
}

func (c *Controller) runningLocked() bool {
	if c.srv == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Addr is the bound ingestion address, or nil when not running.
func (c *Controller) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.runningLocked() {
		return nil
	}
	return c.srv.Addr()
}

// Latest returns a copy of the most recent sample.
func (c *Controller) Latest() (sample.Sample, error) {
	if !c.Running() {
		return sample.Sample{}, ErrNotStarted
	}
	s, ok := c.box.Read()
	if !ok {
		return sample.Sample{}, ErrNoData
	}
	return s, nil
}

func (c *Controller) Acceleration() (sample.Vector3, error) {
	s, err := c.Latest()
	return s.Acceleration, err
}

func (c *Controller) UserAcceleration() (sample.Vector3, error) {
	s, err := c.Latest()
	return s.UserAcceleration, err
}

func (c *Controller) Orientation() (sample.Vector3, error) {
	s, err := c.Latest()
	return s.Orientation, err
}

func (c *Controller) GPS() (sample.Coordinates, error) {
	s, err := c.Latest()
	return s.GPS, err
}

func (c *Controller) Pressure() (float64, error) {
	s, err := c.Latest()
	return s.Pressure, err
}

func (c *Controller) Timecode() (float64, error) {
	s, err := c.Latest()
	return s.Timecode, err
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		Running:   c.runningLocked(),
		State:     ingest.StateIdle.String(),
		StartedAt: c.startedAt,
	}
	if !c.startedAt.IsZero() {
		st.State = ingest.StateStopped.String()
	}
	if c.srv != nil {
		st.State = c.srv.State().String()
		if a := c.srv.Addr(); a != nil {
			st.Addr = a.String()
		}
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	c.mu.Unlock()

	st.Samples, st.LastSample = c.box.Updates()
	st.HasSample = st.Samples > 0
	st.Ingest = c.metrics.Snapshot()
	st.Connections = st.Ingest.ConnectionsActive
	return st
}
