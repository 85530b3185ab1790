// Package ingest accepts WebSocket connections from the phone app, decodes
// every inbound telemetry frame and hands the resulting sample to a callback.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rempos/internal/sample"
	"rempos/internal/tree"
)

// Greeting is the first text frame every connection receives. The app does
// not start streaming until it has seen it.
const Greeting = "Connected"

const closeReasonStopped = "Server stopped"

var (
	ErrNotListening  = errors.New("ingest: server is not listening")
	ErrServerStopped = errors.New("ingest: server stopped")
)

// State is the server lifecycle position.
type State int

const (
	StateIdle State = iota
	StateListening
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	// Product and Version form the second greeting frame:
	// "Connected to <Product> <Version>".
	Product string
	Version string

	// WriteTimeout bounds every frame written to a device.
	WriteTimeout time.Duration

	// ReadLimit caps the size of one inbound message in bytes.
	ReadLimit int64

	// ReusePort sets SO_REUSEPORT on the listener (Linux only).
	ReusePort bool
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Server is a single-use WebSocket ingestion endpoint: Listen, Serve, Stop.
type Server struct {
	cfg      Config
	onSample func(sample.Sample)
	log      zerolog.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	mu       sync.Mutex
	state    State
	ln       net.Listener
	httpSrv  *http.Server
	conns    map[string]*websocket.Conn
	handlers sync.WaitGroup
	stopped  chan struct{}
}

// New creates an idle server. onSample is called once for every message
// that decodes successfully, from the goroutine serving that connection.
func New(cfg Config, onSample func(sample.Sample), opts ...Option) (*Server, error) {
	if onSample == nil {
		return nil, fmt.Errorf("ingest: sample callback is required")
	}
	if strings.TrimSpace(cfg.Product) == "" {
		cfg.Product = "RemPos"
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = "dev"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 64 * 1024
	}

	s := &Server{
		cfg:      cfg,
		onSample: onSample,
		log:      log.With().Str("component", "ingest").Logger(),
		conns:    make(map[string]*websocket.Conn),
		stopped:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// The peer is a phone app, not a browser page.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s, nil
}

// Listen binds the listening socket. A failure is returned as *BindError and
// leaves the server idle.
func (s *Server) Listen(b Bind) error {
	if err := b.validate(); err != nil {
		return &BindError{Addr: b.Address(), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIdle:
	case StateListening:
		return fmt.Errorf("ingest: already listening on %s", s.ln.Addr())
	default:
		return ErrServerStopped
	}

	lc := listenConfig(s.cfg.ReusePort)
	ln, err := lc.Listen(context.Background(), "tcp", b.Address())
	if err != nil {
		return &BindError{Addr: b.Address(), Err: err}
	}

	s.ln = ln
	s.httpSrv = &http.Server{
		Handler:           http.HandlerFunc(s.serveWS),
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	s.state = StateListening
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

// Serve runs the accept loop until Stop is called or ctx is done. It returns
// nil after a requested stop, once every connection handler has finished.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return ErrNotListening
	}
	ln, srv := s.ln, s.httpSrv
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopped:
		}
	}()

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-s.stopped
		return nil
	}
	s.log.Error().Err(err).Msg("accept loop failed")
	s.Stop()
	return err
}

// Stop closes the listener and every open connection, then waits for their
// handlers to return. After Stop returns the callback is never invoked again.
// It is safe to call from any goroutine and more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.state = StateStopped
		close(s.stopped)
		s.mu.Unlock()
		return
	case StateStopping, StateStopped:
		s.mu.Unlock()
		<-s.stopped
		return
	}
	s.state = StateStopping
	srv, ln := s.httpSrv, s.ln
	open := make([]*websocket.Conn, 0, len(s.conns))
	for _, ws := range s.conns {
		open = append(open, ws)
	}
	s.mu.Unlock()

	_ = srv.Close()
	// Serve may never have run, in which case the server does not own ln yet.
	_ = ln.Close()

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, closeReasonStopped)
	for _, ws := range open {
		_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = ws.Close()
	}
	s.handlers.Wait()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	close(s.stopped)
	s.log.Info().Int("closed_connections", len(open)).Msg("stopped")
}

// Done is closed once the server has fully stopped.
func (s *Server) Done() <-chan struct{} { return s.stopped }

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		http.Error(w, "server stopping", http.StatusServiceUnavailable)
		return
	}
	s.handlers.Add(1)
	s.mu.Unlock()
	defer s.handlers.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		server: s,
	}
	c.log = s.log.With().Str("conn", c.id).Str("remote", r.RemoteAddr).Logger()

	if !s.track(c) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, closeReasonStopped),
			time.Now().Add(s.cfg.WriteTimeout))
		_ = ws.Close()
		return
	}
	defer s.untrack(c)

	c.run()
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateListening {
		return false
	}
	s.conns[c.id] = c.ws
	s.metrics.connectionOpened()
	return true
}

func (s *Server) untrack(c *conn) {
	_ = c.ws.Close()
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.metrics.connectionClosed()
}

// conn is one open device session. Only its own goroutine reads from or
// writes data frames to ws; Stop may concurrently write a close frame.
type conn struct {
	id     string
	ws     *websocket.Conn
	server *Server
	log    zerolog.Logger
}

func (c *conn) run() {
	s := c.server
	c.ws.SetReadLimit(s.cfg.ReadLimit)
	c.log.Info().Msg("connection open")

	greetings := []string{Greeting, fmt.Sprintf("Connected to %s %s", s.cfg.Product, s.cfg.Version)}
	for _, g := range greetings {
		if err := c.write(websocket.TextMessage, []byte(g)); err != nil {
			c.log.Warn().Err(err).Msg("greeting failed")
			return
		}
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logClosed(err)
			return
		}
		if !c.handle(data) {
			return
		}
	}
}

// handle processes one inbound message. Malformed messages are dropped;
// a panic closes this connection only. It reports whether to keep reading.
func (c *conn) handle(data []byte) (keep bool) {
	s := c.server
	defer func() {
		if r := recover(); r != nil {
			s.metrics.messageDropped(dropPanic)
			c.log.Error().Interface("panic", r).Msg("message handler panicked; closing connection")
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error"),
				time.Now().Add(s.cfg.WriteTimeout))
			keep = false
		}
	}()

	s.metrics.messageReceived()
	start := time.Now()

	smp, err := decodeMessage(data)
	if err != nil {
		reason := dropDecode
		if errors.Is(err, tree.ErrParse) {
			reason = dropParse
		}
		s.metrics.messageDropped(reason)
		c.log.Warn().Err(err).Str("reason", reason).Int("bytes", len(data)).Msg("dropping message")
	} else {
		s.onSample(smp)
		s.metrics.sampleDecoded(time.Since(start))
	}

	// Acknowledge every frame, including dropped ones, so the app keeps
	// streaming.
	if err := c.write(websocket.BinaryMessage, nil); err != nil {
		c.log.Debug().Err(err).Msg("ack failed")
		return false
	}
	return true
}

func (c *conn) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

func (c *conn) logClosed(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Info().Msg("connection closed by peer")
		return
	}
	if c.server.State() != StateListening {
		c.log.Info().Msg("connection closed by server")
		return
	}
	c.log.Info().Err(err).Msg("connection lost")
}

func decodeMessage(data []byte) (sample.Sample, error) {
	root, err := tree.ParseBytes(data)
	if err != nil {
		return sample.Sample{}, err
	}
	return sample.Decode(root)
}
