package sim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const handshakeToken = "Connected"

var ErrHandshake = errors.New("sim: unexpected handshake")

type PhoneConfig struct {
	// URL is the bridge endpoint, e.g. ws://127.0.0.1:8080/.
	URL string
	// Rate is the number of samples sent per second.
	Rate float64
	// Count stops the phone after this many samples; 0 runs until ctx is done.
	Count int
	// AckTimeout bounds the wait for each acknowledgement frame.
	AckTimeout time.Duration
	Motion     Motion
}

// PhoneStats reports what one Run did.
type PhoneStats struct {
	Welcome string
	Sent    int
	Acked   int
}

// Phone behaves like the phone app: it waits for the greeting, then sends
// one sample at a time and waits for the acknowledgement before the next.
type Phone struct {
	cfg    PhoneConfig
	log    zerolog.Logger
	dialer *websocket.Dialer
}

func NewPhone(cfg PhoneConfig) (*Phone, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sim: url is required")
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 30
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	return &Phone{
		cfg:    cfg,
		log:    log.With().Str("component", "sim").Str("url", cfg.URL).Logger(),
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second, Proxy: http.ProxyFromEnvironment},
	}, nil
}

// Run connects and streams until ctx is done, Count samples were
// acknowledged, or the bridge closes the connection.
func (p *Phone) Run(ctx context.Context) (PhoneStats, error) {
	var st PhoneStats

	ws, _, err := p.dialer.DialContext(ctx, p.cfg.URL, nil)
	if err != nil {
		return st, fmt.Errorf("sim: dial %s: %w", p.cfg.URL, err)
	}
	defer ws.Close()

	// Unblock reads when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	welcome, err := p.handshake(ws)
	if err != nil {
		return st, err
	}
	st.Welcome = welcome
	p.log.Info().Str("welcome", welcome).Msg("connected")

	interval := time.Duration(float64(time.Second) / p.cfg.Rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for p.cfg.Count == 0 || st.Sent < p.cfg.Count {
		s := p.cfg.Motion.Sample(time.Since(start))
		if err := ws.WriteMessage(websocket.TextMessage, Message(s)); err != nil {
			// A close frame may already be queued behind the failed write.
			if _, _, rerr := ws.ReadMessage(); websocket.IsCloseError(rerr, websocket.CloseGoingAway) {
				err = rerr
			}
			return st, p.closed(ctx, err)
		}
		st.Sent++

		if err := p.awaitAck(ws); err != nil {
			return st, p.closed(ctx, err)
		}
		st.Acked++

		select {
		case <-ctx.Done():
			return st, nil
		case <-ticker.C:
		}
	}

	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return st, nil
}

func (p *Phone) handshake(ws *websocket.Conn) (string, error) {
	_ = ws.SetReadDeadline(time.Now().Add(p.cfg.AckTimeout))
	var frames [2]string
	for i := range frames {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("sim: read greeting: %w", err)
		}
		if mt != websocket.TextMessage {
			return "", fmt.Errorf("%w: frame type %d", ErrHandshake, mt)
		}
		frames[i] = string(data)
	}
	if frames[0] != handshakeToken {
		return "", fmt.Errorf("%w: %q", ErrHandshake, frames[0])
	}
	return frames[1], nil
}

func (p *Phone) awaitAck(ws *websocket.Conn) error {
	_ = ws.SetReadDeadline(time.Now().Add(p.cfg.AckTimeout))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		return err
	}
	if mt != websocket.BinaryMessage || len(data) != 0 {
		return fmt.Errorf("sim: unexpected frame type=%d len=%d while waiting for ack", mt, len(data))
	}
	return nil
}

// closed maps a read/write failure to the Run result: a normal or going-away
// close and ctx cancellation end the run cleanly.
func (p *Phone) closed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		p.log.Info().Err(err).Msg("bridge closed connection")
		return nil
	}
	return fmt.Errorf("sim: %w", err)
}
