// Package transport maintains the duplex connection to the instrument server.
// Inbound events are delivered in arrival order on Events; connection health
// changes on Health. The client reconnects with exponential backoff and
// answers every identity request with its client identifier.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cryo-dashboard/internal/protocol"
)

// ErrNotConnected is returned by emitters while no connection is up. Nothing is queued.
var ErrNotConnected = errors.New("not connected to instrument server")

// Health is the connection state surfaced to the user.
type Health int32

const (
	HealthConnecting Health = iota
	HealthConnected
	HealthReconnecting
	HealthDisconnected
)

func (h Health) String() string {
	switch h {
	case HealthConnecting:
		return "connecting"
	case HealthConnected:
		return "connected"
	case HealthReconnecting:
		return "reconnecting"
	case HealthDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Observer receives traffic counts. The metrics layer implements it.
type Observer interface {
	ObserveInbound(kind protocol.Kind)
	ObserveOutbound(kind protocol.Kind)
	ObserveReconnect()
}

// Options configures a Client.
type Options struct {
	URL                 string
	ClientID            string
	HandshakeTimeout    time.Duration
	ReconnectInitial    time.Duration
	ReconnectMax        time.Duration
	ReconnectMaxElapsed time.Duration
	PingInterval        time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Header              http.Header
	Logger              zerolog.Logger
	Observer            Observer
}

func (o *Options) setDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.ReconnectInitial <= 0 {
		o.ReconnectInitial = 500 * time.Millisecond
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 75 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
}

// Client is one upstream connection on behalf of one browser tab.
type Client struct {
	opts   Options
	dialer *websocket.Dialer

	events chan protocol.Message
	health chan Health
	state  atomic.Int32

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// New creates a client. Nothing is dialled until Run.
func New(opts Options) *Client {
	opts.setDefaults()
	c := &Client{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		events: make(chan protocol.Message, 64),
		health: make(chan Health, 4),
	}
	c.state.Store(int32(HealthConnecting))
	return c
}

// Events delivers inbound messages in arrival order. It is closed when Run returns.
func (c *Client) Events() <-chan protocol.Message {
	return c.events
}

// Health delivers connection state changes. It is closed when Run returns.
func (c *Client) Health() <-chan Health {
	return c.health
}

// State is the current connection health.
func (c *Client) State() Health {
	return Health(c.state.Load())
}

// ClientID is the identifier sent in answer to identity requests.
func (c *Client) ClientID() string {
	return c.opts.ClientID
}

// Run connects and keeps reconnecting until ctx ends or the backoff gives up.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.health)
	defer close(c.events)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectInitial
	b.MaxInterval = c.opts.ReconnectMax
	b.MaxElapsedTime = c.opts.ReconnectMaxElapsed

	err := backoff.RetryNotify(
		func() error {
			conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
			if err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(ctx.Err())
				}
				return fmt.Errorf("dial %s: %w", c.opts.URL, err)
			}
			b.Reset()
			c.setConn(conn)
			c.setHealth(ctx, HealthConnected)
			c.opts.Logger.Info().Str("upstream", c.opts.URL).Msg("connected to instrument server")

			err = c.serve(ctx, conn)
			c.setConn(nil)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.setHealth(ctx, HealthReconnecting)
			// The elapsed budget counts from the drop, not from the dial.
			b.Reset()
			return err
		},
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			if c.opts.Observer != nil {
				c.opts.Observer.ObserveReconnect()
			}
			c.setHealth(ctx, HealthReconnecting)
			c.opts.Logger.Warn().Err(err).Dur("next", next).Msg("instrument server unreachable, retrying")
		},
	)
	c.state.Store(int32(HealthDisconnected))
	select {
	case c.health <- HealthDisconnected:
	default:
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()
	go c.pingLoop(conn, done)

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		msg, err := protocol.DecodeInbound(frame)
		if err != nil {
			c.opts.Logger.Warn().Err(err).Msg("dropping upstream frame")
			continue
		}
		if c.opts.Observer != nil {
			c.opts.Observer.ObserveInbound(msg.Kind)
		}
		if msg.Kind == protocol.KindIdentityRequest {
			if err := c.SendIdentity(); err != nil {
				c.opts.Logger.Warn().Err(err).Msg("identity reply failed")
			}
			continue
		}

		select {
		case c.events <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) setHealth(ctx context.Context, h Health) {
	if Health(c.state.Swap(int32(h))) == h {
		return
	}
	select {
	case c.health <- h:
	case <-ctx.Done():
	}
}

func (c *Client) emit(kind protocol.Kind, payload any) error {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", kind, err)
	}
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveOutbound(kind)
	}
	return nil
}
