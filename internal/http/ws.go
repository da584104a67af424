package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cryo-dashboard/internal/session"
	"cryo-dashboard/internal/transport"
)

const (
	browserPongWait     = 60 * time.Second
	browserPingInterval = 25 * time.Second
	browserMaxMessage   = 64 << 10
)

// browserConn is the downstream socket of one tab. Frames from the session
// loop and pings from the keepalive share the write lock.
type browserConn struct {
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (b *browserConn) WriteFrame(f session.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(b.timeout))
	return b.conn.WriteJSON(f)
}

func (b *browserConn) ping() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(b.timeout))
}

func (s *Server) wsHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	header := nethttp.Header{}
	clientID, err := s.identities.ensure(r, header)
	if err != nil {
		s.log.Error().Err(err).Msg("issue client identifier")
		writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to issue client identifier"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade has already answered the request.
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	log := s.log.With().Str("session", sessionID).Str("client_id", clientID).Logger()
	timeout := s.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sink := &browserConn{conn: conn, timeout: timeout}

	up := transport.New(transport.Options{
		URL:                 s.cfg.UpstreamURL,
		ClientID:            clientID,
		HandshakeTimeout:    s.cfg.UpstreamHandshakeTimeout,
		ReconnectInitial:    s.cfg.ReconnectInitial,
		ReconnectMax:        s.cfg.ReconnectMax,
		ReconnectMaxElapsed: s.cfg.ReconnectMaxElapsed,
		Logger:              log,
		Observer:            s.metrics,
	})
	sess := session.New(up, sink, session.Options{
		ID:              sessionID,
		ClientID:        clientID,
		Probes:          s.cfg.TemperatureProbes,
		Channels:        s.cfg.PressureChannels,
		Window:          s.cfg.PlotWindow,
		RefreshInterval: s.cfg.RefreshInterval,
		Export:          s.archive != nil,
		History:         s.history,
		Logger:          s.log,
	})

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	s.metrics.sessionOpened()
	defer s.metrics.sessionClosed()
	log.Info().Str("remote_addr", r.RemoteAddr).Msg("browser connected")

	go s.readActions(ctx, cancel, conn, sess, log)
	go keepalive(ctx, sink)

	if err := sess.Run(ctx); err != nil {
		log.Info().Err(err).Msg("browser session ended")
		return
	}
	log.Info().Msg("browser disconnected")
}

// readActions feeds browser messages to the session until the socket fails,
// then cancels the session.
func (s *Server) readActions(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *session.Session, log zerolog.Logger) {
	defer cancel()
	conn.SetReadLimit(browserMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(browserPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(browserPongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("browser read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(browserPongWait))

		var a session.Action
		if err := json.Unmarshal(data, &a); err != nil {
			log.Warn().Err(err).Msg("dropping malformed browser action")
			continue
		}
		if err := sess.Submit(ctx, a); err != nil {
			return
		}
	}
}

func keepalive(ctx context.Context, b *browserConn) {
	ticker := time.NewTicker(browserPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.ping(); err != nil {
				return
			}
		}
	}
}
