package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cryo-dashboard/internal/config"
	archivestore "cryo-dashboard/internal/connectors/archive"
	"cryo-dashboard/internal/plot"
)

// Server wraps an HTTP server and route handlers.
type Server struct {
	cfg        config.Config
	httpServer *nethttp.Server
	archive    *archivestore.Store
	history    *plot.History
	metrics    *Metrics
	identities *identities
	upgrader   websocket.Upgrader
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a configured HTTP server with v1 endpoints.
func NewServer(cfg config.Config, log zerolog.Logger) (*Server, error) {
	metrics := NewMetrics()

	var store *archivestore.Store
	if cfg.ArchiveEnabled {
		createdStore, err := archivestore.NewStore(cfg)
		if err != nil {
			return nil, err
		}
		createdStore.SetObserver(metrics)
		store = createdStore
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		archive:    store,
		history:    plot.NewHistory(cfg.HistoryMaxPoints),
		metrics:    metrics,
		identities: newIdentities(cfg.CookieHashKey, cfg.CookieSecure),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	s.httpServer = &nethttp.Server{
		Addr:        cfg.ListenAddr,
		Handler:     s.routes(),
		ReadTimeout: cfg.ReadTimeout,
		// WriteTimeout is applied per websocket frame by browserConn instead.
	}
	return s, nil
}

func (s *Server) routes() nethttp.Handler {
	r := chi.NewRouter()
	r.Use(loggingMiddleware(s.log))
	r.Use(s.metrics.middleware)

	r.Get("/", s.dashboardHandler)
	r.Get("/favicon.ico", faviconHandler)
	r.Get("/ws", s.wsHandler)
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plots/temperature.png", temperaturePlotHandler(s.history, s.cfg.TemperatureProbes))
		r.Get("/experiments", experimentsHandler(s.cfg.ArchivePageSize, s.archive))
		r.Get("/experiments/{id}/export", exportExperimentHandler(s.archive))
		r.Get("/status/services", servicesStatusHandler(s.archive, s.cfg.UpstreamURL, s.cfg.UpstreamHandshakeTimeout, s.metrics))
		r.Get("/settings/dashboard", dashboardSettingsHandler(s.cfg))
	})
	return r
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() nethttp.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown ends every browser session, then gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.archive != nil {
		_ = s.archive.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func readyHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ready",
	})
}

func loggingMiddleware(log zerolog.Logger) func(nethttp.Handler) nethttp.Handler {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: nethttp.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
