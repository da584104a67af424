package http

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	archivestore "cryo-dashboard/internal/connectors/archive"
)

func servicesStatusHandler(store *archivestore.Store, upstreamURL string, timeout time.Duration, metrics *Metrics) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
		defer cancel()

		payload := map[string]any{
			"generated_at": time.Now().UTC(),
			"services":     map[string]any{},
		}
		services := payload["services"].(map[string]any)

		services["archive"] = archiveStatus(ctx, store)
		services["instrument_server"] = upstreamStatus(ctx, upstreamURL, timeout)
		payload["active_sessions"] = metrics.ActiveSessions()

		writeJSON(w, nethttp.StatusOK, payload)
	}
}

func archiveStatus(ctx context.Context, store *archivestore.Store) map[string]any {
	if store == nil {
		return map[string]any{"enabled": false, "ok": false, "error": "experiment archive disabled"}
	}

	stats, err := store.ServiceStats(ctx)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "error": err.Error()}
	}
	return map[string]any{"enabled": true, "ok": true, "stats": stats}
}

// upstreamStatus dials the instrument server once and hangs up.
func upstreamStatus(ctx context.Context, url string, timeout time.Duration) map[string]any {
	if url == "" {
		return map[string]any{"enabled": false, "ok": false, "error": "instrument server url not configured"}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	start := time.Now()
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return map[string]any{"enabled": true, "ok": false, "url": url, "error": err.Error()}
	}
	_ = conn.Close()
	return map[string]any{"enabled": true, "ok": true, "url": url, "dial_ms": time.Since(start).Milliseconds()}
}
