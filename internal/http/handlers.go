package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	archivestore "cryo-dashboard/internal/connectors/archive"
	"cryo-dashboard/internal/plot"
)

const maxPlotHours = 24 * 7

func archiveDisabled(w nethttp.ResponseWriter) {
	writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{
		"error": "experiment archive disabled (set APP_ARCHIVE_ENABLED=true)",
	})
}

func temperaturePlotHandler(history *plot.History, probes []string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hours := 24
		if raw := strings.TrimSpace(r.URL.Query().Get("hours")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxPlotHours {
				writeJSON(w, nethttp.StatusBadRequest, map[string]any{
					"error": fmt.Sprintf("hours must be between 1 and %d", maxPlotHours),
				})
				return
			}
			hours = n
		}

		var buf bytes.Buffer
		err := plot.RenderPNG(&buf, history, plot.ImageOptions{
			Title:  fmt.Sprintf("Temperatures, last %dh", hours),
			YTitle: "Temperature [K]",
			Labels: probes,
			Since:  time.Now().Add(-time.Duration(hours) * time.Hour),
		})
		if err != nil {
			if errors.Is(err, plot.ErrNoData) {
				writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "no temperature history recorded yet"})
				return
			}
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to render temperature plot"})
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func experimentsHandler(pageSize int, store *archivestore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store == nil {
			archiveDisabled(w)
			return
		}

		page := 1
		if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "page must be a positive integer"})
				return
			}
			page = n
		}

		list, err := store.ListExperiments(r.Context(), page, pageSize)
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to list experiments"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"data": list,
			"meta": map[string]any{
				"page_size":    pageSize,
				"generated_at": time.Now().UTC(),
			},
		})
	}
}

func exportExperimentHandler(store *archivestore.Store) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if store == nil {
			archiveDisabled(w)
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id < 1 {
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"error": "invalid experiment id"})
			return
		}

		exp, err := store.ExportExperiment(r.Context(), id)
		if err != nil {
			if errors.Is(err, archivestore.ErrNotFound) {
				writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": fmt.Sprintf("experiment not found: %d", id)})
				return
			}
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to export experiment"})
			return
		}

		body, err := json.MarshalIndent(exp, "", "  ")
		if err != nil {
			writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to encode experiment"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename()))
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write(body)
	}
}
