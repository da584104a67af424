package http

import (
	nethttp "net/http"

	"cryo-dashboard/internal/config"
	"cryo-dashboard/internal/protocol"
)

func dashboardSettingsHandler(cfg config.Config) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		fields := make([]map[string]any, 0, len(protocol.ConfigFields))
		for _, f := range protocol.ConfigFields {
			fields = append(fields, map[string]any{
				"name":  f.Name,
				"label": f.Label,
				"group": f.Group,
			})
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"data": map[string]any{
				"temperature_probes":       cfg.TemperatureProbes,
				"pressure_channels":        cfg.PressureChannels,
				"refresh_interval_seconds": cfg.RefreshInterval.Seconds(),
				"plot_window":              cfg.PlotWindow,
				"history_max_points":       cfg.HistoryMaxPoints,
				"experiment_page_size":     cfg.ArchivePageSize,
				"config_fields":            fields,
			},
		})
	}
}
