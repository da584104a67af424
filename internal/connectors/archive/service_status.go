package archive

import (
	"context"
	"time"
)

// ServiceStats contains lightweight archive health and volume counters.
type ServiceStats struct {
	Driver      string `json:"driver"`
	PingMS      int64  `json:"ping_ms"`
	Experiments int64  `json:"experiments"`
	Steps       int64  `json:"steps"`
	StepsDone   int64  `json:"steps_done"`
	DataPoints  int64  `json:"datapoints"`
	LatestID    int64  `json:"latest_experiment_id"`
}

// ServiceStats pings the archive and counts its rows.
func (s *Store) ServiceStats(ctx context.Context) (out *ServiceStats, err error) {
	defer func(start time.Time) { s.observe("service_stats", start, err) }(time.Now())

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return nil, err
	}
	out = &ServiceStats{
		Driver: s.driver,
		PingMS: time.Since(start).Milliseconds(),
	}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM experimentconfiguration;`, &out.Experiments},
		{`SELECT COUNT(*) FROM experimentstep;`, &out.Steps},
		{`SELECT COUNT(*) FROM experimentstep WHERE step_done <> 0;`, &out.StepsDone},
		{`SELECT COUNT(*) FROM datapoint;`, &out.DataPoints},
		{`SELECT COALESCE(MAX(id), 0) FROM experimentconfiguration;`, &out.LatestID},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return out, nil
}
