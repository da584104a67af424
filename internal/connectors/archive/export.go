package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cryo-dashboard/internal/protocol"
)

// Experiment is the full export of one configured experiment. The
// configuration values sit at the top level next to id and created.
type Experiment struct {
	ID      int64                     `json:"id"`
	Created time.Time                 `json:"created"`
	Config  protocol.ExperimentConfig `json:"-"`
	Steps   []Step                    `json:"steps"`
}

func (e Experiment) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Config)+3)
	for k, v := range e.Config {
		out[k] = v
	}
	out["id"] = e.ID
	out["created"] = e.Created
	steps := e.Steps
	if steps == nil {
		steps = []Step{}
	}
	out["steps"] = steps
	return json.Marshal(out)
}

// Filename is the download name of the export.
func (e Experiment) Filename() string {
	return fmt.Sprintf("experiment_%d_%s.json", e.ID, e.Created.UTC().Format("20060102-150405"))
}

// Step is one instrument setting within an experiment sweep.
type Step struct {
	ID                       int64       `json:"id"`
	Created                  time.Time   `json:"created"`
	StepDone                 bool        `json:"step_done"`
	SR830Sensitivity         float64     `json:"sr830_sensitivity"`
	SR830Frequency           float64     `json:"sr830_frequency"`
	SR830BufferSize          float64     `json:"sr830_buffersize"`
	N9310AFrequency          float64     `json:"n9310a_frequency"`
	N9310AAmplitude          float64     `json:"n9310a_amplitude"`
	MagnetField              float64     `json:"magnet_field"`
	OscopeResistor           float64     `json:"oscope_resistor"`
	DataWaitBeforeMeasuring  float64     `json:"data_wait_before_measuring"`
	DataPointsPerMeasurement float64     `json:"data_points_per_measurement"`
	DataPoints               []DataPoint `json:"datapoints"`
}

// DataPoint groups the magnetism and temperature readings taken together.
type DataPoint struct {
	ID                    int64              `json:"id"`
	Created               time.Time          `json:"created"`
	MagnetismDataPoints   []MagnetismPoint   `json:"magnetism_datapoints"`
	TemperatureDataPoints []TemperaturePoint `json:"temperature_datapoints"`
}

type MagnetismPoint struct {
	ID              int64     `json:"id"`
	Created         time.Time `json:"created"`
	ACRMSField      *float64  `json:"ac_rms_field"`
	DCField         *float64  `json:"dc_field"`
	LockinAmplitude *float64  `json:"lockin_amplitude"`
	LockinPhase     *float64  `json:"lockin_phase"`
}

type TemperaturePoint struct {
	ID              int64     `json:"id"`
	Created         time.Time `json:"created"`
	TStill          *float64  `json:"t_still"`
	TMixingChamber1 *float64  `json:"t_mixing_chamber_1"`
	TMixingChamber2 *float64  `json:"t_mixing_chamber_2"`
}

// ExportExperiment loads one experiment with every step and reading.
func (s *Store) ExportExperiment(ctx context.Context, id int64) (exp *Experiment, err error) {
	start := time.Now()
	defer func() { s.observe("export_experiment", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	exp = &Experiment{ID: id, Config: make(protocol.ExperimentConfig, len(configColumns))}
	var created any
	values := make([]float64, len(configColumns))
	dest := []any{&created}
	for i := range values {
		dest = append(dest, &values[i])
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT created, `+strings.Join(configColumns, ", ")+` FROM experimentconfiguration WHERE id = ?;`, id,
	).Scan(dest...)
	if err != nil {
		return nil, notFound(err, id)
	}
	exp.Created = asTime(created)
	for i, name := range configColumns {
		exp.Config[name] = values[i]
	}

	if exp.Steps, err = s.steps(ctx, id); err != nil {
		return nil, err
	}
	index := make(map[int64]*DataPoint)
	for i := range exp.Steps {
		st := &exp.Steps[i]
		if st.DataPoints, err = s.dataPoints(ctx, st.ID); err != nil {
			return nil, err
		}
		for j := range st.DataPoints {
			index[st.DataPoints[j].ID] = &st.DataPoints[j]
		}
	}
	if err := s.magnetism(ctx, id, index); err != nil {
		return nil, err
	}
	if err := s.temperatures(ctx, id, index); err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *Store) steps(ctx context.Context, experimentID int64) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, created, step_done, sr830_sensitivity, sr830_frequency, sr830_buffersize,
  n9310a_frequency, n9310a_amplitude, magnet_field, oscope_resistor,
  data_wait_before_measuring, data_points_per_measurement
FROM experimentstep
WHERE experiment_configuration_id = ?
ORDER BY id ASC;
`, experimentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Step{}
	for rows.Next() {
		var (
			st      Step
			created any
		)
		if err := rows.Scan(&st.ID, &created, &st.StepDone, &st.SR830Sensitivity, &st.SR830Frequency, &st.SR830BufferSize,
			&st.N9310AFrequency, &st.N9310AAmplitude, &st.MagnetField, &st.OscopeResistor,
			&st.DataWaitBeforeMeasuring, &st.DataPointsPerMeasurement); err != nil {
			return nil, err
		}
		st.Created = asTime(created)
		st.DataPoints = []DataPoint{}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) dataPoints(ctx context.Context, stepID int64) ([]DataPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created FROM datapoint WHERE experiment_step_id = ? ORDER BY id ASC;`, stepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DataPoint{}
	for rows.Next() {
		var (
			dp      DataPoint
			created any
		)
		if err := rows.Scan(&dp.ID, &created); err != nil {
			return nil, err
		}
		dp.Created = asTime(created)
		dp.MagnetismDataPoints = []MagnetismPoint{}
		dp.TemperatureDataPoints = []TemperaturePoint{}
		out = append(out, dp)
	}
	return out, rows.Err()
}

func (s *Store) magnetism(ctx context.Context, experimentID int64, index map[int64]*DataPoint) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT m.id, m.datapoint_id, m.created, m.ac_rms_field, m.dc_field, m.lockin_amplitude, m.lockin_phase
FROM magnetismdatapoint m
JOIN datapoint d ON d.id = m.datapoint_id
JOIN experimentstep s ON s.id = d.experiment_step_id
WHERE s.experiment_configuration_id = ?
ORDER BY m.id ASC;
`, experimentID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                 MagnetismPoint
			dpID              int64
			created           any
			rms, dc, amp, phi sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &dpID, &created, &rms, &dc, &amp, &phi); err != nil {
			return err
		}
		p.Created = asTime(created)
		p.ACRMSField, p.DCField, p.LockinAmplitude, p.LockinPhase = nullable(rms), nullable(dc), nullable(amp), nullable(phi)
		if dp := index[dpID]; dp != nil {
			dp.MagnetismDataPoints = append(dp.MagnetismDataPoints, p)
		}
	}
	return rows.Err()
}

func (s *Store) temperatures(ctx context.Context, experimentID int64, index map[int64]*DataPoint) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT t.id, t.datapoint_id, t.created, t.t_still, t.t_mixing_chamber_1, t.t_mixing_chamber_2
FROM temperaturedatapoint t
JOIN datapoint d ON d.id = t.datapoint_id
JOIN experimentstep s ON s.id = d.experiment_step_id
WHERE s.experiment_configuration_id = ?
ORDER BY t.id ASC;
`, experimentID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p             TemperaturePoint
			dpID          int64
			created       any
			still, m1, m2 sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &dpID, &created, &still, &m1, &m2); err != nil {
			return err
		}
		p.Created = asTime(created)
		p.TStill, p.TMixingChamber1, p.TMixingChamber2 = nullable(still), nullable(m1), nullable(m2)
		if dp := index[dpID]; dp != nil {
			dp.TemperatureDataPoints = append(dp.TemperatureDataPoints, p)
		}
	}
	return rows.Err()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
