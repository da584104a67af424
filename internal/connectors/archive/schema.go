package archive

import (
	"context"
	"strings"
)

func schemaStatements() []string {
	cols := make([]string, 0, len(configColumns))
	for _, c := range configColumns {
		cols = append(cols, "  "+c+" REAL NOT NULL")
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS experimentconfiguration (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created DATETIME NOT NULL,
` + strings.Join(cols, ",\n") + `
);`,
		`CREATE TABLE IF NOT EXISTS experimentstep (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created DATETIME NOT NULL,
  step_done INTEGER NOT NULL DEFAULT 0,
  experiment_configuration_id INTEGER NOT NULL REFERENCES experimentconfiguration(id),
  sr830_sensitivity REAL NOT NULL,
  sr830_frequency REAL NOT NULL,
  sr830_buffersize REAL NOT NULL,
  n9310a_frequency REAL NOT NULL,
  n9310a_amplitude REAL NOT NULL,
  magnet_field REAL NOT NULL,
  oscope_resistor REAL NOT NULL,
  data_wait_before_measuring REAL NOT NULL,
  data_points_per_measurement REAL NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS experimentstep_experiment_configuration_id ON experimentstep (experiment_configuration_id);`,
		`CREATE TABLE IF NOT EXISTS datapoint (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created DATETIME NOT NULL,
  experiment_step_id INTEGER NOT NULL REFERENCES experimentstep(id)
);`,
		`CREATE INDEX IF NOT EXISTS datapoint_experiment_step_id ON datapoint (experiment_step_id);`,
		`CREATE TABLE IF NOT EXISTS magnetismdatapoint (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  datapoint_id INTEGER NOT NULL REFERENCES datapoint(id),
  created DATETIME NOT NULL,
  ac_rms_field REAL,
  dc_field REAL,
  lockin_amplitude REAL,
  lockin_phase REAL
);`,
		`CREATE TABLE IF NOT EXISTS temperaturedatapoint (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  datapoint_id INTEGER NOT NULL REFERENCES datapoint(id),
  created DATETIME NOT NULL,
  t_still REAL,
  t_mixing_chamber_1 REAL,
  t_mixing_chamber_2 REAL
);`,
	}
}

// EnsureSchema creates the archive tables in an empty SQLite file. MySQL
// archives are owned by the instrument server and are never altered.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.driver != "sqlite" {
		return nil
	}
	for _, stmt := range schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
