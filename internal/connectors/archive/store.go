package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"cryo-dashboard/internal/config"
	"cryo-dashboard/internal/protocol"
)

// ErrNotFound is returned when an experiment id does not exist.
var ErrNotFound = errors.New("experiment not found")

// Observer receives per-query timings. The metrics layer implements it.
type Observer interface {
	ObserveQuery(op string, d time.Duration, err error)
}

// Store reads the experiment database written by the instrument server.
type Store struct {
	db           *sql.DB
	driver       string
	queryTimeout time.Duration
	observer     Observer
}

// configColumns are the experimentconfiguration columns in form order.
var configColumns = func() []string {
	out := make([]string, 0, len(protocol.ConfigFields))
	for _, f := range protocol.ConfigFields {
		out = append(out, f.Name)
	}
	return out
}()

// NewStore opens the archive selected by cfg. SQLite archives get their
// schema created if missing.
func NewStore(cfg config.Config) (*Store, error) {
	driver, dsn := cfg.ArchiveDSN()
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("archive dsn required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	timeout := cfg.ArchiveConnTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, driver: driver, queryTimeout: cfg.ArchiveQueryTimeout}
	if s.queryTimeout <= 0 {
		s.queryTimeout = 10 * time.Second
	}
	if driver == "sqlite" {
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// SetObserver installs a query observer.
func (s *Store) SetObserver(o Observer) {
	s.observer = o
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver is the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.observer != nil {
		s.observer.ObserveQuery(op, time.Since(start), err)
	}
}

// ListExperiments returns a 1-indexed page of experiments, newest first.
func (s *Store) ListExperiments(ctx context.Context, page, pageSize int) (list *protocol.ExperimentList, err error) {
	start := time.Now()
	defer func() { s.observe("list_experiments", start, err) }()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	out := &protocol.ExperimentList{Page: page, Rows: []protocol.ExperimentRow{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experimentconfiguration;`).Scan(&out.Count); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.created, c.`+strings.Join(configColumns, ", c.")+`,
  (SELECT COUNT(*) FROM experimentstep s WHERE s.experiment_configuration_id = c.id) AS steps,
  (SELECT COUNT(*)
     FROM datapoint d
     JOIN experimentstep s ON s.id = d.experiment_step_id
    WHERE s.experiment_configuration_id = c.id) AS taken
FROM experimentconfiguration c
ORDER BY c.id DESC
LIMIT ? OFFSET ?;
`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row     protocol.ExperimentRow
			created any
			steps   int
		)
		values := make([]float64, len(configColumns))
		dest := []any{&row.ID, &created}
		for i := range values {
			dest = append(dest, &values[i])
		}
		dest = append(dest, &steps, &row.PointsTaken)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row.Created = asTime(created)
		row.Config = make(protocol.ExperimentConfig, len(configColumns))
		for i, name := range configColumns {
			row.Config[name] = values[i]
		}
		row.PointsTotal = steps * int(row.Config["data_points_per_measurement"])
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// asTime accepts whatever the driver hands back for a DATETIME column.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	default:
		return time.Time{}
	}
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func notFound(err error, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return err
}
