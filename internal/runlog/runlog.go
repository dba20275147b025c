// Package runlog persists run and per-condition metrics to a sqlite
// database so verification runs can be compared after the fact.
package runlog

import (
	"database/sql"
	"fmt"

	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"stim2cone/pkg/pipeline"
)

// Log records pipeline runs. A Log wraps one sqlite database; callers
// own its lifetime and must Close it.
type Log struct {
	db *sql.DB
}

// Open opens or creates the run log database at path. The special path
// ":memory:" keeps the log in memory, which the tests use.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: opening %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			phases            INTEGER,
			contrast_points   INTEGER,
			receptor_variant  TEXT,
			corrected         INTEGER,
			committed         INTEGER,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS conditions (
			run_id            TEXT,
			phase             INTEGER,
			contrast_point    INTEGER,
			scene_name        TEXT,
			width_m           DOUBLE,
			fov_deg           DOUBLE,
			max_rel_deviation DOUBLE,
			contrast_before   DOUBLE,
			contrast_after    DOUBLE,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: creating schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close releases the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record writes one run row and one condition row per committed entry of
// the aggregate. Contrast columns hold the mean Michelson contrast over
// the corrected bands and are null when correction was disabled.
func (l *Log) Record(agg *pipeline.Aggregate) error {
	entries := agg.Entries()

	corrected := 0
	for _, e := range entries {
		if e.Correction != nil {
			corrected = 1
			break
		}
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("runlog: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, phases, contrast_points, receptor_variant, corrected, committed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		agg.RunID, agg.NumPhases(), agg.NumContrasts(), agg.Variant.String(), corrected, len(entries))
	if err != nil {
		return fmt.Errorf("runlog: recording run %s: %w", agg.RunID, err)
	}

	for _, e := range entries {
		var before, after sql.NullFloat64
		if e.Correction != nil {
			before = sql.NullFloat64{Float64: meanOf(e.Correction.Before), Valid: true}
			after = sql.NullFloat64{Float64: meanOf(e.Correction.Achieved), Valid: true}
		}
		_, err = tx.Exec(`
			INSERT INTO conditions (run_id, phase, contrast_point, scene_name, width_m, fov_deg, max_rel_deviation, contrast_before, contrast_after)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			agg.RunID, e.Condition.Phase, e.Condition.Contrast, e.Scene.Name,
			e.Scene.WidthMeters, e.Scene.FOVDegrees, e.MaxRelativeDeviation, before, after)
		if err != nil {
			return fmt.Errorf("runlog: recording condition (%s): %w", e.Condition, err)
		}
	}

	return tx.Commit()
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID           string
	Phases          int
	ContrastPoints  int
	ReceptorVariant string
	Corrected       bool
	Committed       int
}

// Runs lists recorded runs, newest first.
func (l *Log) Runs() ([]RunSummary, error) {
	rows, err := l.db.Query(`
		SELECT run_id, phases, contrast_points, receptor_variant, corrected, committed
		FROM runs ORDER BY timestamp DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("runlog: querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var corrected int
		if err := rows.Scan(&r.RunID, &r.Phases, &r.ContrastPoints, &r.ReceptorVariant, &corrected, &r.Committed); err != nil {
			return nil, fmt.Errorf("runlog: scanning run row: %w", err)
		}
		r.Corrected = corrected != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// ConditionRow is one row of the conditions table.
type ConditionRow struct {
	Phase                int
	ContrastPoint        int
	SceneName            string
	WidthMeters          float64
	FOVDegrees           float64
	MaxRelativeDeviation float64
	ContrastBefore       sql.NullFloat64
	ContrastAfter        sql.NullFloat64
}

// Conditions lists the condition rows of one run in row-major order.
func (l *Log) Conditions(runID string) ([]ConditionRow, error) {
	rows, err := l.db.Query(`
		SELECT phase, contrast_point, scene_name, width_m, fov_deg, max_rel_deviation, contrast_before, contrast_after
		FROM conditions WHERE run_id = ? ORDER BY phase, contrast_point`, runID)
	if err != nil {
		return nil, fmt.Errorf("runlog: querying conditions for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []ConditionRow
	for rows.Next() {
		var c ConditionRow
		if err := rows.Scan(&c.Phase, &c.ContrastPoint, &c.SceneName, &c.WidthMeters,
			&c.FOVDegrees, &c.MaxRelativeDeviation, &c.ContrastBefore, &c.ContrastAfter); err != nil {
			return nil, fmt.Errorf("runlog: scanning condition row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}
