// Package journal persists smoke-test run results in a SQLite database so
// runs can be compared over time.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brettbedarf/entryfs/internal/util"
)

// ErrRunNotFound is returned by [Journal.Get] for an unknown run ID
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded harness run
type Run struct {
	ID        string
	RootURL   string
	StartedAt time.Time
	Duration  time.Duration
	OK        bool
	Error     string // first main-chain failure, empty on success
	Steps     []Step
}

// Step is the outcome of one step of a run, from any chain
type Step struct {
	Chain    string
	Seq      int
	Name     string
	OK       bool
	Error    string
	Duration time.Duration
}

// Journal records runs in a SQLite database
type Journal struct {
	db *sql.DB
}

// Open opens or creates the database at path and initializes the schema
func Open(ctx context.Context, path string) (*Journal, error) {
	dsn := path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite doesn't support multiple writers well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	logger := util.GetLogger("Journal.Open")
	logger.Debug().Str("path", path).Msg("Opened journal")
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		root_url    TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		ok          INTEGER NOT NULL,
		error       TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS steps (
		run_id      TEXT NOT NULL,
		chain       TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		name        TEXT NOT NULL,
		ok          INTEGER NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		duration_ns INTEGER NOT NULL,
		PRIMARY KEY (run_id, chain, seq),
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := j.db.ExecContext(ctx, schema)
	return err
}

// Record stores run and its steps in a single transaction
func (j *Journal) Record(ctx context.Context, run Run) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, root_url, started_at, duration_ns, ok, error) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.RootURL, run.StartedAt.UnixNano(), int64(run.Duration), boolInt(run.OK), run.Error)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO steps (run_id, chain, seq, name, ok, error, duration_ns) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare step insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range run.Steps {
		if _, err := stmt.ExecContext(ctx, run.ID, s.Chain, s.Seq, s.Name, boolInt(s.OK), s.Error, int64(s.Duration)); err != nil {
			return fmt.Errorf("failed to insert step %s/%d: %w", s.Chain, s.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	logger := util.GetLogger("Journal.Record")
	logger.Debug().Str("run", run.ID).Int("steps", len(run.Steps)).Msg("Recorded run")
	return nil
}

// Recent returns up to limit runs, newest first, with their steps
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, root_url, started_at, duration_ns, ok, error FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		if runs[i].Steps, err = j.steps(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Get returns the run with the given ID
func (j *Journal) Get(ctx context.Context, id string) (Run, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT run_id, root_url, started_at, duration_ns, ok, error FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	run.Steps, err = j.steps(ctx, id)
	return run, err
}

func (j *Journal) steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT chain, seq, name, ok, error, duration_ns FROM steps WHERE run_id = ? ORDER BY chain, seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps of %s: %w", runID, err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var s Step
		var ok, dur int64
		if err := rows.Scan(&s.Chain, &s.Seq, &s.Name, &ok, &s.Error, &dur); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		s.OK = ok != 0
		s.Duration = time.Duration(dur)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var started, dur, ok int64
	if err := sc.Scan(&run.ID, &run.RootURL, &started, &dur, &ok, &run.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = time.Unix(0, started)
	run.Duration = time.Duration(dur)
	run.OK = ok != 0
	return run, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
