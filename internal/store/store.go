package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/daryltucker/tau-eval/internal/report"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed width so that text order in SQLite is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	config_path    TEXT,
	started_at     TEXT NOT NULL,
	finished_at    TEXT NOT NULL,
	tasks          INTEGER NOT NULL,
	pairs          INTEGER NOT NULL,
	failed_pairs   INTEGER NOT NULL,
	failed_entries INTEGER NOT NULL,
	report_json    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pair_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	task_key    TEXT NOT NULL,
	model       TEXT NOT NULL,
	failed      INTEGER NOT NULL,
	record_json TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_pair_results_run ON pair_results(run_id);
`

// Run describes one stored experiment run.
type Run struct {
	ID            string
	ConfigPath    string
	StartedAt     time.Time
	FinishedAt    time.Time
	Tasks         int
	Pairs         int
	FailedPairs   int
	FailedEntries int
}

// Store keeps a history of runs in SQLite.
type Store struct {
	db *sql.DB
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Open opens a SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores the run row and one row per pair in a single transaction.
// The counters on run are derived from rep.
func (s *Store) SaveRun(ctx context.Context, run Run, rep *report.Report) (Run, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	run.Tasks = len(rep.TaskKeys())
	run.Pairs = rep.Pairs()
	run.FailedPairs, run.FailedEntries = rep.Failures()

	repJSON, err := json.Marshal(rep)
	if err != nil {
		return Run{}, fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, config_path, started_at, finished_at, tasks, pairs, failed_pairs, failed_entries, report_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ConfigPath,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.Tasks, run.Pairs, run.FailedPairs, run.FailedEntries, string(repJSON),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	for _, t := range rep.Tasks() {
		for _, m := range t.Models {
			recJSON, err := json.Marshal(m.Record)
			if err != nil {
				return Run{}, fmt.Errorf("marshal record %s/%s: %w", t.Key, m.Model, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO pair_results (run_id, task_key, model, failed, record_json) VALUES (?, ?, ?, ?, ?)`,
				run.ID, t.Key, m.Model, boolToInt(m.Record.Failed()), string(recJSON),
			)
			if err != nil {
				return Run{}, fmt.Errorf("insert pair %s/%s: %w", t.Key, m.Model, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT run_id, config_path, started_at, finished_at, tasks, pairs, failed_pairs, failed_entries
		  FROM runs ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// GetRun returns the summary row of one run.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, config_path, started_at, finished_at, tasks, pairs, failed_pairs, failed_entries
		 FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ReportJSON returns the stored report of a run exactly as it was serialized.
func (s *Store) ReportJSON(ctx context.Context, runID string) (json.RawMessage, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	return json.RawMessage(data), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run                 Run
		configPath          sql.NullString
		startedAt, finished string
	)
	if err := sc.Scan(&run.ID, &configPath, &startedAt, &finished,
		&run.Tasks, &run.Pairs, &run.FailedPairs, &run.FailedEntries); err != nil {
		return Run{}, err
	}
	run.ConfigPath = configPath.String

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Recorder adapts a Store to the engine's persister hook for a single run.
type Recorder struct {
	Store *Store
	Run   Run

	// Saved holds the stored row after Persist succeeds.
	Saved Run
}

func (r *Recorder) Persist(ctx context.Context, rep *report.Report) error {
	saved, err := r.Store.SaveRun(ctx, r.Run, rep)
	if err != nil {
		return err
	}
	r.Saved = saved
	return nil
}
