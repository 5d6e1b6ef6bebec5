// Package store keeps the history of instruction runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/supremehyo/appium-mcp-claude-android/internal/logging"
	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

const schemaSQL = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    request TEXT NOT NULL,
    device TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    turns INTEGER NOT NULL DEFAULT 0,
    actions TEXT NOT NULL DEFAULT '[]',
    ledger TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// Run is one recorded instruction run.
type Run struct {
	ID         string                `yaml:"id"               json:"id"`
	Request    string                `yaml:"request"          json:"request"`
	Device     string                `yaml:"device,omitempty" json:"device,omitempty"`
	StartedAt  time.Time             `yaml:"started_at"       json:"started_at"`
	FinishedAt time.Time             `yaml:"finished_at"      json:"finished_at"`
	Status     string                `yaml:"status"           json:"status"`
	Error      string                `yaml:"error,omitempty"  json:"error,omitempty"`
	Turns      int                   `yaml:"turns"            json:"turns"`
	Actions    []model.PlannedAction `yaml:"actions"          json:"actions"`
	Ledger     model.Ledger          `yaml:"ledger"           json:"ledger"`
}

// NewRun starts a run record with a fresh id.
func NewRun(request, device string) Run {
	return Run{ID: uuid.NewString(), Request: request, Device: device, StartedAt: time.Now()}
}

// Finish stamps the end time and the outcome.
func (r *Run) Finish(err error) {
	r.FinishedAt = time.Now()
	r.Status = StatusOK
	if err != nil {
		r.Status = StatusError
		r.Error = err.Error()
	}
}

// Store is the run history database.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	s := &Store{db: db, path: path, log: logging.For("store")}
	s.log.Debug().Str("path", path).Msg("run store opened")
	return s, nil
}

// Path is the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a finished run. A missing id is generated.
func (s *Store) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Actions == nil {
		run.Actions = []model.PlannedAction{}
	}
	if run.Ledger == nil {
		run.Ledger = model.Ledger{}
	}
	actions, err := json.Marshal(run.Actions)
	if err != nil {
		return "", fmt.Errorf("encode actions: %w", err)
	}
	ledger, err := json.Marshal(run.Ledger)
	if err != nil {
		return "", fmt.Errorf("encode ledger: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, request, device, started_at, finished_at, status, error, turns, actions, ledger)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Request, run.Device, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Status, run.Error, run.Turns, string(actions), string(ledger))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	s.log.Debug().Str("id", run.ID).Str("status", run.Status).Msg("run recorded")
	return run.ID, nil
}

const selectRun = `
	SELECT id, request, device, started_at, finished_at, status, error, turns, actions, ledger
	FROM runs
`

// Recent lists the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
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
	return runs, rows.Err()
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var started, finished int64
	var actions, ledger string
	err := row.Scan(&run.ID, &run.Request, &run.Device, &started, &finished,
		&run.Status, &run.Error, &run.Turns, &actions, &ledger)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.UnixMilli(started)
	run.FinishedAt = time.UnixMilli(finished)
	if err := json.Unmarshal([]byte(actions), &run.Actions); err != nil {
		return Run{}, fmt.Errorf("decode actions of %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(ledger), &run.Ledger); err != nil {
		return Run{}, fmt.Errorf("decode ledger of %s: %w", run.ID, err)
	}
	return run, nil
}
