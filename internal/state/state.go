// File: internal/state/state.go
// Brief: SQLite-backed history of sync runs per project.

// Package state records every sync pass a project has run, so status
// and troubleshooting can look at what actually happened instead of
// only what the manifest says now.
package state

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/example/hsm/internal/resolve"
	_ "modernc.org/sqlite"
)

const stateRelPath = ".hsm/state.sqlite"

// Run statuses stored in the history table.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one recorded sync pass.
type Run struct {
	ID         string
	Mode       string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Libraries  int
	Services   int
	Error      string
}

// PlanSnapshot is the JSON shape persisted alongside a run.
type PlanSnapshot struct {
	Libraries []SnapshotEntry `json:"libraries"`
	Services  []SnapshotEntry `json:"services"`
}

// SnapshotEntry is one component of a persisted plan.
type SnapshotEntry struct {
	Name     string `json:"name"`
	Mode     string `json:"mode"`
	Source   string `json:"source"`
	Profile  string `json:"profile,omitempty"`
	External bool   `json:"external,omitempty"`
}

// Store is the per-project run history. A single connection is kept
// open; sqlite serializes writers anyway.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the project's state database under
// .hsm/state.sqlite. readOnly variants refuse to create the file.
func Open(root string, readOnly bool) (*Store, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(absRoot, stateRelPath)
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := path
	if readOnly {
		u := url.URL{Scheme: "file", Path: path}
		q := u.Query()
		q.Set("mode", "ro")
		q.Set("_busy_timeout", "5000")
		u.RawQuery = q.Encode()
		dsn = u.String()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, path: path}
	if !readOnly {
		if err := s.initSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS hsm_sync_runs (
  run_id TEXT PRIMARY KEY,
  mode TEXT NOT NULL,
  status TEXT NOT NULL,
  started_at_ns INTEGER NOT NULL,
  finished_at_ns INTEGER NOT NULL,
  libraries INTEGER NOT NULL,
  services INTEGER NOT NULL,
  plan_json TEXT NOT NULL,
  error TEXT NOT NULL
);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// BeginRun records the start of a sync pass against the given plan and
// returns the new run's id.
func (s *Store) BeginRun(ctx context.Context, mode string, plan *resolve.Plan) (string, error) {
	snapshot := snapshotPlan(plan)
	planJSON, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	id := newRunID()
	now := time.Now().UTC().UnixNano()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO hsm_sync_runs (run_id, mode, status, started_at_ns, finished_at_ns, libraries, services, plan_json, error)
VALUES (?, ?, ?, ?, 0, ?, ?, ?, '')
`, id, mode, StatusRunning, now, len(snapshot.Libraries), len(snapshot.Services), string(planJSON))
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun closes a run with its terminal status. runErr may be nil.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	status := StatusSucceeded
	msg := ""
	if runErr != nil {
		status = StatusFailed
		msg = runErr.Error()
	}
	now := time.Now().UTC().UnixNano()
	_, err := s.db.ExecContext(ctx, `
UPDATE hsm_sync_runs SET status = ?, finished_at_ns = ?, error = ? WHERE run_id = ?
`, status, now, msg, runID)
	return err
}

// LatestRun returns the most recent run, or sql.ErrNoRows when the
// project has never synced.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT run_id, mode, status, started_at_ns, finished_at_ns, libraries, services, error
FROM hsm_sync_runs ORDER BY started_at_ns DESC LIMIT 1
`)
	return scanRun(row)
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, mode, status, started_at_ns, finished_at_ns, libraries, services, error
FROM hsm_sync_runs ORDER BY started_at_ns DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// RunPlan returns the plan snapshot persisted with a run.
func (s *Store) RunPlan(ctx context.Context, runID string) (*PlanSnapshot, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT plan_json FROM hsm_sync_runs WHERE run_id = ?`, runID).Scan(&raw); err != nil {
		return nil, err
	}
	var snap PlanSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedNS, finishNS int64
	if err := row.Scan(&run.ID, &run.Mode, &run.Status, &startedNS, &finishNS, &run.Libraries, &run.Services, &run.Error); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedNS).UTC()
	if finishNS > 0 {
		run.FinishedAt = time.Unix(0, finishNS).UTC()
	}
	return &run, nil
}

func snapshotPlan(plan *resolve.Plan) PlanSnapshot {
	snap := PlanSnapshot{}
	for _, c := range plan.Libraries {
		snap.Libraries = append(snap.Libraries, SnapshotEntry{
			Name:   c.Name,
			Mode:   string(c.Mode),
			Source: c.Source.Type,
		})
	}
	for _, c := range plan.Services {
		snap.Services = append(snap.Services, SnapshotEntry{
			Name:     c.Name,
			Mode:     string(c.Mode),
			Source:   c.Source.Type,
			Profile:  c.Profile,
			External: c.External,
		})
	}
	return snap
}

func newRunID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return time.Now().UTC().Format("20060102-150405") + "-" + hex.EncodeToString(buf)
}
