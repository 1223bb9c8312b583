// Package catalog keeps a sqlite index of recorded runs and their snapshot files.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Run describes one recording session.
type Run struct {
	ID            string
	StartedAt     time.Time
	EndedAt       time.Time
	MasterPort    string
	FollowerPort  string
	SnapshotDir   string
	ImageDir      string
	ControlSource string
	Records       int
	Written       int
	Failed        int
	Frames        int
	StopReason    string
}

// Snapshot is one drained record file.
type Snapshot struct {
	RunID      string
	Index      int
	Path       string
	HasControl bool
	Error      string
}

// Catalog is an open run catalog.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: runs and snapshots
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id             TEXT PRIMARY KEY,
		  started_at     INTEGER NOT NULL,
		  ended_at       INTEGER NOT NULL,
		  master_port    TEXT NOT NULL,
		  follower_port  TEXT NOT NULL,
		  snapshot_dir   TEXT NOT NULL,
		  image_dir      TEXT,
		  control_source TEXT NOT NULL,
		  records        INTEGER NOT NULL,
		  written        INTEGER NOT NULL,
		  failed         INTEGER NOT NULL,
		  frames         INTEGER NOT NULL,
		  stop_reason    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

		CREATE TABLE IF NOT EXISTS snapshots (
		  run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		  idx         INTEGER NOT NULL,
		  path        TEXT NOT NULL,
		  has_control INTEGER NOT NULL,
		  error       TEXT,
		  PRIMARY KEY (run_id, idx)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// RecordRun stores a run and its snapshots in one transaction.
func (c *Catalog) RecordRun(ctx context.Context, run Run, snapshots []Snapshot) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, ended_at, master_port, follower_port, snapshot_dir,
		  image_dir, control_source, records, written, failed, frames, stop_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.EndedAt.UnixMilli(), run.MasterPort, run.FollowerPort,
		run.SnapshotDir, nullString(run.ImageDir), run.ControlSource, run.Records, run.Written,
		run.Failed, run.Frames, nullString(run.StopReason))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshots (run_id, idx, path, has_control, error) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		if _, err := stmt.ExecContext(ctx, run.ID, s.Index, s.Path, s.HasControl, nullString(s.Error)); err != nil {
			return fmt.Errorf("insert snapshot %d: %w", s.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Runs returns the most recent runs first. limit <= 0 returns all.
func (c *Catalog) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, ended_at, master_port, follower_port, snapshot_dir, image_dir,
		  control_source, records, written, failed, frames, stop_reason
		FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, ended int64
		var imageDir, stopReason sql.NullString
		if err := rows.Scan(&r.ID, &started, &ended, &r.MasterPort, &r.FollowerPort, &r.SnapshotDir,
			&imageDir, &r.ControlSource, &r.Records, &r.Written, &r.Failed, &r.Frames, &stopReason); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.EndedAt = time.UnixMilli(ended)
		r.ImageDir = imageDir.String
		r.StopReason = stopReason.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Snapshots returns a run's snapshot rows in index order.
func (c *Catalog) Snapshots(ctx context.Context, runID string) ([]Snapshot, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT run_id, idx, path, has_control, error FROM snapshots WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var s Snapshot
		var errText sql.NullString
		if err := rows.Scan(&s.RunID, &s.Index, &s.Path, &s.HasControl, &errText); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Error = errText.String
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
