// Package runstore persists generation runs and their state transitions
// in SQLite so the API can report run history across restarts.
package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxweave/voxweave/internal/config"
	"github.com/voxweave/voxweave/internal/protocol"
)

// Run is one recorded generation run.
type Run struct {
	ID              string
	OutputPrefix    string
	Status          string
	NumLines        int
	DurationSeconds float64
	OutputFile      string
	CreatedAt       time.Time
}

// Store wraps a SQLite-backed run history. With retention_mode
// ephemeral every method is a no-op, matching a diskless deployment.
type Store struct {
	db    *sql.DB
	cfg   config.RunStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the run store according to config.
func Open(ctx context.Context, cfg config.RunStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("run store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("run store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    output_prefix TEXT,
    status TEXT NOT NULL,
    num_lines INTEGER NOT NULL DEFAULT 0,
    duration_seconds REAL NOT NULL DEFAULT 0,
    output_file TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS run_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    line INTEGER,
    detail TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_run_events_run_created ON run_events(run_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateRun records a new run in the idle state.
func (s *Store) CreateRun(ctx context.Context, runID, outputPrefix string, numLines int) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, output_prefix, status, num_lines, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		runID, outputPrefix, protocol.StatusIdle, numLines, s.clock().UTC())
	return err
}

// FinishRun marks a run completed or errored and records its artifacts.
func (s *Store) FinishRun(ctx context.Context, runID, status, outputFile string, durationSeconds float64) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, output_file = ?, duration_seconds = ? WHERE run_id = ?`,
		status, outputFile, durationSeconds, runID)
	return err
}

// AppendEvent writes one state transition for a run.
func (s *Store) AppendEvent(ctx context.Context, evt protocol.RunEvent) error {
	if s.db == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_events(run_id, event_type, line, detail, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		evt.RunID, evt.Type, evt.Line, evt.Detail, evt.Timestamp)
	return err
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	if s.db == nil {
		return Run{}, sql.ErrNoRows
	}
	var r Run
	var created string
	var outputFile sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, output_prefix, status, num_lines, duration_seconds, output_file, created_at
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&r.ID, &r.OutputPrefix, &r.Status, &r.NumLines, &r.DurationSeconds, &outputFile, &created)
	if err != nil {
		return Run{}, err
	}
	r.OutputFile = outputFile.String
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		r.CreatedAt = ts
	}
	return r, nil
}

// ListRunEvents retrieves up to limit events for a run, oldest first.
func (s *Store) ListRunEvents(ctx context.Context, runID string, limit int) ([]protocol.RunEvent, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, event_type, line, detail, created_at
		 FROM run_events WHERE run_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []protocol.RunEvent
	for rows.Next() {
		var e protocol.RunEvent
		var line sql.NullInt64
		var detail sql.NullString
		var created string
		if err := rows.Scan(&e.RunID, &e.Type, &line, &detail, &created); err != nil {
			return nil, err
		}
		e.Line = int(line.Int64)
		e.Detail = detail.String
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.Timestamp = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies the configured retention policy.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRuns > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (
			SELECT run_id FROM runs ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRuns)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
