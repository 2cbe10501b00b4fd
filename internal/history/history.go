// Package history records extraction runs in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thywilljoshua/expose-generator/internal/ids"
)

// CurrentSchemaVersion is the latest schema version.
const CurrentSchemaVersion = 1

const fileName = "history.db"

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var ErrNotFound = errors.New("run not found")

// Run is one extraction attempt.
type Run struct {
	ID         string
	Session    string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     Status
	Stage      string
	Calls      int
	Images     int
	Model      string
	Error      string
}

// Duration is zero while the run is still in progress.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens dir/history.db and applies migrations.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dsn := filepath.Join(dir, fileName) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id          TEXT PRIMARY KEY,
		  session     TEXT,
		  started_at  INTEGER NOT NULL,
		  finished_at INTEGER,
		  status      TEXT NOT NULL,
		  stage       TEXT,
		  calls       INTEGER NOT NULL DEFAULT 0,
		  images      INTEGER NOT NULL DEFAULT 0,
		  model       TEXT,
		  error       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", 1)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}
	return nil
}

// Start inserts a running entry and returns its ID.
func (s *Store) Start(ctx context.Context, session, model string, images int) (string, error) {
	id := ids.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, session, started_at, status, images, model)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, nullString(session), s.now().UnixMilli(), StatusRunning, images, nullString(model))
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// Finish closes a run. A nil runErr marks it succeeded.
func (s *Store) Finish(ctx context.Context, id, stage string, calls int, runErr error) error {
	status, msg := StatusSucceeded, sql.NullString{}
	if runErr != nil {
		status, msg = StatusFailed, sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, stage = ?, calls = ?, error = ?
		WHERE id = ?`,
		s.now().UnixMilli(), status, nullString(stage), calls, msg, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectRun = `
	SELECT id, session, started_at, finished_at, status, stage, calls, images, model, error
	FROM runs`

func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+" WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// Recent lists the newest runs first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRun+" ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                     Run
		session, stage, model sql.NullString
		msg                   sql.NullString
		started               int64
		finished              sql.NullInt64
		status                string
	)
	if err := sc.Scan(&r.ID, &session, &started, &finished, &status, &stage, &r.Calls, &r.Images, &model, &msg); err != nil {
		return nil, err
	}
	r.Session, r.Stage, r.Model, r.Error = session.String, stage.String, model.String, msg.String
	r.Status = Status(status)
	r.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64)
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
