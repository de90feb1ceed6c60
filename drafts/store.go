package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"character_asset_compiler/generator"

	_ "modernc.org/sqlite"
)

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no run is stored under an ID.
var ErrNotFound = errors.New("run not found")

// Record is a stored run, finished or not.
type Record struct {
	ID         string            `json:"id"`
	Seed       string            `json:"seed"`
	Mode       generator.Mode    `json:"mode"`
	State      generator.State   `json:"state"`
	FailedAt   int               `json:"failed_at"`
	Slug       string            `json:"slug"`
	Note       string            `json:"note,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorClass string            `json:"error_class,omitempty"`
	Assets     []generator.Asset `json:"assets"`
	History    []generator.Turn  `json:"history,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// FromSession snapshots a session's current run.
func FromSession(s *generator.Session) Record {
	run, history := s.Snapshot()
	rec := Record{
		ID:       s.ID,
		Seed:     s.Seed,
		Mode:     s.Mode,
		FailedAt: -1,
		Slug:     generator.FallbackSlug,
		History:  history,
	}
	if run != nil {
		rec.State = run.State
		rec.FailedAt = run.FailedAt()
		rec.Slug = run.Slug
		rec.Note = run.Note
		rec.Assets = run.Assets.Assets()
		if run.Err != nil {
			rec.Error = run.Err.Error()
			rec.ErrorClass = generator.ErrorClass(run.Err)
		}
	}
	return rec
}

// Run rebuilds the run the record was taken from. The original error is
// reduced to its message.
func (r Record) Run() (*generator.Run, error) {
	assets, err := generator.AssetMapFrom(r.Assets)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", r.ID, err)
	}
	run := &generator.Run{
		Seed:   r.Seed,
		Mode:   r.Mode,
		State:  r.State,
		Step:   assets.Len(),
		Assets: assets,
		Slug:   r.Slug,
		Note:   r.Note,
	}
	if r.FailedAt >= 0 {
		run.Step = r.FailedAt
	}
	if r.Error != "" {
		run.Err = errors.New(r.Error)
	}
	return run, nil
}

// Store persists runs in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure database: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			seed         TEXT NOT NULL,
			mode         TEXT NOT NULL,
			state        TEXT NOT NULL,
			failed_at    INTEGER NOT NULL DEFAULT -1,
			slug         TEXT NOT NULL,
			note         TEXT,
			error        TEXT,
			error_class  TEXT,
			history      TEXT,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS run_assets (
			run_id    TEXT NOT NULL,
			position  INTEGER NOT NULL,
			kind      TEXT NOT NULL,
			text      TEXT NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_runs_updated ON runs(updated_at);
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces rec and its assets.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	history, err := json.Marshal(rec.History)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, seed, mode, state, failed_at, slug, note, error, error_class, history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seed = excluded.seed,
			mode = excluded.mode,
			state = excluded.state,
			failed_at = excluded.failed_at,
			slug = excluded.slug,
			note = excluded.note,
			error = excluded.error,
			error_class = excluded.error_class,
			history = excluded.history,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Seed, string(rec.Mode), rec.State.String(), rec.FailedAt, rec.Slug,
		rec.Note, rec.Error, rec.ErrorClass, string(history),
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_assets WHERE run_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	for i, a := range rec.Assets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_assets (run_id, position, kind, text) VALUES (?, ?, ?, ?)
		`, rec.ID, i, string(a.Kind), a.Text)
		if err != nil {
			return fmt.Errorf("save run %s asset %s: %w", rec.ID, a.Kind, err)
		}
	}
	return tx.Commit()
}

// Get loads one run with its assets.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, seed, mode, state, failed_at, slug, note, error, error_class, history, created_at, updated_at
		FROM runs WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Assets, err = s.assets(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns every run, most recently updated first. Assets are not
// loaded.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seed, mode, state, failed_at, slug, note, error, error_class, history, created_at, updated_at
		FROM runs ORDER BY updated_at DESC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Delete removes a run and its assets.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_assets WHERE run_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) assets(ctx context.Context, id string) ([]generator.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, text FROM run_assets WHERE run_id = ? ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generator.Asset
	for rows.Next() {
		var kind, text string
		if err := rows.Scan(&kind, &text); err != nil {
			return nil, err
		}
		out = append(out, generator.Asset{Kind: generator.Kind(kind), Text: text})
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec                          Record
		mode, state                  string
		note, errMsg, errClass, hist sql.NullString
		createdAt, updatedAt         string
	)
	err := row.Scan(&rec.ID, &rec.Seed, &mode, &state, &rec.FailedAt, &rec.Slug,
		&note, &errMsg, &errClass, &hist, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.Mode = generator.Mode(mode)
	rec.State = generator.ParseState(state)
	rec.Note = note.String
	rec.Error = errMsg.String
	rec.ErrorClass = errClass.String
	if hist.Valid && hist.String != "" {
		if err := json.Unmarshal([]byte(hist.String), &rec.History); err != nil {
			return nil, fmt.Errorf("run %s: decoding history: %w", rec.ID, err)
		}
	}
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(timeLayout, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}
