package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `CREATE TABLE IF NOT EXISTS case_results (
	case_name   TEXT PRIMARY KEY,
	dice        REAL NOT NULL,
	volume_a    REAL NOT NULL,
	volume_b    REAL NOT NULL,
	overlap     INTEGER NOT NULL,
	only_a      INTEGER NOT NULL,
	only_b      INTEGER NOT NULL,
	aligned     INTEGER NOT NULL,
	align_window TEXT NOT NULL,
	corrections BLOB NOT NULL,
	error       TEXT NOT NULL,
	recorded_at TEXT NOT NULL
)`

const columns = `case_name, dice, volume_a, volume_b, overlap, only_a, only_b, aligned, align_window, corrections, error, recorded_at`

// SQLite stores results in a single table of a SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "results.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Record(ctx context.Context, r CaseResult) (retErr error) {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	corrections, err := json.Marshal(r.Corrections)
	if err != nil {
		return fmt.Errorf("encode corrections: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	_, err = tx.ExecContext(ctx, `INSERT INTO case_results(`+columns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(case_name) DO UPDATE SET
			dice=excluded.dice, volume_a=excluded.volume_a, volume_b=excluded.volume_b,
			overlap=excluded.overlap, only_a=excluded.only_a, only_b=excluded.only_b,
			aligned=excluded.aligned, align_window=excluded.align_window, corrections=excluded.corrections,
			error=excluded.error, recorded_at=excluded.recorded_at`,
		r.Case, r.Dice, r.VolumeA, r.VolumeB, r.Overlap, r.OnlyA, r.OnlyB,
		boolToInt(r.Aligned), r.Window, corrections, r.Error, r.RecordedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", r.Case, err)
	}
	return tx.Commit()
}

func (s *SQLite) Get(ctx context.Context, name string) (CaseResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM case_results WHERE case_name = ?`, name)
	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CaseResult{}, ErrNotFound
	}
	return r, err
}

// List returns every result ordered by case name.
func (s *SQLite) List(ctx context.Context) ([]CaseResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM case_results ORDER BY case_name`)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CaseResult
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (CaseResult, error) {
	var (
		r           CaseResult
		aligned     int
		corrections []byte
		recordedAt  string
	)
	err := row.Scan(&r.Case, &r.Dice, &r.VolumeA, &r.VolumeB, &r.Overlap, &r.OnlyA, &r.OnlyB,
		&aligned, &r.Window, &corrections, &r.Error, &recordedAt)
	if err != nil {
		return CaseResult{}, err
	}
	r.Aligned = aligned != 0
	if err := json.Unmarshal(corrections, &r.Corrections); err != nil {
		return CaseResult{}, fmt.Errorf("decode corrections for %s: %w", r.Case, err)
	}
	if r.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
		return CaseResult{}, fmt.Errorf("decode timestamp for %s: %w", r.Case, err)
	}
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
