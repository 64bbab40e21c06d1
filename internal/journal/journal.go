// Package journal keeps a SQLite log of every sidecar save, so a review
// session can be audited after the fact.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Entry is one saved sidecar
type Entry struct {
	ID        int64
	ImagePath string
	Sidecar   string
	Boxes     int
	Unknown   int
	Algorithm string
	SavedAt   time.Time
}

// Journal is an append-only save log
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens or creates the journal database at path
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; the CLI never shares a journal between goroutines
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS saves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		image_path TEXT NOT NULL,
		sidecar TEXT NOT NULL,
		boxes INTEGER NOT NULL,
		unknown INTEGER NOT NULL,
		algorithm TEXT NOT NULL DEFAULT '',
		saved_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create saves table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS saves_image ON saves(image_path)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create saves index: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// Path returns the database file
func (j *Journal) Path() string { return j.path }

// Close releases the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an entry and returns its id. A zero SavedAt is set to now.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now()
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO saves (image_path, sidecar, boxes, unknown, algorithm, saved_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ImagePath, e.Sidecar, e.Boxes, e.Unknown, e.Algorithm, e.SavedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert save: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert save: %w", err)
	}
	return id, nil
}

// List returns the newest entries first. limit <= 0 returns everything.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, image_path, sidecar, boxes, unknown, algorithm, saved_at FROM saves ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return j.query(ctx, query, args...)
}

// ForImage returns the saves of one image, oldest first
func (j *Journal) ForImage(ctx context.Context, imagePath string) ([]Entry, error) {
	return j.query(ctx,
		`SELECT id, image_path, sidecar, boxes, unknown, algorithm, saved_at FROM saves WHERE image_path = ? ORDER BY id`,
		imagePath,
	)
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select saves: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		var savedAt string
		if err := rows.Scan(&e.ID, &e.ImagePath, &e.Sidecar, &e.Boxes, &e.Unknown, &e.Algorithm, &savedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if e.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
			return nil, fmt.Errorf("parse saved_at %q: %w", savedAt, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select saves: %w", err)
	}
	return out, nil
}
