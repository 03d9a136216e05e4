// Package records persists build-attempt records: one row per completed build
// with its output location, expiry and plugin version table. A new record
// evicts the prior one for the same (action, creator) pair.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/courseforge/courseforge/internal/errors"
)

// Record is one persisted build attempt.
type Record struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	CourseID  string            `json:"courseId"`
	Location  string            `json:"location"` // archive path or preview directory
	ExpiresAt time.Time         `json:"expiresAt"`
	CreatedBy string            `json:"createdBy"`
	Versions  map[string]string `json:"versions"` // plugin name -> version used
}

// Store persists build-attempt records in sqlite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens the record store. dbPath may be ":memory:" in tests.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open record database: %w", err)
	}
	s := &Store{db: db}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS build_records (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		course_id TEXT NOT NULL,
		created_by TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		record TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_owner ON build_records(action, created_by);
	CREATE INDEX IF NOT EXISTS idx_records_expiry ON build_records(expires_at);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize record schema: %w", err)
	}
	return s, nil
}

// Save persists the record and evicts prior records for the same
// (action, creator) pair, returning the evicted records so the caller can
// remove their outputs.
func (s *Store) Save(ctx context.Context, rec *Record) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	evicted, err := s.list(ctx,
		"SELECT record FROM build_records WHERE action = ? AND created_by = ?",
		rec.Action, rec.CreatedBy)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "encode build record")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "begin record transaction")
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM build_records WHERE action = ? AND created_by = ?",
		rec.Action, rec.CreatedBy); err != nil {
		_ = tx.Rollback()
		return nil, errors.Wrap(err, errors.KindIO, "evict prior build records")
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO build_records (id, action, course_id, created_by, expires_at, record) VALUES (?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Action, rec.CourseID, rec.CreatedBy, rec.ExpiresAt.Unix(), raw); err != nil {
		_ = tx.Rollback()
		return nil, errors.Wrap(err, errors.KindIO, "insert build record")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "commit build record")
	}
	return evicted, nil
}

// Find returns records for a course, newest expiry first.
func (s *Store) Find(ctx context.Context, courseID string) ([]*Record, error) {
	return s.list(ctx,
		"SELECT record FROM build_records WHERE course_id = ? ORDER BY expires_at DESC", courseID)
}

// ListExpired returns every record whose expiry has passed.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*Record, error) {
	return s.list(ctx,
		"SELECT record FROM build_records WHERE expires_at < ?", now.Unix())
}

// Delete removes one record row. The caller owns output removal.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM build_records WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, errors.KindIO, "delete build record")
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "query build records")
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, errors.KindIO, "scan build record")
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, errors.Wrap(err, errors.KindIO, "decode build record")
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// RemoveOutput deletes a record's output location from disk, best effort.
func RemoveOutput(rec *Record) {
	if rec.Location == "" {
		return
	}
	_ = os.RemoveAll(rec.Location)
}
