package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/courseforge/courseforge/internal/errors"
)

// SQLiteStore implements Store using SQLite. Documents are stored as JSON with
// the structural fields mirrored into indexed columns for filtering.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the content database at dbPath.
// Use ":memory:" for an in-memory database in tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open content database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize content schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS content_items (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		item_type TEXT NOT NULL,
		sort_order INTEGER,
		doc BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_content_course ON content_items(course_id);
	CREATE INDEX IF NOT EXISTS idx_content_parent ON content_items(parent_id);
	CREATE INDEX IF NOT EXISTS idx_content_type ON content_items(item_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (f Filter) clauses() (string, []any) {
	var where []string
	var args []any
	if f.ID != "" {
		where = append(where, "id = ?")
		args = append(args, f.ID)
	}
	if f.CourseID != "" {
		where = append(where, "course_id = ?")
		args = append(args, f.CourseID)
	}
	if f.ParentID != "" {
		where = append(where, "parent_id = ?")
		args = append(args, f.ParentID)
	}
	if f.Type != "" {
		where = append(where, "item_type = ?")
		args = append(args, string(f.Type))
	}
	if len(where) == 0 {
		return "1=1", nil
	}
	return strings.Join(where, " AND "), args
}

// Find returns all items matching the filter.
func (s *SQLiteStore) Find(ctx context.Context, f Filter) ([]*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.clauses()
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc FROM content_items WHERE "+where+" ORDER BY sort_order IS NULL, sort_order, id", args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "query content items")
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, errors.KindIO, "scan content item")
		}
		it := &Item{}
		if err := json.Unmarshal(doc, it); err != nil {
			return nil, errors.Wrap(err, errors.KindIO, "decode content item")
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Insert commits one item. Unless opts.KeepID is set a new uuid becomes the
// store id; the item is returned with the id filled in.
func (s *SQLiteStore) Insert(ctx context.Context, item *Item, opts InsertOptions) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !IsValidType(item.Type) {
		return nil, errors.ValidationError(item.ID, string(item.Type), "unknown content type")
	}
	stored := item.Clone()
	if !opts.KeepID || stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	// A course document is its own course scope.
	if stored.Type == TypeCourse && stored.CourseID == "" {
		stored.CourseID = stored.ID
	}
	doc, err := json.Marshal(stored)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "encode content item")
	}
	var sortOrder any
	if stored.SortOrder != nil {
		sortOrder = *stored.SortOrder
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO content_items (id, course_id, parent_id, item_type, sort_order, doc) VALUES (?, ?, ?, ?, ?, ?)",
		stored.ID, stored.CourseID, stored.ParentID, string(stored.Type), sortOrder, doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "insert content item").WithContext("item_id", stored.ID)
	}
	return stored, nil
}

// Update merges patch over every matched item.
func (s *SQLiteStore) Update(ctx context.Context, f Filter, patch Patch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	where, args := f.clauses()
	rows, err := s.db.QueryContext(ctx, "SELECT id, doc FROM content_items WHERE "+where, args...)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindIO, "query content items for update")
	}
	type pending struct {
		id  string
		doc []byte
	}
	var updates []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.doc); err != nil {
			rows.Close()
			return 0, errors.Wrap(err, errors.KindIO, "scan content item")
		}
		updates = append(updates, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(err, errors.KindIO, "iterate content items")
	}

	count := 0
	for _, p := range updates {
		it := &Item{}
		if err := json.Unmarshal(p.doc, it); err != nil {
			return count, errors.Wrap(err, errors.KindIO, "decode content item")
		}
		applyPatch(it, patch)
		doc, err := json.Marshal(it)
		if err != nil {
			return count, errors.Wrap(err, errors.KindIO, "encode content item")
		}
		var sortOrder any
		if it.SortOrder != nil {
			sortOrder = *it.SortOrder
		}
		if _, err := s.db.ExecContext(ctx,
			"UPDATE content_items SET course_id = ?, parent_id = ?, item_type = ?, sort_order = ?, doc = ? WHERE id = ?",
			it.CourseID, it.ParentID, string(it.Type), sortOrder, doc, p.id); err != nil {
			return count, errors.Wrap(err, errors.KindIO, "update content item").WithContext("item_id", p.id)
		}
		count++
	}
	return count, nil
}

// DeleteMany removes every matched item.
func (s *SQLiteStore) DeleteMany(ctx context.Context, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	where, args := f.clauses()
	res, err := s.db.ExecContext(ctx, "DELETE FROM content_items WHERE "+where, args...)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindIO, "delete content items")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func applyPatch(it *Item, patch Patch) {
	for k, v := range patch {
		switch k {
		case keyParentID:
			it.ParentID, _ = v.(string)
		case keyCourseID:
			it.CourseID, _ = v.(string)
		case keyComponent:
			it.Component, _ = v.(string)
		case keyLocalID:
			it.LocalID, _ = v.(string)
		case keySortOrder:
			switch n := v.(type) {
			case int:
				it.SortOrder = &n
			case float64:
				o := int(n)
				it.SortOrder = &o
			}
		case keyID, keyType:
			// immutable once committed
		default:
			it.SetProp(k, v)
		}
	}
}
