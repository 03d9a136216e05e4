// Package assets stores course media files: bytes on disk under a content
// root, metadata rows in sqlite, addressed by store-generated id.
package assets

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/courseforge/courseforge/internal/errors"
)

// Descriptor is the metadata carried by one stored asset.
type Descriptor struct {
	ID          string   `json:"id"`
	Filename    string   `json:"filename"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	MimeType    string   `json:"mimeType,omitempty"`
}

// Store is the asset store surface the orchestrators depend on.
type Store interface {
	// Insert stores the bytes and metadata, returning the descriptor with its
	// generated id set.
	Insert(ctx context.Context, meta Descriptor, r io.Reader) (*Descriptor, error)
	// Get returns the descriptor for an id.
	Get(ctx context.Context, id string) (*Descriptor, error)
	// PathFor resolves an id to the backing file path.
	PathFor(ctx context.Context, id string) (string, error)
	// Delete removes the metadata row and the backing file.
	Delete(ctx context.Context, id string) error
	Close() error
}

// FSStore implements Store with files under rootDir and metadata in sqlite.
type FSStore struct {
	rootDir string
	db      *sql.DB
	mu      sync.Mutex
}

// NewFSStore opens the asset store. rootDir is created if missing; dbPath may
// be ":memory:" in tests.
func NewFSStore(rootDir, dbPath string) (*FSStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open asset database: %w", err)
	}
	s := &FSStore{rootDir: rootDir, db: db}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		meta TEXT NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize asset schema: %w", err)
	}
	return s, nil
}

// Insert stores the bytes and metadata. Title defaults to the filename stem
// and the mime type is inferred from the extension when absent.
func (s *FSStore) Insert(ctx context.Context, meta Descriptor, r io.Reader) (*Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meta.Filename == "" {
		return nil, errors.New(errors.KindValidation, "asset filename must not be empty")
	}
	stored := meta
	stored.ID = uuid.NewString()
	if stored.Title == "" {
		stored.Title = strings.TrimSuffix(filepath.Base(stored.Filename), filepath.Ext(stored.Filename))
	}
	if stored.MimeType == "" {
		stored.MimeType = mime.TypeByExtension(filepath.Ext(stored.Filename))
	}

	path := s.path(stored.ID, stored.Filename)
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.IOError("create asset file", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(path)
		return nil, errors.IOError("write asset file", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, errors.IOError("close asset file", err)
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, errors.KindIO, "encode asset metadata")
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO assets (id, filename, meta) VALUES (?, ?, ?)",
		stored.ID, stored.Filename, string(raw)); err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, errors.KindIO, "insert asset metadata")
	}
	return &stored, nil
}

// Get returns the descriptor for an id.
func (s *FSStore) Get(ctx context.Context, id string) (*Descriptor, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT meta FROM assets WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("asset", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "query asset metadata")
	}
	var d Descriptor
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "decode asset metadata")
	}
	return &d, nil
}

// PathFor resolves an id to the backing file path.
func (s *FSStore) PathFor(ctx context.Context, id string) (string, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.path(d.ID, d.Filename), nil
}

// Delete removes the metadata row and the backing file.
func (s *FSStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id); err != nil {
		return errors.Wrap(err, errors.KindIO, "delete asset metadata")
	}
	if err := os.Remove(s.path(d.ID, d.Filename)); err != nil && !os.IsNotExist(err) {
		return errors.IOError("remove asset file", err)
	}
	return nil
}

// Close releases the database handle.
func (s *FSStore) Close() error { return s.db.Close() }

func (s *FSStore) path(id, filename string) string {
	// id prefix keeps distinct uploads of the same filename apart
	return filepath.Join(s.rootDir, id+"_"+filepath.Base(filename))
}
