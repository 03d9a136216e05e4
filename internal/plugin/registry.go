package plugin

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/courseforge/courseforge/internal/errors"
)

// Filter selects installed plugins. Zero-valued fields are not matched on.
type Filter struct {
	ID   string
	Name string
	Kind string
}

// Registry is the plugin registry surface. Find reports installed plugins;
// Available reports plugins that could be installed from the source
// directory; Install and Uninstall mutate the installed set.
type Registry interface {
	Find(ctx context.Context, f Filter) ([]*Descriptor, error)
	Available(ctx context.Context, name string) (*Descriptor, error)
	Install(ctx context.Context, names []string) ([]*Descriptor, error)
	Uninstall(ctx context.Context, id string) error
	// SourcePath returns the source directory of an installable plugin.
	SourcePath(name string) string
}

// LocalRegistry keeps the installed set in sqlite and installs from a local
// source directory holding one subdirectory per plugin, each with a
// plugin.json (or legacy bower.json) manifest.
type LocalRegistry struct {
	db        *sql.DB
	sourceDir string
	mu        sync.Mutex
}

// NewLocalRegistry opens the registry. dbPath may be ":memory:" in tests.
func NewLocalRegistry(dbPath, sourceDir string) (*LocalRegistry, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open plugin database: %w", err)
	}
	r := &LocalRegistry{db: db, sourceDir: sourceDir}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS plugins (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		descriptor TEXT NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize plugin schema: %w", err)
	}
	return r, nil
}

// Find returns installed plugins matching the filter, ordered by name.
func (r *LocalRegistry) Find(ctx context.Context, f Filter) ([]*Descriptor, error) {
	query := "SELECT descriptor FROM plugins WHERE 1=1"
	var args []any
	if f.ID != "" {
		query += " AND id = ?"
		args = append(args, f.ID)
	}
	if f.Name != "" {
		query += " AND name = ?"
		args = append(args, f.Name)
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, f.Kind)
	}
	query += " ORDER BY name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "query installed plugins")
	}
	defer rows.Close()

	var out []*Descriptor
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, errors.KindIO, "scan plugin row")
		}
		var d Descriptor
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, errors.Wrap(err, errors.KindIO, "decode plugin descriptor")
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Available loads the manifest of an installable plugin from the source
// directory, or nil when no such plugin exists there.
func (r *LocalRegistry) Available(_ context.Context, name string) (*Descriptor, error) {
	dir := r.SourcePath(name)
	for _, manifest := range []string{"plugin.json", "bower.json"} {
		data, err := os.ReadFile(filepath.Join(dir, manifest))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.IOError("read plugin manifest", err)
		}
		d, err := ParseManifest(data)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "invalid plugin manifest").
				WithContext("plugin", name)
		}
		return d, nil
	}
	return nil, nil
}

// Install registers the named plugins from the source directory. Names are
// processed in sorted order so repeated installs behave identically. Already
// installed plugins are re-registered at the source version (an update).
func (r *LocalRegistry) Install(ctx context.Context, names []string) ([]*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := append([]string{}, names...)
	sort.Strings(sorted)

	var installed []*Descriptor
	for _, name := range sorted {
		d, err := r.Available(ctx, name)
		if err != nil {
			return installed, err
		}
		if d == nil {
			return installed, errors.MissingDependency(name, "install request")
		}
		d.ID = uuid.NewString()
		raw, err := json.Marshal(d)
		if err != nil {
			return installed, errors.Wrap(err, errors.KindIO, "encode plugin descriptor")
		}
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO plugins (id, name, kind, descriptor) VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET id = excluded.id, kind = excluded.kind, descriptor = excluded.descriptor`,
			d.ID, d.Name, d.Kind, raw); err != nil {
			return installed, errors.Wrap(err, errors.KindIO, "register plugin").
				WithContext("plugin", name)
		}
		installed = append(installed, d)
	}
	return installed, nil
}

// Uninstall removes one installed plugin by id.
func (r *LocalRegistry) Uninstall(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, "DELETE FROM plugins WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, errors.KindIO, "uninstall plugin")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("plugin", id)
	}
	return nil
}

// SourcePath returns the source directory of an installable plugin.
func (r *LocalRegistry) SourcePath(name string) string {
	return filepath.Join(r.sourceDir, name)
}

// Close releases the database handle.
func (r *LocalRegistry) Close() error { return r.db.Close() }
