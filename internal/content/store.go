package content

import "context"

// Filter selects content items. Zero-valued fields are not matched on.
type Filter struct {
	ID       string
	CourseID string
	ParentID string
	Type     Type
}

// Patch is a partial document merged over matched items on Update. Structural
// keys (the underscore-prefixed ones) may appear and update the typed fields.
type Patch map[string]any

// InsertOptions modify insert behavior.
type InsertOptions struct {
	// KeepID inserts the item under its existing id instead of generating one.
	KeepID bool
}

// Store is the content store surface the orchestrators depend on. The build
// orchestrator only reads; the import orchestrator inserts, updates and, on
// failure, deletes.
type Store interface {
	// Find returns all items matching the filter, ordered by sort order then id.
	Find(ctx context.Context, f Filter) ([]*Item, error)
	// Insert commits one item and returns it with its store-generated id set.
	Insert(ctx context.Context, item *Item, opts InsertOptions) (*Item, error)
	// Update merges patch over every matched item and returns the match count.
	Update(ctx context.Context, f Filter, patch Patch) (int, error)
	// DeleteMany removes every matched item and returns the delete count.
	DeleteMany(ctx context.Context, f Filter) (int, error)
	// Close releases the underlying resources.
	Close() error
}
