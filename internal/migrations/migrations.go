// Package migrations applies ordered, idempotent per-item data-shape fixups
// to imported content before validation. Each migration owns a disjoint set
// of fields, so the declared order only matters for readability.
package migrations

import (
	"strconv"
	"strings"

	"github.com/courseforge/courseforge/internal/content"
)

// Context is the shared import context migrations may consult. It is read
// only from the migrations' point of view.
type Context struct {
	// ComponentRenames maps legacy component keys to their current names.
	ComponentRenames map[string]string
}

// Migration is one pure per-item transform.
type Migration struct {
	Name  string
	Apply func(item *content.Item, mctx *Context)
}

// Chain returns the fixed, ordered migration list.
func Chain() []Migration {
	return []Migration{
		{Name: "rename_legacy_components", Apply: renameLegacyComponents},
		{Name: "coerce_string_numbers", Apply: coerceStringNumbers},
		{Name: "drop_empty_fields", Apply: dropEmptyFields},
		{Name: "normalize_asset_refs", Apply: normalizeAssetRefs},
	}
}

// Run applies the whole chain to one item. Running it again on the result is
// a no-op.
func Run(item *content.Item, mctx *Context) {
	if mctx == nil {
		mctx = &Context{}
	}
	for _, m := range Chain() {
		m.Apply(item, mctx)
	}
}

// renameLegacyComponents maps legacy component keys to their current names
// using the rename map carried in the import context.
func renameLegacyComponents(item *content.Item, mctx *Context) {
	if item.Component == "" || len(mctx.ComponentRenames) == 0 {
		return
	}
	if renamed, ok := mctx.ComponentRenames[item.Component]; ok {
		item.Component = renamed
	}
}

// numericFields are the fields legacy exports are known to stringify.
var numericFields = map[string]struct{}{
	"_trackingId":     {},
	"_scoreToPass":    {},
	"_attempts":       {},
	"_questionWeight": {},
}

// coerceStringNumbers converts stringified numerics back to numbers in the
// fields legacy exports are known to stringify.
func coerceStringNumbers(item *content.Item, _ *Context) {
	for key := range numericFields {
		raw, ok := item.Properties[key]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			item.Properties[key] = n
		}
	}
}

// dropEmptyFields removes top-level null values and empty objects, which old
// exporters emitted for unset optional fields and current schemas reject.
func dropEmptyFields(item *content.Item, _ *Context) {
	for key, v := range item.Properties {
		switch val := v.(type) {
		case nil:
			delete(item.Properties, key)
		case map[string]any:
			if len(val) == 0 {
				delete(item.Properties, key)
			}
		}
	}
}

// normalizeAssetRefs rewrites legacy asset-reference objects ({"_src": path}
// or {"src": path} with no other keys) into the current plain-string shape.
func normalizeAssetRefs(item *content.Item, _ *Context) {
	for key, v := range item.Properties {
		item.Properties[key] = normalizeAssetValue(v)
	}
}

func normalizeAssetValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 1 {
			for _, srcKey := range []string{"_src", "src"} {
				if s, ok := val[srcKey].(string); ok {
					return s
				}
			}
		}
		for k, nested := range val {
			val[k] = normalizeAssetValue(nested)
		}
	case []any:
		for i, el := range val {
			val[i] = normalizeAssetValue(el)
		}
	}
	return v
}
