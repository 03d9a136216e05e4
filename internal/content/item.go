// Package content defines the course content model and the content store.
package content

import (
	"encoding/json"
	"fmt"
)

// Type enumerates the content item kinds that make up a course tree.
type Type string

const (
	TypeCourse    Type = "course"
	TypeConfig    Type = "config"
	TypeMenu      Type = "menu"
	TypePage      Type = "page"
	TypeArticle   Type = "article"
	TypeBlock     Type = "block"
	TypeComponent Type = "component"
)

// ValidTypes lists every recognized content type.
var ValidTypes = []Type{TypeCourse, TypeConfig, TypeMenu, TypePage, TypeArticle, TypeBlock, TypeComponent}

// IsValidType reports whether t is a recognized content type.
func IsValidType(t Type) bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Item is one node of a course's hierarchical tree. Known structural fields
// are typed; everything else a document carries lives in Properties and round
// trips untouched.
type Item struct {
	ID        string
	Type      Type
	ParentID  string
	CourseID  string
	SortOrder *int   // nil when the document carries no explicit order
	Component string // component plugin key, component items only
	LocalID   string // package-scoped human-readable id, not the store id
	Properties map[string]any
}

// Structural JSON keys. Everything else round-trips through Properties.
const (
	keyID        = "_id"
	keyType      = "_type"
	keyParentID  = "_parentId"
	keyCourseID  = "_courseId"
	keySortOrder = "_sortOrder"
	keyComponent = "_component"
	keyLocalID   = "_friendlyId"
)

// MarshalJSON flattens the typed fields and Properties into one document.
func (it *Item) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(it.Properties)+7)
	for k, v := range it.Properties {
		doc[k] = v
	}
	if it.ID != "" {
		doc[keyID] = it.ID
	}
	doc[keyType] = string(it.Type)
	if it.ParentID != "" {
		doc[keyParentID] = it.ParentID
	}
	if it.CourseID != "" {
		doc[keyCourseID] = it.CourseID
	}
	if it.SortOrder != nil {
		doc[keySortOrder] = *it.SortOrder
	}
	if it.Component != "" {
		doc[keyComponent] = it.Component
	}
	if it.LocalID != "" {
		doc[keyLocalID] = it.LocalID
	}
	return json.Marshal(doc)
}

// UnmarshalJSON lifts the structural keys out of the document and keeps the
// remainder in Properties.
func (it *Item) UnmarshalJSON(data []byte) error {
	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	it.ID = popString(doc, keyID)
	it.Type = Type(popString(doc, keyType))
	it.ParentID = popString(doc, keyParentID)
	it.CourseID = popString(doc, keyCourseID)
	it.Component = popString(doc, keyComponent)
	it.LocalID = popString(doc, keyLocalID)
	if raw, ok := doc[keySortOrder]; ok {
		delete(doc, keySortOrder)
		switch n := raw.(type) {
		case float64:
			v := int(n)
			it.SortOrder = &v
		case string:
			// legacy documents stringify the order; the migration chain also
			// handles this for non-structural fields
			var v int
			if _, err := fmt.Sscanf(n, "%d", &v); err == nil {
				it.SortOrder = &v
			}
		}
	}
	it.Properties = doc
	return nil
}

// Clone returns a deep copy of the item. Property values are copied via JSON
// round trip so callers can mutate freely.
func (it *Item) Clone() *Item {
	dup := &Item{
		ID:        it.ID,
		Type:      it.Type,
		ParentID:  it.ParentID,
		CourseID:  it.CourseID,
		Component: it.Component,
		LocalID:   it.LocalID,
	}
	if it.SortOrder != nil {
		v := *it.SortOrder
		dup.SortOrder = &v
	}
	if it.Properties != nil {
		raw, _ := json.Marshal(it.Properties)
		_ = json.Unmarshal(raw, &dup.Properties)
	}
	return dup
}

// Prop returns a named property value.
func (it *Item) Prop(key string) (any, bool) {
	v, ok := it.Properties[key]
	return v, ok
}

// SetProp sets a named property value, allocating the map on first use.
func (it *Item) SetProp(key string, value any) {
	if it.Properties == nil {
		it.Properties = make(map[string]any)
	}
	it.Properties[key] = value
}

func popString(doc map[string]any, key string) string {
	v, ok := doc[key]
	if !ok {
		return ""
	}
	delete(doc, key)
	s, _ := v.(string)
	return s
}
