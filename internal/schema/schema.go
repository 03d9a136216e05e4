// Package schema models the per-type content schemas used to validate,
// sanitize and default content item documents, and to locate asset-typed
// fields for reference rewriting.
package schema

import (
	"fmt"
	"strings"

	"github.com/courseforge/courseforge/internal/errors"
)

// Field describes one schema field. Object fields nest via Properties, array
// fields describe their element via Items.
type Field struct {
	Type       string            `json:"type"` // string|number|boolean|object|array
	Default    any               `json:"default,omitempty"`
	Required   bool              `json:"required,omitempty"`
	IsAsset    bool              `json:"isAsset,omitempty"` // value is an asset reference
	Properties map[string]*Field `json:"properties,omitempty"`
	Items      *Field            `json:"items,omitempty"`
}

// Schema is a named set of fields for one content type or component.
type Schema struct {
	Name   string            `json:"name"`
	Fields map[string]*Field `json:"fields"`
}

// AssetRef locates one asset-typed string value inside a document.
type AssetRef struct {
	Path  []string // key path from the document root; array hops use the index as a decimal string
	Value string
}

// Validate type-checks every present field and reports missing required
// fields. All problems for the document are collected into one error.
func (s *Schema) Validate(itemID string, doc map[string]any) error {
	var problems []string
	validateFields(s.Fields, doc, nil, &problems)
	if len(problems) == 0 {
		return nil
	}
	return errors.ValidationError(itemID, s.Name, strings.Join(problems, "; "))
}

func validateFields(fields map[string]*Field, doc map[string]any, path []string, problems *[]string) {
	for name, f := range fields {
		v, ok := doc[name]
		at := strings.Join(append(path, name), ".")
		if !ok || v == nil {
			if f.Required {
				*problems = append(*problems, fmt.Sprintf("missing required field %s", at))
			}
			continue
		}
		switch f.Type {
		case "string":
			if _, ok := v.(string); !ok {
				*problems = append(*problems, fmt.Sprintf("field %s: expected string, got %T", at, v))
			}
		case "number":
			switch v.(type) {
			case float64, int:
			default:
				*problems = append(*problems, fmt.Sprintf("field %s: expected number, got %T", at, v))
			}
		case "boolean":
			if _, ok := v.(bool); !ok {
				*problems = append(*problems, fmt.Sprintf("field %s: expected boolean, got %T", at, v))
			}
		case "object":
			sub, ok := v.(map[string]any)
			if !ok {
				*problems = append(*problems, fmt.Sprintf("field %s: expected object, got %T", at, v))
				continue
			}
			validateFields(f.Properties, sub, append(path, name), problems)
		case "array":
			arr, ok := v.([]any)
			if !ok {
				*problems = append(*problems, fmt.Sprintf("field %s: expected array, got %T", at, v))
				continue
			}
			if f.Items != nil && f.Items.Type == "object" {
				for i, el := range arr {
					if sub, ok := el.(map[string]any); ok {
						validateFields(f.Items.Properties, sub, append(path, name, fmt.Sprint(i)), problems)
					}
				}
			}
		}
	}
}

// Sanitize removes document keys the schema does not declare. Structural keys
// (underscore-prefixed) always pass through; they are owned by the store.
func (s *Schema) Sanitize(doc map[string]any) {
	sanitizeFields(s.Fields, doc)
}

func sanitizeFields(fields map[string]*Field, doc map[string]any) {
	for key, v := range doc {
		if strings.HasPrefix(key, "_") {
			continue
		}
		f, ok := fields[key]
		if !ok {
			delete(doc, key)
			continue
		}
		if f.Type == "object" && f.Properties != nil {
			if sub, ok := v.(map[string]any); ok {
				sanitizeFields(f.Properties, sub)
			}
		}
		if f.Type == "array" && f.Items != nil && f.Items.Type == "object" {
			if arr, ok := v.([]any); ok {
				for _, el := range arr {
					if sub, ok := el.(map[string]any); ok {
						sanitizeFields(f.Items.Properties, sub)
					}
				}
			}
		}
	}
}

// ApplyDefaults fills absent fields with their declared defaults, descending
// into declared object fields. Present values are never replaced.
func (s *Schema) ApplyDefaults(doc map[string]any) {
	applyDefaults(s.Fields, doc)
}

func applyDefaults(fields map[string]*Field, doc map[string]any) {
	for name, f := range fields {
		v, present := doc[name]
		if !present {
			if f.Default != nil {
				doc[name] = f.Default
			} else if f.Type == "object" && f.Properties != nil {
				sub := map[string]any{}
				applyDefaults(f.Properties, sub)
				if len(sub) > 0 {
					doc[name] = sub
				}
			}
			continue
		}
		if f.Type == "object" && f.Properties != nil {
			if sub, ok := v.(map[string]any); ok {
				applyDefaults(f.Properties, sub)
			}
		}
	}
}

// AssetRefs walks the schema against the document and returns every present
// asset-typed string value. Only schema-flagged fields are reported; free-text
// fields are never scanned.
func (s *Schema) AssetRefs(doc map[string]any) []AssetRef {
	var refs []AssetRef
	collectAssetRefs(s.Fields, doc, nil, &refs)
	return refs
}

func collectAssetRefs(fields map[string]*Field, doc map[string]any, path []string, refs *[]AssetRef) {
	for name, f := range fields {
		v, ok := doc[name]
		if !ok || v == nil {
			continue
		}
		p := append(append([]string{}, path...), name)
		switch {
		case f.IsAsset:
			if str, ok := v.(string); ok && str != "" {
				*refs = append(*refs, AssetRef{Path: p, Value: str})
			}
		case f.Type == "object" && f.Properties != nil:
			if sub, ok := v.(map[string]any); ok {
				collectAssetRefs(f.Properties, sub, p, refs)
			}
		case f.Type == "array" && f.Items != nil:
			arr, ok := v.([]any)
			if !ok {
				continue
			}
			for i, el := range arr {
				ip := append(append([]string{}, p...), fmt.Sprint(i))
				if f.Items.IsAsset {
					if str, ok := el.(string); ok && str != "" {
						*refs = append(*refs, AssetRef{Path: ip, Value: str})
					}
				} else if f.Items.Type == "object" {
					if sub, ok := el.(map[string]any); ok {
						collectAssetRefs(f.Items.Properties, sub, ip, refs)
					}
				}
			}
		}
	}
}

// DeleteValue removes the value at the key path produced by AssetRefs. Array
// elements are blanked rather than removed so sibling paths stay valid.
func DeleteValue(doc map[string]any, path []string) {
	if len(path) == 0 {
		return
	}
	cur := any(doc)
	for _, key := range path[:len(path)-1] {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[key]
		case []any:
			var idx int
			if _, err := fmt.Sscanf(key, "%d", &idx); err != nil || idx < 0 || idx >= len(node) {
				return
			}
			cur = node[idx]
		default:
			return
		}
	}
	last := path[len(path)-1]
	switch node := cur.(type) {
	case map[string]any:
		delete(node, last)
	case []any:
		var idx int
		if _, err := fmt.Sscanf(last, "%d", &idx); err == nil && idx >= 0 && idx < len(node) {
			node[idx] = ""
		}
	}
}

// SetValue writes a value at the key path produced by AssetRefs.
func SetValue(doc map[string]any, path []string, value any) {
	cur := any(doc)
	for i, key := range path {
		last := i == len(path)-1
		switch node := cur.(type) {
		case map[string]any:
			if last {
				node[key] = value
				return
			}
			cur = node[key]
		case []any:
			var idx int
			if _, err := fmt.Sscanf(key, "%d", &idx); err != nil || idx < 0 || idx >= len(node) {
				return
			}
			if last {
				node[idx] = value
				return
			}
			cur = node[idx]
		default:
			return
		}
	}
}
