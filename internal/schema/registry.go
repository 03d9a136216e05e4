package schema

import (
	"context"
	"sync"

	"github.com/courseforge/courseforge/internal/errors"
)

// Provider resolves the schema for a content type (or a component key) within
// one course scope. courseID allows course-scoped overrides; the built-in
// registry ignores it.
type Provider interface {
	GetSchema(ctx context.Context, name, courseID string) (*Schema, error)
}

// Registry is an in-memory Provider seeded with the built-in content type
// schemas. Plugin loading registers component schemas under the plugin name.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry returns a Registry pre-loaded with the built-in schemas.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[string]*Schema)}
	for name, s := range builtinSchemas() {
		r.schemas[name] = s
	}
	return r
}

// Register adds or replaces a schema under the given name.
func (r *Registry) Register(name string, s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[name] = s
}

// GetSchema implements Provider.
func (r *Registry) GetSchema(_ context.Context, name, _ string) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return nil, errors.NotFound("schema", name)
	}
	return s, nil
}

// builtinSchemas declares the framework-owned content type schemas. Component
// schemas come from plugins and are registered at load time.
func builtinSchemas() map[string]*Schema {
	contentBase := map[string]*Field{
		"title":        {Type: "string", Required: true},
		"displayTitle": {Type: "string"},
		"body":         {Type: "string"},
		"instruction":  {Type: "string"},
		"_classes":     {Type: "string"},
		"_graphic": {Type: "object", Properties: map[string]*Field{
			"alt": {Type: "string"},
			"src": {Type: "string", IsAsset: true},
		}},
	}
	withBase := func(extra map[string]*Field) map[string]*Field {
		fields := make(map[string]*Field, len(contentBase)+len(extra))
		for k, v := range contentBase {
			fields[k] = v
		}
		for k, v := range extra {
			fields[k] = v
		}
		return fields
	}
	return map[string]*Schema{
		"course": {Name: "course", Fields: withBase(map[string]*Field{
			"description": {Type: "string"},
			"_globals":    {Type: "object", Properties: map[string]*Field{}},
			"_enabledPlugins": {Type: "array", Items: &Field{Type: "string"}},
			"_hero":           {Type: "string", IsAsset: true},
		})},
		"config": {Name: "config", Fields: map[string]*Field{
			"_defaultLanguage":  {Type: "string", Default: "en"},
			"_defaultDirection": {Type: "string", Default: "ltr"},
			"_theme":            {Type: "string"},
			"_menu":             {Type: "string"},
			"_enabledPlugins":   {Type: "array", Items: &Field{Type: "string"}},
			"_accessibility": {Type: "object", Properties: map[string]*Field{
				"_isEnabled": {Type: "boolean", Default: true},
			}},
		}},
		"menu":    {Name: "menu", Fields: withBase(nil)},
		"page":    {Name: "page", Fields: withBase(nil)},
		"article": {Name: "article", Fields: withBase(nil)},
		"block": {Name: "block", Fields: withBase(map[string]*Field{
			"_trackingId": {Type: "number"},
		})},
		"component": {Name: "component", Fields: withBase(map[string]*Field{
			"_layout":     {Type: "string", Default: "full"},
			"_isOptional": {Type: "boolean", Default: false},
		})},
	}
}
