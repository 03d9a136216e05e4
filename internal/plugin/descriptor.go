// Package plugin models content-type plugins: their descriptors, the
// installed-plugin registry, and version dependency resolution.
package plugin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Kind enumerates the plugin kinds.
const (
	KindComponent = "component"
	KindExtension = "extension"
	KindTheme     = "theme"
	KindMenu      = "menu"
)

// Descriptor is the normalized form of a plugin manifest. Historical manifest
// shapes (legacy key names, inferred attribute keys) are folded into this one
// struct at load time; downstream code never re-derives them.
type Descriptor struct {
	ID                string            `json:"id,omitempty"`
	Name              string            `json:"name"`
	Version           string            `json:"version"`
	TargetAttribute   string            `json:"targetAttribute"`
	Kind              string            `json:"kind"`
	ManagedExternally bool              `json:"managedExternally,omitempty"`
	Dependencies      map[string]string `json:"dependencies,omitempty"` // name -> version range
	// Globals are the plugin's default global settings, merged under
	// TargetAttribute inside course globals at build time.
	Globals map[string]any `json:"globals,omitempty"`
}

// rawManifest accepts every historical manifest shape in one pass.
type rawManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	TargetAttribute string            `json:"targetAttribute"`
	GlobalsKey      string            `json:"globalsKey"` // legacy name for targetAttribute
	Kind            string            `json:"kind"`
	Type            string            `json:"type"` // legacy name for kind
	IsLocalInstall  bool              `json:"isLocalInstall"`
	Dependencies    map[string]string `json:"pluginDependencies"`
	Globals         map[string]any    `json:"globals"`
}

// ParseManifest normalizes a plugin manifest document into a Descriptor and
// validates it once. Later shapes win over legacy ones when both appear.
func ParseManifest(data []byte) (*Descriptor, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse plugin manifest: %w", err)
	}
	d := &Descriptor{
		Name:              raw.Name,
		Version:           raw.Version,
		TargetAttribute:   raw.TargetAttribute,
		Kind:              raw.Kind,
		ManagedExternally: raw.IsLocalInstall,
		Dependencies:      raw.Dependencies,
		Globals:           raw.Globals,
	}
	if d.TargetAttribute == "" {
		d.TargetAttribute = raw.GlobalsKey
	}
	if d.TargetAttribute == "" {
		d.TargetAttribute = inferTargetAttribute(d.Name)
	}
	if d.Kind == "" {
		d.Kind = raw.Type
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the normalized descriptor.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("plugin manifest missing name")
	}
	if d.Version == "" {
		return fmt.Errorf("plugin %s: manifest missing version", d.Name)
	}
	if _, err := semver.NewVersion(d.Version); err != nil {
		return fmt.Errorf("plugin %s: invalid version %q: %w", d.Name, d.Version, err)
	}
	switch d.Kind {
	case KindComponent, KindExtension, KindTheme, KindMenu:
	default:
		return fmt.Errorf("plugin %s: unknown kind %q", d.Name, d.Kind)
	}
	for dep, rng := range d.Dependencies {
		if rng == "" || rng == "*" {
			continue
		}
		if _, err := semver.NewConstraint(rng); err != nil {
			return fmt.Errorf("plugin %s: invalid version range %q for dependency %s: %w", d.Name, rng, dep, err)
		}
	}
	return nil
}

// inferTargetAttribute derives the globals key from the plugin name for
// manifests that declare none: the last hyphenated segment, underscored.
func inferTargetAttribute(name string) string {
	if name == "" {
		return ""
	}
	seg := name
	if i := strings.LastIndex(name, "-"); i >= 0 && i < len(name)-1 {
		seg = name[i+1:]
	}
	return "_" + seg
}
