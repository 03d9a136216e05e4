package pkgfs

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/courseforge/courseforge/internal/errors"
)

// PluginRef is one plugin reference in the package manifest.
type PluginRef struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	TargetAttribute string `json:"targetAttribute,omitempty"`
}

// Manifest is the package-level manifest at the archive root.
type Manifest struct {
	Name    string      `json:"name"`
	Version string      `json:"version"` // framework semantic version the package was built against
	Plugins []PluginRef `json:"plugins,omitempty"`
}

// ReadManifest loads and parses the package manifest under root.
func ReadManifest(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.InvalidPackage("package manifest missing").WithContext("root", root)
		}
		return nil, errors.IOError("read package manifest", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.InvalidPackage("package manifest is not valid JSON").
			WithContext("cause", err.Error())
	}
	if m.Version == "" {
		return nil, errors.InvalidPackage("package manifest missing version")
	}
	return &m, nil
}

// WriteManifest writes the manifest under root.
func (m *Manifest) Write(root string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.KindIO, "encode package manifest")
	}
	if err := os.WriteFile(filepath.Join(root, ManifestFile), data, 0o644); err != nil {
		return errors.IOError("write package manifest", err)
	}
	return nil
}

// CheckCompatible compares the package framework version against the running
// system. A major-version mismatch is fatal; minor and patch drift pass.
func (m *Manifest) CheckCompatible(systemVersion string) error {
	pkgV, err := semver.NewVersion(m.Version)
	if err != nil {
		return errors.InvalidPackage("package manifest version is not semantic").
			WithContext("version", m.Version)
	}
	sysV, err := semver.NewVersion(systemVersion)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "running framework version is not semantic").
			WithContext("version", systemVersion)
	}
	if pkgV.Major() != sysV.Major() {
		return errors.IncompatiblePackage(m.Version, systemVersion)
	}
	return nil
}

// AssetMeta is one entry of the optional asset metadata manifest.
type AssetMeta struct {
	Filename    string   `json:"filename"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ReadAssetManifest loads the optional asset metadata manifest from the
// language directory. A missing file returns (nil, nil).
func ReadAssetManifest(langDir string) ([]AssetMeta, error) {
	data, err := os.ReadFile(filepath.Join(langDir, AssetManifestFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.IOError("read asset manifest", err)
	}
	var metas []AssetMeta
	if err := json.Unmarshal(data, &metas); err != nil {
		return nil, errors.InvalidPackage("asset manifest is not valid JSON").
			WithContext("cause", err.Error())
	}
	return metas, nil
}

// WriteAssetManifest writes the asset metadata manifest into the language
// directory.
func WriteAssetManifest(langDir string, metas []AssetMeta) error {
	data, err := json.MarshalIndent(metas, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.KindIO, "encode asset manifest")
	}
	if err := os.WriteFile(filepath.Join(langDir, AssetManifestFile), data, 0o644); err != nil {
		return errors.IOError("write asset manifest", err)
	}
	return nil
}
