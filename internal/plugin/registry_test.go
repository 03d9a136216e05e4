package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/courseforge/internal/errors"
)

func writeManifest(t *testing.T, sourceDir, name, file, doc string) {
	t.Helper()
	dir := filepath.Join(sourceDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(doc), 0o644))
}

func newTestRegistry(t *testing.T) (*LocalRegistry, string) {
	t.Helper()
	sourceDir := t.TempDir()
	r, err := NewLocalRegistry(":memory:", sourceDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, sourceDir
}

func TestLocalRegistry_InstallAndFind(t *testing.T) {
	r, src := newTestRegistry(t)
	ctx := context.Background()
	writeManifest(t, src, "adapt-contrib-text", "plugin.json",
		`{"name": "adapt-contrib-text", "version": "2.1.0", "kind": "component", "targetAttribute": "_text"}`)
	writeManifest(t, src, "adapt-contrib-spoor", "plugin.json",
		`{"name": "adapt-contrib-spoor", "version": "1.0.0", "kind": "extension"}`)

	installed, err := r.Install(ctx, []string{"adapt-contrib-text", "adapt-contrib-spoor"})
	require.NoError(t, err)
	assert.Len(t, installed, 2)

	byName, err := r.Find(ctx, Filter{Name: "adapt-contrib-text"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "2.1.0", byName[0].Version)
	assert.Equal(t, "_text", byName[0].TargetAttribute)

	components, err := r.Find(ctx, Filter{Kind: KindComponent})
	require.NoError(t, err)
	assert.Len(t, components, 1)

	all, err := r.Find(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "adapt-contrib-spoor", all[0].Name, "results ordered by name")
}

func TestLocalRegistry_ReinstallReplaces(t *testing.T) {
	r, src := newTestRegistry(t)
	ctx := context.Background()
	writeManifest(t, src, "adapt-contrib-text", "plugin.json",
		`{"name": "adapt-contrib-text", "version": "2.1.0", "kind": "component"}`)
	_, err := r.Install(ctx, []string{"adapt-contrib-text"})
	require.NoError(t, err)

	writeManifest(t, src, "adapt-contrib-text", "plugin.json",
		`{"name": "adapt-contrib-text", "version": "3.0.0", "kind": "component"}`)
	_, err = r.Install(ctx, []string{"adapt-contrib-text"})
	require.NoError(t, err)

	got, err := r.Find(ctx, Filter{Name: "adapt-contrib-text"})
	require.NoError(t, err)
	require.Len(t, got, 1, "reinstall must not duplicate the row")
	assert.Equal(t, "3.0.0", got[0].Version)
}

func TestLocalRegistry_LegacyBowerManifest(t *testing.T) {
	r, src := newTestRegistry(t)
	writeManifest(t, src, "adapt-contrib-media", "bower.json",
		`{"name": "adapt-contrib-media", "version": "3.0.0", "type": "component", "globalsKey": "_media"}`)

	d, err := r.Available(context.Background(), "adapt-contrib-media")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, KindComponent, d.Kind)
	assert.Equal(t, "_media", d.TargetAttribute)
}

func TestLocalRegistry_AvailableUnknownIsNil(t *testing.T) {
	r, _ := newTestRegistry(t)
	d, err := r.Available(context.Background(), "no-such-plugin")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestLocalRegistry_InstallUnknownFails(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Install(context.Background(), []string{"no-such-plugin"})
	assert.True(t, errors.IsKind(err, errors.KindMissingDependency), "got %v", err)
}

func TestLocalRegistry_Uninstall(t *testing.T) {
	r, src := newTestRegistry(t)
	ctx := context.Background()
	writeManifest(t, src, "adapt-contrib-text", "plugin.json",
		`{"name": "adapt-contrib-text", "version": "2.1.0", "kind": "component"}`)
	installed, err := r.Install(ctx, []string{"adapt-contrib-text"})
	require.NoError(t, err)

	require.NoError(t, r.Uninstall(ctx, installed[0].ID))
	left, err := r.Find(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, left)

	assert.True(t, errors.IsKind(r.Uninstall(ctx, "missing-id"), errors.KindNotFound))
}
