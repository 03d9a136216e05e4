package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest_CurrentShape(t *testing.T) {
	d, err := ParseManifest([]byte(`{
		"name": "adapt-contrib-text",
		"version": "2.1.0",
		"kind": "component",
		"targetAttribute": "_text",
		"pluginDependencies": {"adapt-contrib-spoor": ">=1.0.0"},
		"globals": {"ariaRegion": "Text component"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "adapt-contrib-text", d.Name)
	assert.Equal(t, "_text", d.TargetAttribute)
	assert.Equal(t, KindComponent, d.Kind)
	assert.Equal(t, ">=1.0.0", d.Dependencies["adapt-contrib-spoor"])
	assert.Equal(t, "Text component", d.Globals["ariaRegion"])
}

func TestParseManifest_LegacyKeys(t *testing.T) {
	d, err := ParseManifest([]byte(`{
		"name": "adapt-contrib-spoor",
		"version": "1.0.0",
		"type": "extension",
		"globalsKey": "_spoor",
		"isLocalInstall": true
	}`))
	require.NoError(t, err)
	assert.Equal(t, KindExtension, d.Kind)
	assert.Equal(t, "_spoor", d.TargetAttribute)
	assert.True(t, d.ManagedExternally)
}

func TestParseManifest_InfersTargetAttribute(t *testing.T) {
	d, err := ParseManifest([]byte(`{"name": "adapt-contrib-media", "version": "3.0.0", "kind": "component"}`))
	require.NoError(t, err)
	assert.Equal(t, "_media", d.TargetAttribute)
}

func TestParseManifest_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing name":    `{"version": "1.0.0", "kind": "component"}`,
		"missing version": `{"name": "x", "kind": "component"}`,
		"bad version":     `{"name": "x", "version": "not-semver", "kind": "component"}`,
		"unknown kind":    `{"name": "x", "version": "1.0.0", "kind": "gadget"}`,
		"bad dep range":   `{"name": "x", "version": "1.0.0", "kind": "theme", "pluginDependencies": {"y": "!!"}}`,
	}
	for label, doc := range cases {
		_, err := ParseManifest([]byte(doc))
		assert.Error(t, err, label)
	}
}

func TestParseManifest_WildcardRangeAccepted(t *testing.T) {
	_, err := ParseManifest([]byte(`{"name": "x", "version": "1.0.0", "kind": "menu", "pluginDependencies": {"y": "*"}}`))
	assert.NoError(t, err)
}
