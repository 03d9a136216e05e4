package pkgfs

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/courseforge/internal/content"
	"github.com/courseforge/courseforge/internal/errors"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestBucketFor(t *testing.T) {
	for typ, want := range map[content.Type]string{
		content.TypeCourse:    FileCourse,
		content.TypeMenu:      FileContentObjects,
		content.TypePage:      FileContentObjects,
		content.TypeArticle:   FileArticles,
		content.TypeBlock:     FileBlocks,
		content.TypeComponent: FileComponents,
	} {
		got, ok := BucketFor(typ)
		require.True(t, ok, typ)
		assert.Equal(t, want, got, typ)
	}
	_, ok := BucketFor(content.TypeConfig)
	assert.False(t, ok, "config is not language scoped")
}

func TestLocate_PrefersRawSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "course", "en", "course.json"), "{}")
	writeFile(t, filepath.Join(root, "course", "en", "course.json"), "{}")

	l, err := Locate(root, "en")
	require.NoError(t, err)
	assert.True(t, l.RawSource)
	assert.Equal(t, filepath.Join(root, "src", "course"), l.CourseDir)
	assert.Equal(t, filepath.Join(root, "src", "course", "en"), l.LangDir())
}

func TestLocate_CompiledLayoutAndLanguageFallback(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "course", "fr", "course.json"), "{}")
	writeFile(t, filepath.Join(root, "course", "config.json"), "{}")

	l, err := Locate(root, "en") // preferred language absent, the single present one wins
	require.NoError(t, err)
	assert.False(t, l.RawSource)
	assert.Equal(t, "fr", l.Language)
	assert.Equal(t, filepath.Join(root, "course", "config.json"), l.ConfigPath())
}

func TestLocate_NoContentDir(t *testing.T) {
	_, err := Locate(t.TempDir(), "en")
	assert.True(t, errors.IsKind(err, errors.KindInvalidPackage), "got %v", err)
}

func TestHoistNestedRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "wrapper", ManifestFile), `{"name": "x", "version": "5.0.0"}`)
	writeFile(t, filepath.Join(root, "wrapper", "course", "en", "course.json"), "{}")

	require.NoError(t, HoistNestedRoot(root))
	assert.FileExists(t, filepath.Join(root, ManifestFile))
	assert.FileExists(t, filepath.Join(root, "course", "en", "course.json"))
	assert.NoDirExists(t, filepath.Join(root, "wrapper"))
}

func TestHoistNestedRoot_ManifestAlreadyAtRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ManifestFile), `{"version": "5.0.0"}`)
	writeFile(t, filepath.Join(root, "extra", "file.txt"), "x")

	require.NoError(t, HoistNestedRoot(root))
	assert.FileExists(t, filepath.Join(root, "extra", "file.txt"))
}

func TestManifest_RoundTripAndValidation(t *testing.T) {
	root := t.TempDir()
	m := &Manifest{Name: "my-course", Version: "5.1.2",
		Plugins: []PluginRef{{Name: "adapt-contrib-text", Version: "2.1.0", TargetAttribute: "_text"}}}
	require.NoError(t, m.Write(root))

	got, err := ReadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, m.Name, got.Name)
	require.Len(t, got.Plugins, 1)
	assert.Equal(t, "_text", got.Plugins[0].TargetAttribute)

	_, err = ReadManifest(t.TempDir())
	assert.True(t, errors.IsKind(err, errors.KindInvalidPackage), "missing manifest: %v", err)
}

func TestCheckCompatible(t *testing.T) {
	m := &Manifest{Version: "5.4.0"}
	assert.NoError(t, m.CheckCompatible("5.0.0"))

	old := &Manifest{Version: "3.9.9"}
	err := old.CheckCompatible("5.0.0")
	assert.True(t, errors.IsKind(err, errors.KindIncompatiblePackage), "got %v", err)

	bad := &Manifest{Version: "not-a-version"}
	assert.True(t, errors.IsKind(bad.CheckCompatible("5.0.0"), errors.KindInvalidPackage))
}

func TestAssetManifest_MissingIsNil(t *testing.T) {
	metas, err := ReadAssetManifest(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, metas)
}

func TestArchiveExtract_RoundTripWithSkip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, ManifestFile), `{"version": "5.0.0"}`)
	writeFile(t, filepath.Join(src, "course", "en", "course.json"), `{"_type": "course"}`)
	writeFile(t, filepath.Join(src, "build", "index.html"), "<html>")

	zipPath := filepath.Join(t.TempDir(), "pkg.zip")
	err := Archive(src, zipPath, func(rel string) bool {
		return rel == "build/index.html"
	})
	require.NoError(t, err)

	dst := t.TempDir()
	require.NoError(t, Extract(zipPath, dst))
	assert.FileExists(t, filepath.Join(dst, ManifestFile))
	assert.FileExists(t, filepath.Join(dst, "course", "en", "course.json"))
	assert.NoFileExists(t, filepath.Join(dst, "build", "index.html"))
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	// Build a hostile zip by archiving then checking the guard directly via a
	// crafted name is not possible with Archive, so write the zip by hand.
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	writeEvilZip(t, zipPath)
	err := Extract(zipPath, t.TempDir())
	assert.True(t, errors.IsKind(err, errors.KindInvalidPackage), "got %v", err)
}

func writeEvilZip(t *testing.T, zipPath string) {
	t.Helper()
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	defer out.Close()
	zw := zip.NewWriter(out)
	w, err := zw.Create("../outside.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("escape"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}
