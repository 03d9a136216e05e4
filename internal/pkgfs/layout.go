// Package pkgfs knows the on-disk layout of a course package: the file
// grouping per content type, manifest locations, asset subfolders, and the
// zip archive handling.
package pkgfs

import (
	"os"
	"path/filepath"

	"golang.org/x/text/language"

	"github.com/courseforge/courseforge/internal/content"
	"github.com/courseforge/courseforge/internal/errors"
)

const (
	// ManifestFile sits at the package root.
	ManifestFile = "package.json"
	// CourseDir holds the course content tree inside a package.
	CourseDir = "course"
	// SourceDir prefixes the course dir in raw-source layout.
	SourceDir = "src"
	// ConfigFile sits directly under the course dir, outside any language.
	ConfigFile = "config.json"
	// AssetManifestFile is the optional per-language asset metadata manifest.
	AssetManifestFile = "assets.json"
)

// Bucket files inside the language-scoped content directory.
const (
	FileCourse         = "course.json"
	FileContentObjects = "contentObjects.json"
	FileArticles       = "articles.json"
	FileBlocks         = "blocks.json"
	FileComponents     = "components.json"
)

// AssetSubfolders are the directories scanned for assets when no metadata
// manifest is present.
var AssetSubfolders = []string{"assets", "images", "video", "audio"}

// BucketFor returns the bucket file that holds items of the given type.
// Config items live in ConfigFile and are not language scoped.
func BucketFor(t content.Type) (string, bool) {
	switch t {
	case content.TypeCourse:
		return FileCourse, true
	case content.TypeMenu, content.TypePage:
		return FileContentObjects, true
	case content.TypeArticle:
		return FileArticles, true
	case content.TypeBlock:
		return FileBlocks, true
	case content.TypeComponent:
		return FileComponents, true
	}
	return "", false
}

// BucketOrder is the document order the compiler expects, parents before
// children.
var BucketOrder = []string{FileCourse, FileContentObjects, FileArticles, FileBlocks, FileComponents}

// Layout describes where the course content sits inside an unpacked package.
type Layout struct {
	Root      string // package root
	CourseDir string // <root>/src/course or <root>/course
	Language  string // language subdirectory name
	RawSource bool   // true when the src/ prefixed layout was found
}

// LangDir returns the language-scoped content directory.
func (l *Layout) LangDir() string { return filepath.Join(l.CourseDir, l.Language) }

// ConfigPath returns the course config file path.
func (l *Layout) ConfigPath() string { return filepath.Join(l.CourseDir, ConfigFile) }

// Locate finds the course content directory in either raw-source or
// pre-compiled layout and picks the language directory. preferred names the
// wanted language; when it is absent the single present language is used.
func Locate(root, preferred string) (*Layout, error) {
	for _, l := range []Layout{
		{Root: root, CourseDir: filepath.Join(root, SourceDir, CourseDir), RawSource: true},
		{Root: root, CourseDir: filepath.Join(root, CourseDir)},
	} {
		info, err := os.Stat(l.CourseDir)
		if err != nil || !info.IsDir() {
			continue
		}
		lang, err := pickLanguage(l.CourseDir, preferred)
		if err != nil {
			return nil, err
		}
		l.Language = lang
		return &l, nil
	}
	return nil, errors.InvalidPackage("no course content directory in raw-source or compiled layout").
		WithContext("root", root)
}

// pickLanguage chooses the language subdirectory: the preferred one when it
// exists, else the only language present.
func pickLanguage(courseDir, preferred string) (string, error) {
	if preferred != "" {
		if info, err := os.Stat(filepath.Join(courseDir, preferred)); err == nil && info.IsDir() {
			return preferred, nil
		}
	}
	entries, err := os.ReadDir(courseDir)
	if err != nil {
		return "", errors.IOError("read course directory", err)
	}
	var langs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := language.Parse(e.Name()); err == nil {
			langs = append(langs, e.Name())
		}
	}
	if len(langs) == 0 {
		return "", errors.InvalidPackage("no language directory under course content dir").
			WithContext("course_dir", courseDir)
	}
	return langs[0], nil
}

// HoistNestedRoot moves a single nested directory containing the manifest up
// one level. Zip archives produced by other tools often wrap the package in
// one folder.
func HoistNestedRoot(root string) error {
	if _, err := os.Stat(filepath.Join(root, ManifestFile)); err == nil {
		return nil // manifest already at root
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return errors.IOError("read package root", err)
	}
	var dirs []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		}
	}
	if len(dirs) != 1 {
		return nil
	}
	nested := filepath.Join(root, dirs[0].Name())
	if _, err := os.Stat(filepath.Join(nested, ManifestFile)); err != nil {
		return nil
	}
	inner, err := os.ReadDir(nested)
	if err != nil {
		return errors.IOError("read nested package dir", err)
	}
	for _, e := range inner {
		if err := os.Rename(filepath.Join(nested, e.Name()), filepath.Join(root, e.Name())); err != nil {
			return errors.IOError("hoist nested package entry", err)
		}
	}
	return os.Remove(nested)
}
