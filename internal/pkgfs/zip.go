package pkgfs

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/courseforge/courseforge/internal/errors"
)

// Archive zips the contents of dir into zipPath. skip, when non-nil, filters
// out entries by their slash-separated path relative to dir.
func Archive(dir, zipPath string, skip func(rel string) bool) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return errors.IOError("create archive", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if skip != nil && skip(rel) {
			return nil
		}
		w, err := zw.Create(rel)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		_ = zw.Close()
		return errors.IOError("write archive", err)
	}
	if err := zw.Close(); err != nil {
		return errors.IOError("finalize archive", err)
	}
	return nil
}

// Extract unpacks zipPath into dir, refusing entries that would escape it.
func Extract(zipPath, dir string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return errors.InvalidPackage("archive is not a readable zip").
			WithContext("path", zipPath).
			WithContext("cause", err.Error())
	}
	defer zr.Close()

	for _, f := range zr.File {
		name := filepath.FromSlash(f.Name)
		if strings.Contains(name, "..") {
			return errors.InvalidPackage("archive entry escapes extraction root").
				WithContext("entry", f.Name)
		}
		target := filepath.Join(dir, name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.IOError("create archive directory", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.IOError("create archive parent directory", err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	r, err := f.Open()
	if err != nil {
		return errors.IOError("open archive entry", err)
	}
	defer r.Close()

	out, err := os.Create(target)
	if err != nil {
		return errors.IOError("create extracted file", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return errors.IOError("extract archive entry", err)
	}
	return nil
}
