package importer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/courseforge/courseforge/internal/assets"
	"github.com/courseforge/courseforge/internal/pkgfs"
)

// stageLoadAssets enumerates package assets and stores them as one awaited
// batch. Per-asset failures are downgraded to warnings; the import still
// produces a usable result without them. Skipped entirely on dry runs.
func (im *Importer) stageLoadAssets(ctx context.Context, is *importState) error {
	if is.job.Settings.DryRun {
		return nil
	}
	langDir := is.layout.LangDir()

	metas, err := pkgfs.ReadAssetManifest(langDir)
	if err != nil {
		return err
	}
	byFilename := map[string]pkgfs.AssetMeta{}
	for _, m := range metas {
		byFilename[filepath.Base(m.Filename)] = m
	}

	type found struct {
		path string // absolute
		rel  string // package-relative reference, slash separated
	}
	var files []found
	for _, sub := range pkgfs.AssetSubfolders {
		dir := filepath.Join(langDir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // subfolder absent
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			files = append(files, found{
				path: filepath.Join(dir, e.Name()),
				rel:  pkgfs.CourseDir + "/" + is.layout.Language + "/" + sub + "/" + e.Name(),
			})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	var mu sync.Mutex
	stored := 0
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name := filepath.Base(f.path)
			meta := byFilename[name]
			desc := assets.Descriptor{
				Filename:    name,
				Title:       meta.Title,
				Description: meta.Description,
				Tags:        mergeTags(is.job.Settings.GlobalTags, meta.Tags),
			}
			r, err := os.Open(f.path)
			if err != nil {
				is.job.Report.Warnf("asset %s unreadable, skipped: %v", name, err)
				return nil
			}
			defer r.Close()
			inserted, err := im.assets.Insert(gctx, desc, r)
			if err != nil {
				is.job.Report.Warnf("asset %s could not be stored, skipped: %v", name, err)
				return nil
			}
			mu.Lock()
			is.createdAssetIDs = append(is.createdAssetIDs, inserted.ID)
			is.job.AssetMap[f.rel] = inserted.ID
			is.job.AssetMap[name] = inserted.ID // bare-filename references
			stored++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	im.recorder.IncAssetsStored(stored)
	is.job.Report.Infof("stored %d of %d package assets", stored, len(files))
	return nil
}

// mergeTags combines caller-supplied global tags with per-asset tags,
// deduplicated, global tags first.
func mergeTags(global, own []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range append(append([]string{}, global...), own...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
