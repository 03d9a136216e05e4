// Package importer converts a course package back into the content store: it
// unpacks the archive, loads assets, resolves plugins and commits the content
// tree level by level, rolling everything back on failure.
package importer

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/courseforge/courseforge/internal/assets"
	"github.com/courseforge/courseforge/internal/config"
	"github.com/courseforge/courseforge/internal/content"
	"github.com/courseforge/courseforge/internal/errors"
	"github.com/courseforge/courseforge/internal/job"
	"github.com/courseforge/courseforge/internal/metrics"
	"github.com/courseforge/courseforge/internal/pkgfs"
	"github.com/courseforge/courseforge/internal/plugin"
	"github.com/courseforge/courseforge/internal/schema"
)

// Result is the successful outcome of an import job.
type Result struct {
	CourseID string
	IDMap    map[string]string
	Versions map[string]string
	Info     []string
	Warn     []string
}

// Importer orchestrates package-to-store conversion.
type Importer struct {
	store    content.Store
	schemas  schema.Provider
	assets   assets.Store
	registry plugin.Registry
	cfg      *config.Config
	recorder metrics.Recorder
	// componentRenames maps legacy component keys to current names; consulted
	// by the migration chain.
	componentRenames map[string]string
}

// New wires an Importer. recorder may be nil.
func New(store content.Store, schemas schema.Provider, assetStore assets.Store,
	registry plugin.Registry, cfg *config.Config, recorder metrics.Recorder) *Importer {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Importer{
		store:            store,
		schemas:          schemas,
		assets:           assetStore,
		registry:         registry,
		cfg:              cfg,
		recorder:         recorder,
		componentRenames: map[string]string{},
	}
}

// SetComponentRenames installs the legacy component key rename map.
func (im *Importer) SetComponentRenames(renames map[string]string) {
	im.componentRenames = renames
}

// Run executes one import job over the archive at archivePath. On failure all
// partial effects are rolled back best effort and the original structured
// error is returned.
func (im *Importer) Run(ctx context.Context, j *job.Job, archivePath string) (*Result, error) {
	is := newImportState(j, archivePath)
	stages := []stage{
		{stageUnpack, im.stageUnpack},
		{stagePrepare, im.stagePrepare},
		{stageLoadAssets, im.stageLoadAssets},
		{stageResolvePlugins, im.stageResolvePlugins},
		{stageImportContent, im.stageImportContent},
	}

	err := im.runStages(ctx, is, stages)
	im.recorder.ObserveJobDuration(string(job.ActionImport), time.Since(is.start))
	if err != nil {
		im.cleanUp(ctx, is, err)
		im.recorder.IncJobOutcome(string(job.ActionImport), "failed")
		return nil, err
	}
	if j.WorkDir != "" {
		_ = os.RemoveAll(j.WorkDir)
		j.WorkDir = ""
	}
	im.recorder.IncJobOutcome(string(job.ActionImport), "success")
	info, warn := j.Report.Snapshot()
	return &Result{
		CourseID: is.newCourseID,
		IDMap:    j.IDMap,
		Versions: is.versions,
		Info:     info,
		Warn:     warn,
	}, nil
}

// stageUnpack extracts the archive, hoists a single nested directory, and
// validates the manifest before anything mutates.
func (im *Importer) stageUnpack(_ context.Context, is *importState) error {
	workDir, err := os.MkdirTemp("", "courseforge-import-*")
	if err != nil {
		return errors.IOError("create import working directory", err)
	}
	is.job.WorkDir = workDir

	if err := pkgfs.Extract(is.archivePath, workDir); err != nil {
		return err
	}
	if err := pkgfs.HoistNestedRoot(workDir); err != nil {
		return err
	}
	manifest, err := pkgfs.ReadManifest(workDir)
	if err != nil {
		return err
	}
	if err := manifest.CheckCompatible(im.cfg.FrameworkVersion); err != nil {
		return err
	}
	is.manifest = manifest

	layout, err := pkgfs.Locate(workDir, im.cfg.DefaultLanguage)
	if err != nil {
		return err
	}
	is.layout = layout
	is.job.Report.Infof("unpacked package %q (framework %s, %s layout)",
		manifest.Name, manifest.Version, layoutKind(layout))
	return nil
}

// stagePrepare reads the package documents, applying the legacy-format
// conversions needed before schema-based validation can proceed.
func (im *Importer) stagePrepare(_ context.Context, is *importState) error {
	langDir := is.layout.LangDir()

	cfgItem, err := readItem(is.layout.ConfigPath())
	if err != nil {
		return err
	}
	cfgItem.Type = content.TypeConfig
	is.config = cfgItem

	for _, file := range pkgfs.BucketOrder {
		items, err := readBucket(filepath.Join(langDir, file))
		if err != nil {
			return err
		}
		for _, it := range items {
			it.Type = typeForBucket(file, it)
			is.items = append(is.items, it)
			if it.Type == content.TypeCourse {
				if is.course != nil {
					return errors.StructuralError("package contains more than one course document")
				}
				is.course = it
			}
		}
	}
	if is.course == nil {
		return errors.InvalidPackage("package has no course document")
	}
	if is.course.ID == "" {
		return errors.InvalidPackage("course document has no id")
	}

	for _, ref := range is.manifest.Plugins {
		key := strings.TrimPrefix(ref.TargetAttribute, "_")
		if key != "" {
			is.componentPlugins[key] = ref.Name
		}
	}
	is.job.Report.Infof("prepared %d content items", len(is.items))
	return nil
}

// cleanUp undoes partial effects after a failure: the working directory, any
// inserted content, created assets and plugins installed during this run. All
// best effort; the original error is never masked.
func (im *Importer) cleanUp(ctx context.Context, is *importState, cause error) {
	slog.Info("Cleaning up failed import", "cause_kind", string(errors.GetKind(cause)))
	if is.job.WorkDir != "" {
		_ = os.RemoveAll(is.job.WorkDir)
		is.job.WorkDir = ""
	}
	if is.newCourseID != "" {
		if _, err := im.store.DeleteMany(ctx, content.Filter{CourseID: is.newCourseID}); err != nil {
			slog.Warn("Cleanup: failed to delete partial content", "course_id", is.newCourseID, "error", err)
		}
	}
	for _, id := range is.createdAssetIDs {
		if err := im.assets.Delete(ctx, id); err != nil {
			slog.Warn("Cleanup: failed to delete asset", "asset_id", id, "error", err)
		}
	}
	for _, id := range is.installedIDs {
		if err := im.registry.Uninstall(ctx, id); err != nil {
			slog.Warn("Cleanup: failed to uninstall plugin", "plugin_id", id, "error", err)
		}
	}
}

func layoutKind(l *pkgfs.Layout) string {
	if l.RawSource {
		return "raw-source"
	}
	return "pre-compiled"
}

// readItem reads one content document from a JSON file.
func readItem(path string) (*content.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.InvalidPackage("required package document missing").
				WithContext("path", filepath.Base(path))
		}
		return nil, errors.IOError("read package document", err)
	}
	it := &content.Item{}
	if err := json.Unmarshal(data, it); err != nil {
		return nil, errors.InvalidPackage("package document is not valid JSON").
			WithContext("path", filepath.Base(path)).
			WithContext("cause", err.Error())
	}
	return it, nil
}

// readBucket reads a bucket file. Legacy packages store course.json as a
// single object rather than an array; both shapes are accepted. A missing
// bucket file is an empty bucket.
func readBucket(path string) ([]*content.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IOError("read package bucket", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		it := &content.Item{}
		if err := json.Unmarshal(data, it); err != nil {
			return nil, errors.InvalidPackage("package bucket is not valid JSON").
				WithContext("path", filepath.Base(path)).
				WithContext("cause", err.Error())
		}
		return []*content.Item{it}, nil
	}
	var items []*content.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.InvalidPackage("package bucket is not valid JSON").
			WithContext("path", filepath.Base(path)).
			WithContext("cause", err.Error())
	}
	return items, nil
}

// typeForBucket assigns the content type a bucket implies. contentObjects
// hold menus and pages; the document's own type wins when it declares one.
func typeForBucket(file string, it *content.Item) content.Type {
	if it.Type != "" && content.IsValidType(it.Type) {
		return it.Type
	}
	switch file {
	case pkgfs.FileCourse:
		return content.TypeCourse
	case pkgfs.FileContentObjects:
		return content.TypePage
	case pkgfs.FileArticles:
		return content.TypeArticle
	case pkgfs.FileBlocks:
		return content.TypeBlock
	case pkgfs.FileComponents:
		return content.TypeComponent
	}
	return it.Type
}
