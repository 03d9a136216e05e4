// Package builder converts a stored course into a self-contained package:
// it loads the course tree, assembles the package file layout, invokes the
// external compiler, and archives or relocates the result.
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/courseforge/courseforge/internal/assets"
	"github.com/courseforge/courseforge/internal/config"
	"github.com/courseforge/courseforge/internal/content"
	"github.com/courseforge/courseforge/internal/errors"
	"github.com/courseforge/courseforge/internal/hierarchy"
	"github.com/courseforge/courseforge/internal/job"
	"github.com/courseforge/courseforge/internal/metrics"
	"github.com/courseforge/courseforge/internal/pkgfs"
	"github.com/courseforge/courseforge/internal/plugin"
	"github.com/courseforge/courseforge/internal/records"
	"github.com/courseforge/courseforge/internal/schema"
)

// Result is the successful outcome of a build job.
type Result struct {
	Location string
	Versions map[string]string
	Info     []string
	Warn     []string
}

// Builder orchestrates store-to-package conversion. The content store is
// read-only throughout a build, so failure at any stage needs no store
// rollback, only filesystem cleanup.
type Builder struct {
	store    content.Store
	schemas  schema.Provider
	assets   assets.Store
	registry plugin.Registry
	records  *records.Store
	compiler *Compiler
	cfg      *config.Config
	recorder metrics.Recorder
}

// New wires a Builder. recorder may be nil.
func New(store content.Store, schemas schema.Provider, assetStore assets.Store,
	registry plugin.Registry, recordStore *records.Store, cfg *config.Config,
	recorder metrics.Recorder) *Builder {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Builder{
		store:    store,
		schemas:  schemas,
		assets:   assetStore,
		registry: registry,
		records:  recordStore,
		compiler: NewCompiler(cfg.Compiler),
		cfg:      cfg,
		recorder: recorder,
	}
}

// Run executes one build job to completion. On failure the working directory
// is removed best effort and a structured error carrying the failing stage is
// returned.
func (b *Builder) Run(ctx context.Context, j *job.Job) (*Result, error) {
	bs := newBuildState(j)
	stages := []stage{
		{stageLoad, b.stageLoad},
		{stageTransform, b.stageTransform},
		{stageAssemble, b.stageAssemble},
	}
	if j.Action != job.ActionExport {
		stages = append(stages, stage{stageCompile, b.stageCompile})
	}
	stages = append(stages,
		stage{stagePackage, b.stagePackage},
		stage{stageRecord, b.stageRecord},
	)

	err := b.runStages(ctx, bs, stages)
	b.recorder.ObserveJobDuration(string(j.Action), time.Since(bs.start))
	if err != nil {
		if j.WorkDir != "" {
			_ = os.RemoveAll(j.WorkDir)
		}
		b.recorder.IncJobOutcome(string(j.Action), "failed")
		return nil, err
	}
	b.recorder.IncJobOutcome(string(j.Action), "success")
	info, warn := j.Report.Snapshot()
	return &Result{Location: bs.location, Versions: bs.versions, Info: info, Warn: warn}, nil
}

// stageLoad reads the course root and all descendants from the store.
func (b *Builder) stageLoad(ctx context.Context, bs *buildState) error {
	roots, err := b.store.Find(ctx, content.Filter{ID: bs.job.CourseID, Type: content.TypeCourse})
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		return errors.NotFound("course", bs.job.CourseID)
	}

	all, err := b.store.Find(ctx, content.Filter{CourseID: bs.job.CourseID})
	if err != nil {
		return err
	}
	// The store stays read-only; clone so transforms never leak back.
	for _, it := range all {
		it = it.Clone()
		switch it.Type {
		case content.TypeConfig:
			bs.config = it
		case content.TypeCourse:
			bs.course = it
			bs.items = append(bs.items, it)
		default:
			bs.items = append(bs.items, it)
		}
	}
	if bs.course == nil {
		return errors.NotFound("course", bs.job.CourseID)
	}
	if bs.config == nil {
		return errors.StructuralError("course has no config item").
			WithContext("course_id", bs.job.CourseID)
	}
	bs.job.Report.Infof("loaded %d content items", len(bs.items))
	return nil
}

// stageTransform levels the hierarchy, partitions plugins and rewrites
// component keys and course globals into package form.
func (b *Builder) stageTransform(ctx context.Context, bs *buildState) error {
	sorted, err := hierarchy.Sort(bs.items, bs.job.CourseID)
	if err != nil {
		return err
	}
	bs.sorted = sorted

	installed, err := b.registry.Find(ctx, plugin.Filter{})
	if err != nil {
		return err
	}
	enabledNames := stringSet(stringSlice(bs.config.Properties["_enabledPlugins"]))
	byName := map[string]*plugin.Descriptor{}
	for _, d := range installed {
		byName[d.Name] = d
		if enabledNames[d.Name] {
			bs.enabled = append(bs.enabled, d)
			bs.versions[d.Name] = d.Version
			if d.Kind == plugin.KindComponent {
				bs.byComponentKey[componentKey(d)] = d
			}
		} else {
			bs.disabled = append(bs.disabled, d)
		}
	}
	for name := range enabledNames {
		if _, ok := byName[name]; !ok {
			return errors.MissingDependency(name, "course config")
		}
	}

	// Component items store the plugin name; the package format wants the
	// plugin's public attribute key.
	for _, it := range bs.items {
		if it.Type != content.TypeComponent || it.Component == "" {
			continue
		}
		d, ok := byName[it.Component]
		if !ok {
			return errors.MissingDependency(it.Component, it.ID)
		}
		it.Component = componentKey(d)
	}

	// Merge each enabled plugin's global settings under its attribute key
	// inside course globals, never overwriting sibling keys.
	globals, _ := bs.course.Properties["_globals"].(map[string]any)
	if globals == nil {
		globals = map[string]any{}
	}
	for _, d := range bs.enabled {
		if len(d.Globals) == 0 {
			continue
		}
		existing, _ := globals[d.TargetAttribute].(map[string]any)
		if existing == nil {
			existing = map[string]any{}
		}
		for k, v := range d.Globals {
			if _, taken := existing[k]; !taken {
				existing[k] = v
			}
		}
		globals[d.TargetAttribute] = existing
	}
	bs.course.SetProp("_globals", globals)
	bs.course.SetProp("_enabledPlugins", sortedNames(bs.enabled))

	bs.job.Report.Infof("plugins: %d enabled, %d disabled", len(bs.enabled), len(bs.disabled))
	return nil
}

// stageAssemble writes the package tree: config, per-type bucket files in
// hierarchy order, resolved assets, enabled plugin sources and the manifest.
func (b *Builder) stageAssemble(ctx context.Context, bs *buildState) error {
	workDir, err := os.MkdirTemp("", "courseforge-build-*")
	if err != nil {
		return errors.IOError("create build working directory", err)
	}
	bs.job.WorkDir = workDir
	bs.layout = &pkgfs.Layout{
		Root:      workDir,
		CourseDir: filepath.Join(workDir, pkgfs.SourceDir, pkgfs.CourseDir),
		Language:  b.cfg.DefaultLanguage,
		RawSource: true,
	}
	langDir := bs.layout.LangDir()
	if err := os.MkdirAll(filepath.Join(langDir, "assets"), 0o755); err != nil {
		return errors.IOError("create package directories", err)
	}

	if err := b.resolveAssets(ctx, bs); err != nil {
		return err
	}

	if err := writeJSON(bs.layout.ConfigPath(), bs.config); err != nil {
		return err
	}
	if err := b.writeBuckets(bs, langDir); err != nil {
		return err
	}
	if err := b.copyPluginSources(bs); err != nil {
		return err
	}

	manifest := &pkgfs.Manifest{
		Name:    titleOf(bs.course),
		Version: b.cfg.FrameworkVersion,
	}
	for _, d := range bs.enabled {
		manifest.Plugins = append(manifest.Plugins, pkgfs.PluginRef{
			Name:            d.Name,
			Version:         d.Version,
			TargetAttribute: d.TargetAttribute,
		})
	}
	return manifest.Write(workDir)
}

// resolveAssets walks every item's schema for asset-typed fields, copies the
// backing bytes into the package and rewrites references to package-relative
// paths. Remote-URL assets are left alone. Copies run as one awaited batch.
func (b *Builder) resolveAssets(ctx context.Context, bs *buildState) error {
	langDir := bs.layout.LangDir()
	relDir := pkgfs.CourseDir + "/" + bs.layout.Language + "/assets"

	type pendingCopy struct {
		src, dst string
	}
	var copies []pendingCopy
	seen := map[string]string{} // asset id -> package-relative ref
	var metas []pkgfs.AssetMeta

	for _, it := range append([]*content.Item{bs.config}, bs.items...) {
		s, err := b.schemaFor(ctx, it, bs.job.CourseID)
		if err != nil {
			return err
		}
		for _, ref := range s.AssetRefs(it.Properties) {
			if isRemoteRef(ref.Value) {
				continue
			}
			rel, ok := seen[ref.Value]
			if !ok {
				desc, err := b.assets.Get(ctx, ref.Value)
				if err != nil {
					return errors.Wrap(err, errors.KindNotFound, "item references unknown asset").
						WithContext("item_id", it.ID).
						WithContext("asset", ref.Value)
				}
				src, err := b.assets.PathFor(ctx, ref.Value)
				if err != nil {
					return err
				}
				name := filepath.Base(desc.Filename)
				rel = relDir + "/" + name
				seen[ref.Value] = rel
				copies = append(copies, pendingCopy{src: src, dst: filepath.Join(langDir, "assets", name)})
				metas = append(metas, pkgfs.AssetMeta{
					Filename:    name,
					Title:       desc.Title,
					Description: desc.Description,
					Tags:        desc.Tags,
				})
			}
			schema.SetValue(it.Properties, ref.Path, rel)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range copies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return copyFile(c.src, c.dst)
		})
	}
	if err := g.Wait(); err != nil {
		return errors.IOError("copy package assets", err)
	}
	if len(metas) > 0 {
		if err := pkgfs.WriteAssetManifest(langDir, metas); err != nil {
			return err
		}
	}
	bs.job.Report.Infof("packaged %d assets", len(copies))
	return nil
}

// writeBuckets groups items by type into the per-file buckets, ordered by
// hierarchy level so each array matches required document order.
func (b *Builder) writeBuckets(bs *buildState, langDir string) error {
	buckets := map[string][]*content.Item{}
	for _, level := range bs.sorted.Levels {
		for _, id := range level {
			it := bs.sorted.Items[id]
			file, ok := pkgfs.BucketFor(it.Type)
			if !ok {
				return errors.StructuralError("item type has no package bucket").
					WithContext("item_id", it.ID).
					WithContext("type", string(it.Type))
			}
			buckets[file] = append(buckets[file], it)
		}
	}
	for _, file := range pkgfs.BucketOrder {
		items := buckets[file]
		if file == pkgfs.FileCourse {
			// course.json holds the single course document
			if len(items) != 1 {
				return errors.StructuralError("expected exactly one course item").
					WithContext("count", len(items))
			}
			if err := writeJSON(filepath.Join(langDir, file), items[0]); err != nil {
				return err
			}
			continue
		}
		if items == nil {
			items = []*content.Item{}
		}
		if err := writeJSON(filepath.Join(langDir, file), items); err != nil {
			return err
		}
	}
	return nil
}

// copyPluginSources copies each enabled plugin's source directory into the
// package tree; disabled plugins' sources are excluded.
func (b *Builder) copyPluginSources(bs *buildState) error {
	for _, d := range bs.enabled {
		src := b.registry.SourcePath(d.Name)
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			bs.job.Report.Warnf("plugin %s has no local source directory, skipped", d.Name)
			continue
		}
		dst := filepath.Join(bs.job.WorkDir, pkgfs.SourceDir, "plugins", d.Name)
		if err := copyDir(src, dst); err != nil {
			return errors.IOError("copy plugin source", err).WithContext("plugin", d.Name)
		}
	}
	return nil
}

// stageCompile invokes the external compiler once; nonzero exit is fatal.
func (b *Builder) stageCompile(ctx context.Context, bs *buildState) error {
	return b.compiler.Run(ctx, bs.job.WorkDir)
}

// compiledDir is where the external compiler leaves its output inside the
// working directory.
const compiledDir = "build"

// stagePackage produces the final output per action and removes the working
// directory.
func (b *Builder) stagePackage(_ context.Context, bs *buildState) error {
	if err := os.MkdirAll(b.cfg.OutputRoot, 0o755); err != nil {
		return errors.IOError("create output root", err)
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")

	switch bs.job.Action {
	case job.ActionPreview:
		// Relocate the compiled output to be served directly.
		dest := filepath.Join(b.cfg.OutputRoot, "preview", bs.job.CreatedBy, bs.job.CourseID)
		if err := os.RemoveAll(dest); err != nil {
			return errors.IOError("clear previous preview", err)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errors.IOError("create preview directory", err)
		}
		if err := moveDir(filepath.Join(bs.job.WorkDir, compiledDir), dest); err != nil {
			return err
		}
		bs.location = dest
	case job.ActionPublish:
		// Archive only the compiled output.
		dest := filepath.Join(b.cfg.OutputRoot, fmt.Sprintf("%s-%s.zip", bs.job.CourseID, stamp))
		if err := pkgfs.Archive(filepath.Join(bs.job.WorkDir, compiledDir), dest, nil); err != nil {
			return err
		}
		bs.location = dest
	case job.ActionExport:
		// Archive the full source tree minus anything transient.
		dest := filepath.Join(b.cfg.OutputRoot, fmt.Sprintf("%s-export-%s.zip", bs.job.CourseID, stamp))
		skip := func(rel string) bool {
			return rel == compiledDir || strings.HasPrefix(rel, compiledDir+"/") ||
				strings.HasSuffix(rel, ".tmp")
		}
		if err := pkgfs.Archive(bs.job.WorkDir, dest, skip); err != nil {
			return err
		}
		bs.location = dest
	default:
		return errors.New(errors.KindInternal, "unknown build action").
			WithContext("action", string(bs.job.Action))
	}

	if err := os.RemoveAll(bs.job.WorkDir); err != nil {
		slog.Warn("Failed to remove build working directory", "dir", bs.job.WorkDir, "error", err)
	}
	bs.job.WorkDir = ""
	return nil
}

// stageRecord persists the build-attempt record, evicting the prior record
// and output for the same (action, creator) pair.
func (b *Builder) stageRecord(ctx context.Context, bs *buildState) error {
	rec := &records.Record{
		Action:    string(bs.job.Action),
		CourseID:  bs.job.CourseID,
		Location:  bs.location,
		ExpiresAt: time.Now().Add(b.cfg.BuildRecordLifespan),
		CreatedBy: bs.job.CreatedBy,
		Versions:  bs.versions,
	}
	evicted, err := b.records.Save(ctx, rec)
	if err != nil {
		return err
	}
	for _, old := range evicted {
		if old.Location != bs.location {
			records.RemoveOutput(old)
		}
	}
	if len(evicted) > 0 {
		bs.job.Report.Infof("evicted %d prior build record(s)", len(evicted))
	}
	return nil
}

func (b *Builder) schemaFor(ctx context.Context, it *content.Item, courseID string) (*schema.Schema, error) {
	return b.schemas.GetSchema(ctx, string(it.Type), courseID)
}

// componentKey is the public attribute a component plugin exposes: its target
// attribute without the underscore prefix.
func componentKey(d *plugin.Descriptor) string {
	return strings.TrimPrefix(d.TargetAttribute, "_")
}

func titleOf(course *content.Item) string {
	if t, ok := course.Properties["title"].(string); ok && t != "" {
		return t
	}
	return course.ID
}

func isRemoteRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, el := range vals {
			if s, ok := el.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func stringSet(vals []string) map[string]bool {
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		set[v] = true
	}
	return set
}

func sortedNames(ds []*plugin.Descriptor) []string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.KindIO, "encode package document")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IOError("write package document", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

// moveDir renames when possible and falls back to copy-and-delete across
// filesystems.
func moveDir(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyDir(src, dst); err != nil {
		return errors.IOError("relocate compiled output", err)
	}
	if err := os.RemoveAll(src); err != nil {
		return errors.IOError("remove compiled output source", err)
	}
	return nil
}
