package importer

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/courseforge/courseforge/internal/content"
	"github.com/courseforge/courseforge/internal/errors"
	"github.com/courseforge/courseforge/internal/hierarchy"
	"github.com/courseforge/courseforge/internal/migrations"
	"github.com/courseforge/courseforge/internal/schema"
)

// stageImportContent commits the package's content tree: course root first,
// then config, then the remaining items level by level. Inserts run
// concurrently within one level and strictly sequentially across levels, so
// every item's parent is committed with its real new id before any child.
func (im *Importer) stageImportContent(ctx context.Context, is *importState) error {
	if !is.job.Settings.ImportContent {
		is.job.Report.Infof("content import not requested")
		return nil
	}

	sorted, err := hierarchy.Sort(is.items, is.course.ID)
	if err != nil {
		return err
	}
	assignSiblingOrder(sorted)

	if err := im.insertRootAndConfig(ctx, is); err != nil {
		return err
	}

	imported := 1 // course root
	for _, level := range sorted.Levels[1:] {
		if err := im.insertLevel(ctx, is, sorted, level); err != nil {
			return err
		}
		imported += len(level)
	}

	// Persist the resolved enabled-plugin set once on the course.
	enabled := make([]string, 0, len(is.versions))
	for name := range is.versions {
		enabled = append(enabled, name)
	}
	sort.Strings(enabled)
	if _, err := im.store.Update(ctx,
		content.Filter{ID: is.newCourseID},
		content.Patch{"_enabledPlugins": enabled}); err != nil {
		return err
	}

	im.recorder.IncItemsImported(imported)
	is.job.Report.Infof("imported %d content items", imported)
	return nil
}

// insertRootAndConfig commits the course root and the config item, then
// applies the schema-derived defaulting pass to both. Defaults for
// config-dependent fields cannot be computed until the config document
// exists, so this is commit-then-reconcile, not a single insert.
func (im *Importer) insertRootAndConfig(ctx context.Context, is *importState) error {
	course, err := im.prepareItem(ctx, is, is.course, is.job.IDMap)
	if err != nil {
		return err
	}
	newCourse, err := im.store.Insert(ctx, course, content.InsertOptions{})
	if err != nil {
		return err
	}
	is.newCourseID = newCourse.ID
	is.job.IDMap[is.course.ID] = newCourse.ID

	cfg := is.config
	prepared, err := im.prepareItem(ctx, is, cfg, is.job.IDMap)
	if err != nil {
		return err
	}
	prepared.ParentID = newCourse.ID
	prepared.CourseID = newCourse.ID
	newCfg, err := im.store.Insert(ctx, prepared, content.InsertOptions{})
	if err != nil {
		return err
	}
	if cfg.ID != "" {
		is.job.IDMap[cfg.ID] = newCfg.ID
	}

	for _, committed := range []*content.Item{newCourse, newCfg} {
		s, err := im.schemas.GetSchema(ctx, string(committed.Type), is.newCourseID)
		if err != nil {
			return err
		}
		defaulted := committed.Clone().Properties
		if defaulted == nil {
			defaulted = map[string]any{}
		}
		s.ApplyDefaults(defaulted)
		if _, err := im.store.Update(ctx, content.Filter{ID: committed.ID}, content.Patch(defaulted)); err != nil {
			return err
		}
	}
	return nil
}

// insertLevel commits one hierarchy level as a concurrent batch. Structural
// problems abort immediately; per-item validation errors are collected and
// reported together once the level completes.
func (im *Importer) insertLevel(ctx context.Context, is *importState, sorted *hierarchy.Sorted, level []string) error {
	var mu sync.Mutex
	var itemErrs []error

	// Every parent of this level was committed in an earlier level, so a
	// snapshot taken here is complete. Goroutines read the snapshot and only
	// write the live map under mu, never the other way around.
	ids := make(map[string]string, len(is.job.IDMap))
	for oldID, newID := range is.job.IDMap {
		ids[oldID] = newID
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range level {
		it := sorted.Items[id]
		g.Go(func() error {
			prepared, err := im.prepareItem(gctx, is, it, ids)
			if err != nil {
				if errors.IsKind(err, errors.KindValidation) {
					mu.Lock()
					itemErrs = append(itemErrs, err)
					mu.Unlock()
					return nil // let siblings finish, fail the level afterward
				}
				return err
			}
			committed, err := im.store.Insert(gctx, prepared, content.InsertOptions{})
			if err != nil {
				return err
			}
			mu.Lock()
			is.job.IDMap[it.ID] = committed.ID
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(itemErrs) > 0 {
		msgs := make([]string, len(itemErrs))
		for i, e := range itemErrs {
			msgs[i] = e.Error()
		}
		return errors.New(errors.KindValidation, "level completed with item errors").
			WithContext("errors", msgs).
			WithContext("count", len(itemErrs))
	}
	return nil
}

// prepareItem runs the per-item import pipeline: migration chain, parent
// rewrite via the given id map, asset-reference rewrite via the asset map
// (schema flagged fields only), plugin key rewrite, then sanitize and
// validate. ids must be safe to read for the duration of the call.
func (im *Importer) prepareItem(ctx context.Context, is *importState, it *content.Item, ids map[string]string) (*content.Item, error) {
	p := it.Clone()
	migrations.Run(p, &migrations.Context{ComponentRenames: im.componentRenames})

	oldID := p.ID
	if p.LocalID == "" {
		p.LocalID = oldID
	}
	p.ID = ""

	switch p.Type {
	case content.TypeCourse:
		p.ParentID = ""
		p.CourseID = ""
	case content.TypeConfig:
		// parent assigned by the caller once the course id exists
	default:
		newParent, ok := ids[p.ParentID]
		if !ok {
			return nil, errors.StructuralError("item parent was never committed").
				WithContext("item_id", oldID).
				WithContext("parent_id", p.ParentID)
		}
		p.ParentID = newParent
		p.CourseID = is.newCourseID
	}

	if p.Type == content.TypeComponent && p.Component != "" {
		name, ok := is.componentPlugins[p.Component]
		if !ok {
			return nil, errors.ValidationError(oldID, "component",
				"component key not declared by the package manifest: "+p.Component)
		}
		p.Component = name
	}

	s, err := im.schemas.GetSchema(ctx, string(p.Type), is.newCourseID)
	if err != nil {
		return nil, err
	}
	im.rewriteAssetRefs(is, s, p, oldID)
	s.Sanitize(p.Properties)
	if err := s.Validate(oldID, p.Properties); err != nil {
		return nil, err
	}
	return p, nil
}

// rewriteAssetRefs maps schema-flagged asset references onto stored asset
// ids. Unresolvable references are dropped with a warning so no stale
// reference string ever reaches the store.
func (im *Importer) rewriteAssetRefs(is *importState, s *schema.Schema, p *content.Item, oldID string) {
	for _, ref := range s.AssetRefs(p.Properties) {
		if strings.HasPrefix(ref.Value, "http://") || strings.HasPrefix(ref.Value, "https://") {
			continue // remote assets stay remote
		}
		id, ok := is.job.AssetMap[ref.Value]
		if !ok {
			id, ok = is.job.AssetMap[path.Base(ref.Value)]
		}
		if !ok {
			is.job.Report.Warnf("item %s: asset reference %q not found in package, field dropped", oldID, ref.Value)
			schema.DeleteValue(p.Properties, ref.Path)
			continue
		}
		schema.SetValue(p.Properties, ref.Path, id)
	}
}

// assignSiblingOrder gives explicit sort orders to siblings that lack one,
// following their package document order, so the store round trips sibling
// order exactly.
func assignSiblingOrder(sorted *hierarchy.Sorted) {
	for _, children := range sorted.Children {
		for i, id := range children {
			it := sorted.Items[id]
			if it.SortOrder == nil {
				order := i + 1
				it.SortOrder = &order
			}
		}
	}
}
