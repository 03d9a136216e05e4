package importer

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/courseforge/courseforge/internal/content"
	"github.com/courseforge/courseforge/internal/errors"
	"github.com/courseforge/courseforge/internal/job"
	"github.com/courseforge/courseforge/internal/metrics"
	"github.com/courseforge/courseforge/internal/pkgfs"
	"github.com/courseforge/courseforge/internal/plugin"
)

// Stage names, in run order. Content import is skipped when not requested.
const (
	stageUnpack         = "unpack"
	stagePrepare        = "prepare"
	stageLoadAssets     = "load_assets"
	stageResolvePlugins = "resolve_plugins"
	stageImportContent  = "import_content"
)

type stage struct {
	name string
	fn   func(ctx context.Context, is *importState) error
}

// importState carries mutable state across import stages, including
// everything cleanup needs to undo on failure.
type importState struct {
	job         *job.Job
	archivePath string

	layout   *pkgfs.Layout
	manifest *pkgfs.Manifest

	// package documents
	course *content.Item
	config *content.Item
	items  []*content.Item // course plus all tree items, config excluded

	// componentPlugins maps a component's public attribute key to its plugin
	// name, from the package manifest.
	componentPlugins map[string]string

	resolution *plugin.Resolution
	versions   map[string]string

	// rollback bookkeeping
	newCourseID     string
	createdAssetIDs []string
	installedIDs    []string

	start time.Time
}

func newImportState(j *job.Job, archivePath string) *importState {
	return &importState{
		job:              j,
		archivePath:      archivePath,
		componentPlugins: make(map[string]string),
		versions:         make(map[string]string),
		start:            time.Now(),
	}
}

// runStages executes stages in order, stopping on the first fatal error.
// Structural problems fail immediately; the returned error always carries the
// failing stage.
func (im *Importer) runStages(ctx context.Context, is *importState, stages []stage) error {
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.KindInternal, "import canceled").
				WithContext("stage", st.name)
		}
		t0 := time.Now()
		err := st.fn(ctx, is)
		dur := time.Since(t0)
		im.recorder.ObserveStageDuration(string(job.ActionImport), st.name, dur)
		if err != nil {
			im.recorder.IncStageResult(string(job.ActionImport), st.name, metrics.ResultFatal)
			var se *errors.Error
			if !stderrors.As(err, &se) {
				err = errors.Wrap(err, errors.KindInternal, "import stage failed")
			}
			var withStage *errors.Error
			stderrors.As(err, &withStage)
			withStage.WithContext("stage", st.name)
			slog.Error("Import stage failed", "stage", st.name, "error", err)
			return err
		}
		im.recorder.IncStageResult(string(job.ActionImport), st.name, metrics.ResultSuccess)
		slog.Debug("Import stage complete", "stage", st.name, "duration", dur)
		if is.job.Settings.DryRun && st.name == stageResolvePlugins {
			is.job.Report.Infof("dry run: stopping after plugin resolution")
			return nil
		}
	}
	return nil
}
