package builder

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/courseforge/courseforge/internal/content"
	"github.com/courseforge/courseforge/internal/errors"
	"github.com/courseforge/courseforge/internal/hierarchy"
	"github.com/courseforge/courseforge/internal/job"
	"github.com/courseforge/courseforge/internal/metrics"
	"github.com/courseforge/courseforge/internal/pkgfs"
	"github.com/courseforge/courseforge/internal/plugin"
)

// Stage names, in run order. Compile is skipped for raw-source export.
const (
	stageLoad      = "load"
	stageTransform = "transform"
	stageAssemble  = "assemble"
	stageCompile   = "compile"
	stagePackage   = "package"
	stageRecord    = "record"
)

// stage is a discrete unit of work in a build run.
type stage struct {
	name string
	fn   func(ctx context.Context, bs *buildState) error
}

// buildState carries mutable state across build stages.
type buildState struct {
	job    *job.Job
	course *content.Item
	config *content.Item
	items  []*content.Item
	sorted *hierarchy.Sorted

	enabled  []*plugin.Descriptor
	disabled []*plugin.Descriptor
	// byComponentKey maps a plugin's public component key to its descriptor.
	byComponentKey map[string]*plugin.Descriptor

	layout   *pkgfs.Layout
	location string            // final output location
	versions map[string]string // plugin name -> version used

	timings map[string]time.Duration
	start   time.Time
}

func newBuildState(j *job.Job) *buildState {
	return &buildState{
		job:            j,
		byComponentKey: make(map[string]*plugin.Descriptor),
		versions:       make(map[string]string),
		timings:        make(map[string]time.Duration),
		start:          time.Now(),
	}
}

// runStages executes stages in order, recording timing and metrics, and stops
// on the first failure. Unknown errors are wrapped so callers always get a
// structured error carrying the failing stage.
func (b *Builder) runStages(ctx context.Context, bs *buildState, stages []stage) error {
	action := string(bs.job.Action)
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.KindInternal, "build canceled").
				WithContext("stage", st.name)
		}
		t0 := time.Now()
		err := st.fn(ctx, bs)
		dur := time.Since(t0)
		bs.timings[st.name] = dur
		b.recorder.ObserveStageDuration(action, st.name, dur)
		if err != nil {
			b.recorder.IncStageResult(action, st.name, metrics.ResultFatal)
			var se *errors.Error
			if !stderrors.As(err, &se) {
				err = errors.Wrap(err, errors.KindInternal, "build stage failed")
			}
			var withStage *errors.Error
			stderrors.As(err, &withStage)
			withStage.WithContext("stage", st.name)
			slog.Error("Build stage failed", "stage", st.name, "course_id", bs.job.CourseID, "error", err)
			return err
		}
		b.recorder.IncStageResult(action, st.name, metrics.ResultSuccess)
		slog.Debug("Build stage complete", "stage", st.name, "duration", dur)
	}
	return nil
}
