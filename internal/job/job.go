// Package job defines the per-request job context shared by the build and
// import orchestrators. A Job is created for one request, fully consumed
// within one run, and discarded; nothing in here outlives the request.
package job

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Action enumerates the job kinds.
type Action string

const (
	ActionPreview Action = "preview" // build and relocate compiled output for serving
	ActionPublish Action = "publish" // build and archive compiled output
	ActionExport  Action = "export"  // archive raw source, compiler skipped
	ActionImport  Action = "import"  // package into the content store
)

// Settings carries the caller's switches for one job.
type Settings struct {
	DryRun        bool
	ImportContent bool
	ImportPlugins bool
	UpdatePlugins bool
	// GlobalTags are merged into every imported asset's tag list.
	GlobalTags []string
}

// Job is the explicit context object passed through one build or import run.
// It replaces any module-wide mutable cache: all per-run state lives here and
// is invalidated by discarding the job.
type Job struct {
	ID       string
	Action   Action
	CourseID string
	// CreatedBy identifies the requesting user for record eviction.
	CreatedBy string
	// WorkDir is the job-owned scratch directory, removed when the job ends.
	WorkDir  string
	Settings Settings
	// IDMap accumulates old-id -> new-id as items commit.
	IDMap map[string]string
	// AssetMap accumulates package asset reference -> stored asset id.
	AssetMap map[string]string
	Report   *Report
}

// New creates a job with empty maps and a fresh report.
func New(action Action, courseID, createdBy string, settings Settings) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Action:    action,
		CourseID:  courseID,
		CreatedBy: createdBy,
		Settings:  settings,
		IDMap:     make(map[string]string),
		AssetMap:  make(map[string]string),
		Report:    NewReport(),
	}
}

// Report separates informational notices from warnings. The fatal error, if
// any, travels on the job result rather than in here.
type Report struct {
	mu   sync.Mutex
	Info []string
	Warn []string
}

// NewReport returns an empty report.
func NewReport() *Report { return &Report{} }

// Infof records an informational notice.
func (r *Report) Infof(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}

// Warnf records a warning.
func (r *Report) Warnf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warn = append(r.Warn, fmt.Sprintf(format, args...))
}

// Snapshot returns copies of the info and warning lists.
func (r *Report) Snapshot() (info, warn []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.Info...), append([]string{}, r.Warn...)
}
