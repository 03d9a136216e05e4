// Package metrics provides observability hooks for build and import jobs.
// Components receive a Recorder by injection; the NoopRecorder default means
// callers never nil-check.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultWarning ResultLabel = "warning"
	ResultFatal   ResultLabel = "fatal"
)

// Recorder defines observability hooks for job and stage metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveStageDuration(action, stage string, d time.Duration)
	ObserveJobDuration(action string, d time.Duration)
	IncStageResult(action, stage string, result ResultLabel)
	IncJobOutcome(action, outcome string) // outcome: success|failed
	IncItemsImported(n int)
	IncAssetsStored(n int)
	IncPluginsInstalled(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, string, time.Duration) {}
func (NoopRecorder) ObserveJobDuration(string, time.Duration)           {}
func (NoopRecorder) IncStageResult(string, string, ResultLabel)         {}
func (NoopRecorder) IncJobOutcome(string, string)                       {}
func (NoopRecorder) IncItemsImported(int)                               {}
func (NoopRecorder) IncAssetsStored(int)                                {}
func (NoopRecorder) IncPluginsInstalled(int)                            {}
