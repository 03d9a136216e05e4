package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration *prom.HistogramVec
	jobDuration   *prom.HistogramVec
	stageResults  *prom.CounterVec
	jobOutcome    *prom.CounterVec
	itemsImported prom.Counter
	assetsStored  prom.Counter
	pluginsInst   prom.Counter
}

// NewPrometheusRecorder constructs and registers metrics on the registry.
// A nil registry gets a fresh private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "courseforge",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual job stages",
			Buckets:   prom.DefBuckets,
		}, []string{"action", "stage"}),
		jobDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "courseforge",
			Name:      "job_duration_seconds",
			Help:      "Total duration of build/import jobs",
			Buckets:   prom.DefBuckets,
		}, []string{"action"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "courseforge",
			Name:      "stage_results_total",
			Help:      "Stage results by classification",
		}, []string{"action", "stage", "result"}),
		jobOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "courseforge",
			Name:      "job_outcomes_total",
			Help:      "Job outcomes by action",
		}, []string{"action", "outcome"}),
		itemsImported: prom.NewCounter(prom.CounterOpts{
			Namespace: "courseforge",
			Name:      "content_items_imported_total",
			Help:      "Content items committed to the store by import jobs",
		}),
		assetsStored: prom.NewCounter(prom.CounterOpts{
			Namespace: "courseforge",
			Name:      "assets_stored_total",
			Help:      "Assets written to the asset store",
		}),
		pluginsInst: prom.NewCounter(prom.CounterOpts{
			Namespace: "courseforge",
			Name:      "plugins_installed_total",
			Help:      "Plugins installed during import jobs",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.jobDuration, pr.stageResults,
		pr.jobOutcome, pr.itemsImported, pr.assetsStored, pr.pluginsInst)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(action, stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(action, stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveJobDuration(action string, d time.Duration) {
	p.jobDuration.WithLabelValues(action).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(action, stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(action, stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncJobOutcome(action, outcome string) {
	p.jobOutcome.WithLabelValues(action, outcome).Inc()
}

func (p *PrometheusRecorder) IncItemsImported(n int) {
	p.itemsImported.Add(float64(n))
}

func (p *PrometheusRecorder) IncAssetsStored(n int) {
	p.assetsStored.Add(float64(n))
}

func (p *PrometheusRecorder) IncPluginsInstalled(n int) {
	p.pluginsInst.Add(float64(n))
}
