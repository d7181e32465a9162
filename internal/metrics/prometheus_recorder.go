package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	runDuration   prom.Histogram
	runOutcome    *prom.CounterVec
	commits       prom.Counter
	filesChanged  *prom.CounterVec
	pushFailures  prom.Counter
	cloneDuration *prom.HistogramVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "gitmirror",
			Name:      "run_duration_seconds",
			Help:      "Total mirror run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitmirror",
			Name:      "runs_total",
			Help:      "Mirror runs by final outcome",
		}, []string{"outcome"})
		pr.commits = prom.NewCounter(prom.CounterOpts{
			Namespace: "gitmirror",
			Name:      "commits_total",
			Help:      "Mirror commits created and pushed",
		})
		pr.filesChanged = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitmirror",
			Name:      "files_changed_total",
			Help:      "Files touched by mirror runs, by operation",
		}, []string{"op"})
		pr.pushFailures = prom.NewCounter(prom.CounterOpts{
			Namespace: "gitmirror",
			Name:      "push_failures_total",
			Help:      "Push attempts that failed after retries",
		})
		pr.cloneDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "gitmirror",
			Name:      "clone_duration_seconds",
			Help:      "Duration of repository clone operations",
			Buckets:   prom.DefBuckets,
		}, []string{"role", "result"})
		reg.MustRegister(pr.runDuration, pr.runOutcome, pr.commits, pr.filesChanged, pr.pushFailures, pr.cloneDuration)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome OutcomeLabel) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncCommits() {
	if p == nil || p.commits == nil {
		return
	}
	p.commits.Inc()
}

func (p *PrometheusRecorder) AddFilesChanged(op string, n int) {
	if p == nil || p.filesChanged == nil || n <= 0 {
		return
	}
	p.filesChanged.WithLabelValues(op).Add(float64(n))
}

func (p *PrometheusRecorder) IncPushFailure() {
	if p == nil || p.pushFailures == nil {
		return
	}
	p.pushFailures.Inc()
}

func (p *PrometheusRecorder) ObserveCloneDuration(role string, d time.Duration, success bool) {
	if p == nil || p.cloneDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.cloneDuration.WithLabelValues(role, res).Observe(d.Seconds())
}
