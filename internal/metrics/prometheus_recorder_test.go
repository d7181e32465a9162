package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveRunDuration(500 * time.Millisecond)
	pr.IncRunOutcome(OutcomeSuccess)
	pr.IncCommits()
	pr.AddFilesChanged("add", 3)
	pr.AddFilesChanged("update", 0) // zero adds must be a no-op
	pr.IncPushFailure()
	pr.ObserveCloneDuration("source", 150*time.Millisecond, true)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNilRecorderSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveRunDuration(time.Second)
	pr.IncRunOutcome(OutcomeFailed)
	pr.IncCommits()
	pr.AddFilesChanged("delete", 1)
	pr.IncPushFailure()
	pr.ObserveCloneDuration("destination", time.Second, false)
}

func TestNoopRecorderImplementsRecorder(t *testing.T) {
	var _ Recorder = NoopRecorder{}
	var _ Recorder = &PrometheusRecorder{}
}
