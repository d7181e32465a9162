package metrics

import "time"

// OutcomeLabel enumerates final run outcomes for counters.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomeNoChange OutcomeLabel = "no_change"
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeCanceled OutcomeLabel = "canceled"
)

// Recorder defines observability hooks for mirror runs. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe
// on nil receivers when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome OutcomeLabel)
	IncCommits()
	AddFilesChanged(op string, n int) // op: add|update|delete
	IncPushFailure()
	ObserveCloneDuration(role string, d time.Duration, success bool) // role: source|destination
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRunDuration(time.Duration)                 {}
func (NoopRecorder) IncRunOutcome(OutcomeLabel)                       {}
func (NoopRecorder) IncCommits()                                      {}
func (NoopRecorder) AddFilesChanged(string, int)                      {}
func (NoopRecorder) IncPushFailure()                                  {}
func (NoopRecorder) ObserveCloneDuration(string, time.Duration, bool) {}
