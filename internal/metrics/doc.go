// Package metrics provides observability hooks for gitmirror runs.
//
// The package implements the Null Object pattern so components never need
// nil checks: callers that do not configure metrics receive a NoopRecorder
// whose methods compile away. The daemon swaps in a PrometheusRecorder
// backed by its own registry and serves it via HTTPHandler on the metrics
// listener.
//
// Components receive a Recorder through dependency injection and record
// run outcomes, durations, commit counts, changed-file counts, clone
// timings, and push failures.
package metrics
