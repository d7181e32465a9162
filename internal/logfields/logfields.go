package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyRepo       = "repository"
	KeyRef        = "ref"
	KeyBranch     = "branch"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyCommit     = "commit"
	KeyOutcome    = "outcome"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Ref(r string) slog.Attr          { return slog.String(KeyRef, r) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Commit(c string) slog.Attr       { return slog.String(KeyCommit, c) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
