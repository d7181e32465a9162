package gitrepo

import (
	"log/slog"
	"time"

	"git.skarv.dev/infra/gitmirror/internal/logfields"
)

// withRetry runs fn under the client's retry policy. Permanent errors
// (auth failures, missing refs, rejected pushes) short-circuit: retrying
// them only hammers the remote with requests that cannot succeed.
func withRetry[T any](c *Client, op, target string, fn func() (T, error)) (T, error) {
	var zero T
	if c.policy.MaxRetries <= 0 {
		return fn()
	}

	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.policy.Delay(attempt)
			slog.Warn("Retrying git operation",
				slog.String("op", op),
				slog.String("target", target),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				logfields.Error(lastErr))
			time.Sleep(delay)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanentError(err) {
			slog.Debug("Permanent error, not retrying",
				slog.String("op", op),
				slog.String("target", target),
				logfields.Error(err))
			return zero, err
		}
	}
	return zero, lastErr
}

// withRetry on the client wraps string-returning operations; kept as a
// method so call sites read naturally.
func (c *Client) withRetry(op, target string, fn func() (string, error)) (string, error) {
	return withRetry(c, op, target, fn)
}
