package gitrepo

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Typed errors enabling structured classification without string parsing upstream.

type AuthError struct {
	Op, URL string
	Err     error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s auth error for %s: %v", e.Op, e.URL, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Op, URL, Ref string
	Err          error
}

func (e *NotFoundError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s: %s ref %q not found: %v", e.Op, e.URL, e.Ref, e.Err)
	}
	return fmt.Sprintf("%s: %s not found: %v", e.Op, e.URL, e.Err)
}
func (e *NotFoundError) Unwrap() error { return e.Err }

// PushRejectedError indicates the destination branch moved underneath us.
// There is no retry or merge logic for this case: the run fails.
type PushRejectedError struct {
	URL, Branch string
	Err         error
}

func (e *PushRejectedError) Error() string {
	return fmt.Sprintf("push rejected for %s@%s: %v", e.URL, e.Branch, e.Err)
}
func (e *PushRejectedError) Unwrap() error { return e.Err }

type RateLimitError struct {
	Op, URL string
	Err     error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited for %s: %v", e.Op, e.URL, e.Err)
}
func (e *RateLimitError) Unwrap() error { return e.Err }

type NetworkTimeoutError struct {
	Op, URL string
	Err     error
}

func (e *NetworkTimeoutError) Error() string {
	return fmt.Sprintf("%s network timeout for %s: %v", e.Op, e.URL, e.Err)
}
func (e *NetworkTimeoutError) Unwrap() error { return e.Err }

// classifyTransportError wraps underlying go-git errors into typed variants
// for a clone or fetch style operation.
func classifyTransportError(op, url string, err error) error {
	if err == nil {
		return nil
	}
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "auth fail") ||
		strings.Contains(l, "authorization") || strings.Contains(l, "invalid username or password"):
		return &AuthError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "not found") || strings.Contains(l, "repository does not exist"):
		return &NotFoundError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		return &RateLimitError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "timeout") || strings.Contains(l, "i/o timeout"):
		return &NetworkTimeoutError{Op: op, URL: url, Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, url, err)
}

// classifyPushError maps push failures onto typed variants. Non-fast-forward
// rejections get their own type so callers can report the concurrency gap
// distinctly from credential problems.
func classifyPushError(url, branch string, err error) error {
	if err == nil {
		return nil
	}
	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "non-fast-forward") || strings.Contains(l, "fetch first") ||
		strings.Contains(l, "cannot lock ref"):
		return &PushRejectedError{URL: url, Branch: branch, Err: err}
	case strings.Contains(l, "authentication") || strings.Contains(l, "authorization") ||
		strings.Contains(l, "permission") || strings.Contains(l, "denied"):
		return &AuthError{Op: "push", URL: url, Err: err}
	}
	return classifyTransportError("push", url, err)
}

// isPermanentError reports whether retrying the operation cannot help.
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.As(err, new(*AuthError)),
		errors.As(err, new(*NotFoundError)),
		errors.As(err, new(*PushRejectedError)):
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") || strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return true
	}
	if strings.Contains(msg, "not found") || strings.Contains(msg, "invalid reference") {
		return true
	}
	if strings.Contains(msg, "unsupported protocol") {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return !nerr.Timeout()
	}
	return false
}

// IsPermanentError is exposed for callers that need the same classification.
var IsPermanentError = isPermanentError
