package engine

import (
	"fmt"
	"strings"
	"time"
)

// SpawnError means the child process never started: missing executable,
// permission problem, or a broken pipe setup. No partial text exists.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start process: %v", e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError means the process exited with a status the resolver treats as a
// failure. Stderr holds the tail of the diagnostic stream.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("process exited with status %d", e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// IdleTimeoutError means no decoded events arrived for the configured idle
// window and the invocation was declared wedged. Callers should not treat
// this as evidence the underlying task failed; retrying with a different
// model is explicitly the wrong remedy.
type IdleTimeoutError struct {
	Quiet time.Duration
}

func (e *IdleTimeoutError) Error() string {
	return fmt.Sprintf("no stream events for %s, aborting invocation", e.Quiet)
}
