package engine

import "strings"

// accumulator folds events into a best-effort text result. Deltas append in
// arrival order; a ResultEvent is recorded as canonical. Exactly one
// goroutine writes to it for the lifetime of an invocation.
type accumulator struct {
	deltas strings.Builder
	result *ResultEvent
}

func (a *accumulator) fold(ev Event) {
	switch ev := ev.(type) {
	case AssistantDelta:
		a.deltas.WriteString(ev.Text)
	case ResultEvent:
		a.result = &ev
	}
}

// canonical returns the text for resolution. A ResultEvent is the process's
// own final answer and wins over the accumulated deltas, with one exception:
// an empty-string result does not erase non-empty delta text.
func (a *accumulator) canonical() string {
	if a.result != nil {
		if a.result.Text == "" && a.deltas.Len() > 0 {
			return a.deltas.String()
		}
		return a.result.Text
	}
	return a.deltas.String()
}

// subtype returns the result event's subtype, or "" when none arrived.
func (a *accumulator) subtype() string {
	if a.result == nil {
		return ""
	}
	return a.result.Subtype
}

// Canonicalize folds a decoded event sequence into its final text, applying
// the same result-over-deltas rule the live run loop uses. Useful for
// reconstructing an answer from a recorded stream.
func Canonicalize(events []Event) string {
	var acc accumulator
	for _, ev := range events {
		acc.fold(ev)
	}
	return acc.canonical()
}
