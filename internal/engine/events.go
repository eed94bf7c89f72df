package engine

import "encoding/json"

// Event is a single decoded record from the CLI's line-delimited stream
// output. The set of variants is closed: anything the decoder cannot place
// lands in Diagnostic or Unrecognized rather than being dropped.
type Event interface {
	event()
}

// AssistantDelta is a fragment of assistant text, in arrival order.
type AssistantDelta struct {
	Text string
}

// ToolInvocation signals that the process wants to use a named capability.
// For interactive tools this suspends the stream until an answer arrives.
type ToolInvocation struct {
	ToolName  string
	ToolUseID string
	Payload   json.RawMessage
}

// SessionIdentifier carries the CLI session id, reported once at startup.
type SessionIdentifier struct {
	ID string
}

// ResultEvent is the process's own final answer. When present it overrides
// the accumulated deltas at resolution time.
type ResultEvent struct {
	Text    string
	Subtype string
	IsError bool
}

// Diagnostic is a well-formed record of a kind the engine has no use for
// (system notices, partial-message events, usage reports).
type Diagnostic struct {
	Raw string
}

// Unrecognized is a line that could not be parsed at all.
type Unrecognized struct {
	Raw string
}

func (AssistantDelta) event()    {}
func (ToolInvocation) event()    {}
func (SessionIdentifier) event() {}
func (ResultEvent) event()       {}
func (Diagnostic) event()        {}
func (Unrecognized) event()      {}
