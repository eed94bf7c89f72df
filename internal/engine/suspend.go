package engine

import (
	"encoding/json"
	"sync"
)

// pendingQuestion is the single-resolution answer slot created when the
// stream suspends on an interactive tool call. At most one exists per
// invocation at any time. The first resolve wins; everything after it,
// including answers delivered after cancellation, is a no-op.
type pendingQuestion struct {
	toolUseID string
	answers   chan map[string]string
	once      sync.Once
}

func newPendingQuestion(toolUseID string) *pendingQuestion {
	return &pendingQuestion{
		toolUseID: toolUseID,
		answers:   make(chan map[string]string, 1),
	}
}

// resolve delivers the answer set. Returns false if the slot was already
// resolved or withdrawn.
func (p *pendingQuestion) resolve(answers map[string]string) bool {
	resolved := false
	p.once.Do(func() {
		p.answers <- answers
		resolved = true
	})
	return resolved
}

// QuestionItem is one sub-question inside an interactive tool call.
type QuestionItem struct {
	Question    string
	Header      string
	Options     []string
	MultiSelect bool
}

// Question is handed to the onQuestion callback when the process pauses to
// ask the user something. The callback must not block: deliver the answer
// later from any goroutine via Answer.
type Question struct {
	ToolUseID string
	Items     []QuestionItem

	pending *pendingQuestion
}

// Answer resumes the suspended stream with answers keyed by sub-question
// text. Returns false if the invocation already resumed, timed out, or was
// cancelled, in which case the answer is discarded.
func (q *Question) Answer(answers map[string]string) bool {
	return q.pending.resolve(answers)
}

// NewSuspendedQuestion builds a Question detached from a live invocation.
// Used by tests in other packages that need a suspended question.
func NewSuspendedQuestion(toolUseID string, items []QuestionItem) *Question {
	return &Question{
		ToolUseID: toolUseID,
		Items:     items,
		pending:   newPendingQuestion(toolUseID),
	}
}

// TakeAnswers returns the answers delivered to a detached question, if any.
// Used by tests in other packages alongside NewSuspendedQuestion.
func (q *Question) TakeAnswers() (map[string]string, bool) {
	select {
	case answers := <-q.pending.answers:
		return answers, true
	default:
		return nil, false
	}
}

// questionPayload mirrors the interactive tool's input shape. Options arrive
// as objects with a label field.
type questionPayload struct {
	Questions []struct {
		Question    string `json:"question"`
		Header      string `json:"header"`
		MultiSelect bool   `json:"multiSelect"`
		Options     []struct {
			Label string `json:"label"`
		} `json:"options"`
	} `json:"questions"`
}

// parseQuestionItems extracts the sub-questions from a tool invocation
// payload. A payload that does not parse yields a single free-form item so
// the suspension flow still works.
func parseQuestionItems(payload json.RawMessage) []QuestionItem {
	var parsed questionPayload
	if err := json.Unmarshal(payload, &parsed); err != nil || len(parsed.Questions) == 0 {
		return []QuestionItem{{Question: string(payload)}}
	}

	items := make([]QuestionItem, 0, len(parsed.Questions))
	for _, q := range parsed.Questions {
		item := QuestionItem{
			Question:    q.Question,
			Header:      q.Header,
			MultiSelect: q.MultiSelect,
		}
		for _, opt := range q.Options {
			item.Options = append(item.Options, opt.Label)
		}
		items = append(items, item)
	}
	return items
}

// defaultAnswers picks each question's first option. Used when no question
// handler is configured so an unattended invocation cannot wedge waiting
// for a human.
func defaultAnswers(items []QuestionItem) map[string]string {
	answers := make(map[string]string, len(items))
	for _, item := range items {
		if len(item.Options) > 0 {
			answers[item.Question] = item.Options[0]
		} else {
			answers[item.Question] = "Continue as you see fit"
		}
	}
	return answers
}
