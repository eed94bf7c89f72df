package engine

import "testing"

func TestAccumulatorDeltasInOrder(t *testing.T) {
	var acc accumulator
	acc.fold(AssistantDelta{Text: "one "})
	acc.fold(AssistantDelta{Text: "two "})
	acc.fold(AssistantDelta{Text: "three"})

	if got := acc.canonical(); got != "one two three" {
		t.Errorf("expected concatenated deltas, got %q", got)
	}
}

func TestAccumulatorResultOverridesDeltas(t *testing.T) {
	var acc accumulator
	acc.fold(AssistantDelta{Text: "partial thinking"})
	acc.fold(ResultEvent{Text: "the final answer", Subtype: "success"})

	if got := acc.canonical(); got != "the final answer" {
		t.Errorf("result event should win over deltas, got %q", got)
	}
	if got := acc.subtype(); got != "success" {
		t.Errorf("expected subtype success, got %q", got)
	}
}

func TestAccumulatorEmptyResultFallsBackToDeltas(t *testing.T) {
	var acc accumulator
	acc.fold(AssistantDelta{Text: "accumulated text"})
	acc.fold(ResultEvent{Text: "", Subtype: "success"})

	if got := acc.canonical(); got != "accumulated text" {
		t.Errorf("empty result should not erase deltas, got %q", got)
	}
}

func TestAccumulatorEmptyResultNoDeltas(t *testing.T) {
	var acc accumulator
	acc.fold(ResultEvent{Text: "", Subtype: "error_during_execution", IsError: true})

	if got := acc.canonical(); got != "" {
		t.Errorf("expected empty canonical text, got %q", got)
	}
	if got := acc.subtype(); got != "error_during_execution" {
		t.Errorf("expected subtype preserved, got %q", got)
	}
}

func TestAccumulatorNoEvents(t *testing.T) {
	var acc accumulator
	if got := acc.canonical(); got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
	if got := acc.subtype(); got != "" {
		t.Errorf("expected empty subtype, got %q", got)
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   string
	}{
		{
			name: "deltas only",
			events: []Event{
				AssistantDelta{Text: "a"},
				AssistantDelta{Text: "b"},
			},
			want: "ab",
		},
		{
			name: "result wins",
			events: []Event{
				AssistantDelta{Text: "draft"},
				ResultEvent{Text: "final"},
			},
			want: "final",
		},
		{
			name: "non-text events ignored",
			events: []Event{
				SessionIdentifier{ID: "s"},
				Diagnostic{Raw: "x"},
				AssistantDelta{Text: "kept"},
				Unrecognized{Raw: "y"},
			},
			want: "kept",
		},
		{
			name:   "empty stream",
			events: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonicalize(tt.events); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
