package engine

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
)

// streamLine mirrors the subset of the CLI's stream-json records the engine
// cares about. Unknown fields are ignored by encoding/json.
type streamLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
	Message   *struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

// contentBlock is one entry in an assistant message's content array.
type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Decoder turns a raw byte stream into typed events. It keeps partial-line
// bytes across Feed calls and never fails: a malformed line becomes an
// Unrecognized event instead of terminating decoding.
type Decoder struct {
	buf []byte
	log *slog.Logger
}

// NewDecoder creates a decoder. A nil logger disables decode logging.
func NewDecoder(log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Decoder{log: log}
}

// Feed appends a chunk of raw output and returns the events decoded from
// every complete line it now holds. Bytes after the last newline are
// retained for the next call.
func (d *Decoder) Feed(p []byte) []Event {
	d.buf = append(d.buf, p...)
	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return events
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		events = append(events, d.decodeLine(line)...)
	}
}

// Flush decodes any trailing bytes that never received a newline. Called
// once when the stream ends so a final unterminated record is not lost.
func (d *Decoder) Flush() []Event {
	if len(bytes.TrimSpace(d.buf)) == 0 {
		d.buf = nil
		return nil
	}
	events := d.decodeLine(d.buf)
	d.buf = nil
	return events
}

// decodeLine parses one line. An assistant message can carry several content
// blocks, so a single line may yield more than one event.
func (d *Decoder) decodeLine(line []byte) []Event {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	var msg streamLine
	if err := json.Unmarshal(line, &msg); err != nil {
		d.log.Debug("unparseable stream line", "error", err, "line", truncateForLog(string(line)))
		return []Event{Unrecognized{Raw: string(line)}}
	}

	switch msg.Type {
	case "system":
		if msg.Subtype == "init" && msg.SessionID != "" {
			return []Event{SessionIdentifier{ID: msg.SessionID}}
		}
		return []Event{Diagnostic{Raw: string(line)}}

	case "assistant":
		var events []Event
		if msg.Message != nil {
			for _, block := range msg.Message.Content {
				switch block.Type {
				case "text":
					if block.Text != "" {
						events = append(events, AssistantDelta{Text: block.Text})
					}
				case "tool_use":
					events = append(events, ToolInvocation{
						ToolName:  block.Name,
						ToolUseID: block.ID,
						Payload:   block.Input,
					})
				}
			}
		}
		if len(events) == 0 {
			return []Event{Diagnostic{Raw: string(line)}}
		}
		return events

	case "result":
		return []Event{ResultEvent{Text: msg.Result, Subtype: msg.Subtype, IsError: msg.IsError}}

	case "":
		d.log.Debug("stream line missing type", "line", truncateForLog(string(line)))
		return []Event{Unrecognized{Raw: string(line)}}

	default:
		return []Event{Diagnostic{Raw: string(line)}}
	}
}

func truncateForLog(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
