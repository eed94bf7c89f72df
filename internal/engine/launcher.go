package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// contentInput is one block in a stream-json input message.
type contentInput struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// streamInput is the record format written to the CLI's stdin: the initial
// prompt and, after a suspension, the continuation keyed by tool_use_id.
type streamInput struct {
	Type    string `json:"type"`
	Message struct {
		Role    string         `json:"role"`
		Content []contentInput `json:"content"`
	} `json:"message"`
}

// process wraps the running CLI child and its three wired streams.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *tailBuffer
	log    *slog.Logger

	killOnce  sync.Once
	killTimer *time.Timer
}

// launch builds the command line from the request and starts the child.
// Any failure here is a SpawnError; no partial text is meaningful yet.
func launch(binary string, req Request, log *slog.Logger) (*process, error) {
	args := []string{
		"--print",
		"--verbose",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
	}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", req.PermissionMode)
	}

	cmd := exec.Command(binary, args...)
	cmd.Dir = req.WorkingDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Err: err}
	}
	stderr := &tailBuffer{max: stderrTailLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Err: err}
	}

	log.Debug("process started", "pid", cmd.Process.Pid, "args", args)
	return &process{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr, log: log}, nil
}

// sendPrompt writes the initial user message to the child's stdin.
func (p *process) sendPrompt(text string) error {
	return p.writeInput([]contentInput{{Type: "text", Text: text}})
}

// sendAnswer writes the continuation record for a suspended tool call.
// Answers are serialized as the tool result content.
func (p *process) sendAnswer(toolUseID string, answers map[string]string) error {
	body, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to serialize answers: %w", err)
	}
	return p.writeInput([]contentInput{{
		Type:      "tool_result",
		ToolUseID: toolUseID,
		Content:   string(body),
	}})
}

func (p *process) writeInput(content []contentInput) error {
	msg := streamInput{Type: "user"}
	msg.Message.Role = "user"
	msg.Message.Content = content

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize input message: %w", err)
	}
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to stdin: %w", err)
	}
	return nil
}

// closeInput closes the child's stdin so a well-behaved CLI sees end of
// input and exits on its own once its stream is done.
func (p *process) closeInput() {
	_ = p.stdin.Close()
}

// terminate asks the child to stop: SIGTERM first, SIGKILL if it lingers.
// Idempotent; triggering cancellation more than once kills at most once.
func (p *process) terminate() {
	p.killOnce.Do(func() {
		proc := p.cmd.Process
		if proc == nil {
			return
		}
		p.log.Debug("terminating process", "pid", proc.Pid)
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			p.log.Debug("SIGTERM failed, killing", "error", err)
			_ = proc.Kill()
			return
		}
		p.killTimer = time.AfterFunc(killGrace, func() {
			_ = proc.Kill()
		})
	})
}

// wait reaps the child and normalizes its exit status. A signal death is
// reported shell-style as 128+signo so SIGTERM and SIGINT land on the 143
// and 130 rows of the resolver's policy table.
func (p *process) wait() int {
	err := p.cmd.Wait()
	if p.killTimer != nil {
		p.killTimer.Stop()
	}
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}

	p.log.Warn("process wait failed", "error", err)
	return -1
}

// tailBuffer keeps the last max bytes written to it. Used to capture the
// diagnostic stream without letting a chatty child grow memory unbounded.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
