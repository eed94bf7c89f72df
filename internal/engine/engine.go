// Package engine runs one reasoning-tool CLI invocation per call: it spawns
// the child process, decodes its line-delimited stream output, accumulates
// partial results under faults, suspends around interactive questions, and
// enforces the idle and soft-ceiling timers.
//
// The package is organized into focused modules:
//   - engine.go: Engine, Request, the run loop and completion resolver
//   - decoder.go: line protocol decoder
//   - events.go: the closed event variant set
//   - accumulator.go: delta/result folding and canonicalization
//   - suspend.go: pause/resume state around interactive tool calls
//   - watchdog.go: idle and soft-ceiling timers
//   - launcher.go: process spawning, stdin continuations, termination
package engine

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Engine defaults and internal limits.
const (
	// DefaultBinary is the reasoning CLI resolved from PATH.
	DefaultBinary = "claude"

	// DefaultIdleTimeout is the maximum quiet time between decoded events
	// before an invocation is declared wedged.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultSoftCeiling is when the advisory "running long" notification
	// fires. It never stops the stream.
	DefaultSoftCeiling = 2 * time.Minute

	// killGrace is how long a terminated child gets to exit after SIGTERM
	// before it is killed outright.
	killGrace = 5 * time.Second

	// readBufferSize is the stdout read chunk size.
	readBufferSize = 32 * 1024

	// stderrTailLimit caps how much diagnostic-stream text is retained for
	// failure reports.
	stderrTailLimit = 8 * 1024

	// eventChannelBuffer decouples the stdout reader from the run loop.
	// Small on purpose: a suspended invocation should stop consuming
	// output quickly rather than buffer it without bound.
	eventChannelBuffer = 64
)

// DefaultInteractiveTools are the tool names that suspend the stream for a
// human answer.
var DefaultInteractiveTools = []string{"AskUserQuestion"}

// Engine launches and supervises CLI invocations. It holds configuration
// only; per-invocation state lives on the Run call's stack, so arbitrarily
// many invocations can run concurrently.
type Engine struct {
	binary      string
	idleTimeout time.Duration
	softCeiling time.Duration
	interactive map[string]bool
	log         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithBinary overrides the CLI executable path.
func WithBinary(path string) Option {
	return func(e *Engine) { e.binary = path }
}

// WithIdleTimeout overrides the fatal idle window.
func WithIdleTimeout(d time.Duration) Option {
	return func(e *Engine) { e.idleTimeout = d }
}

// WithSoftCeiling overrides the advisory notification threshold. Zero
// disables it.
func WithSoftCeiling(d time.Duration) Option {
	return func(e *Engine) { e.softCeiling = d }
}

// WithInteractiveTools replaces the set of tool names that suspend the
// stream.
func WithInteractiveTools(names ...string) Option {
	return func(e *Engine) {
		e.interactive = make(map[string]bool, len(names))
		for _, n := range names {
			e.interactive[n] = true
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an Engine with the given options applied over defaults.
func New(opts ...Option) *Engine {
	e := &Engine{
		binary:      DefaultBinary,
		idleTimeout: DefaultIdleTimeout,
		softCeiling: DefaultSoftCeiling,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.interactive == nil {
		WithInteractiveTools(DefaultInteractiveTools...)(e)
	}
	return e
}

// Request describes one invocation. It is not mutated by the engine.
type Request struct {
	Prompt          string
	ResumeSessionID string // resume an existing CLI session when set
	Model           string
	WorkingDir      string
	PermissionMode  string

	// StreamLog receives the raw stream bytes as they arrive. Optional.
	StreamLog io.Writer

	// OnProgress receives short activity summaries, zero or more times.
	OnProgress func(summary string)
	// OnSessionID is invoked at most once with the learned session id.
	// Persisting it is the caller's job.
	OnSessionID func(id string)
	// OnSoftCeiling is invoked at most once when the advisory timer fires.
	OnSoftCeiling func(msg string)
	// OnQuestion is invoked when the stream suspends on an interactive
	// tool call. Must not block; answer later via Question.Answer. When
	// nil, questions are auto-answered with each one's first option.
	OnQuestion func(q *Question)
}

// Result is the single successful outcome of an invocation. Interrupted
// marks partial text from a cancelled or signal-terminated run.
type Result struct {
	Text        string
	SessionID   string
	Subtype     string
	Interrupted bool
}

// invocation is the exclusively-owned per-run state. Created at Run, never
// shared across invocations, destroyed at resolution.
type invocation struct {
	eng  *Engine
	req  Request
	proc *process
	log  *slog.Logger

	events chan Event
	acc    accumulator
	wd     *watchdog

	sessionID   string
	sessionSent bool
	cancelled   bool
	idleFired   bool
}

// Run executes one invocation to its single terminal outcome. Context
// cancellation is safe at any point in the lifecycle: before spawn it
// resolves immediately, mid-stream or while suspended it terminates the
// child and returns whatever text accumulated, and after natural completion
// it is a no-op. Exactly one of result and error is non-nil.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Already-cancelled signal: resolve before spawning anything.
	if ctx.Err() != nil {
		return &Result{Interrupted: true}, nil
	}

	proc, err := launch(e.binary, req, e.log)
	if err != nil {
		return nil, err
	}

	inv := &invocation{
		eng:    e,
		req:    req,
		proc:   proc,
		log:    e.log,
		events: make(chan Event, eventChannelBuffer),
		wd:     newWatchdog(e.idleTimeout, e.softCeiling, req.OnSoftCeiling),
	}
	defer inv.wd.stop()

	if err := proc.sendPrompt(req.Prompt); err != nil {
		// The child most likely died on startup; let the exit status
		// tell the real story once the loop drains.
		e.log.Warn("failed to send prompt", "error", err)
	}

	go inv.readOutput()
	inv.loop(ctx)

	exitCode := inv.awaitExit(ctx)
	return inv.resolve(ctx, exitCode)
}

// awaitExit reaps the child after its stream ends. The cancellation gate
// and the idle timer stay in force here: a child that closes its output but
// keeps running is terminated and reaped rather than waited on forever.
func (inv *invocation) awaitExit(ctx context.Context) int {
	inv.proc.closeInput()

	exited := make(chan int, 1)
	go func() { exited <- inv.proc.wait() }()

	ctxDone := ctx.Done()
	expired := inv.wd.expired()
	if inv.cancelled {
		ctxDone = nil
	}
	if inv.idleFired {
		expired = nil
	}

	for {
		select {
		case code := <-exited:
			return code

		case <-ctxDone:
			inv.cancelled = true
			inv.proc.terminate()
			ctxDone = nil

		case <-expired:
			// The stream already delivered everything it had, so this is
			// a lingering child, not a wedged stream: terminate it and
			// let the exit status drive resolution.
			inv.log.Debug("child outlived its stream, terminating")
			inv.proc.terminate()
			expired = nil
		}
	}
}

// readOutput pumps stdout through the decoder into the event channel.
// Closes the channel on stream end, which is the loop's exit signal.
func (inv *invocation) readOutput() {
	defer close(inv.events)

	dec := NewDecoder(inv.log)
	buf := make([]byte, readBufferSize)
	for {
		n, err := inv.proc.stdout.Read(buf)
		if n > 0 {
			if inv.req.StreamLog != nil {
				_, _ = inv.req.StreamLog.Write(buf[:n])
			}
			for _, ev := range dec.Feed(buf[:n]) {
				inv.events <- ev
			}
		}
		if err != nil {
			if err != io.EOF {
				inv.log.Debug("output stream ended", "error", err)
			}
			for _, ev := range dec.Flush() {
				inv.events <- ev
			}
			return
		}
	}
}

// loop consumes events until the output stream closes, driving the timers,
// the suspension broker, and the cancellation gate.
func (inv *invocation) loop(ctx context.Context) {
	ctxDone := ctx.Done()
	expired := inv.wd.expired()

	for {
		select {
		case ev, ok := <-inv.events:
			if !ok {
				return
			}
			inv.wd.touch()
			inv.handleEvent(ctx, ev)

		case <-ctxDone:
			inv.cancelled = true
			inv.proc.terminate()
			ctxDone = nil // keep draining until stream end

		case <-expired:
			inv.idleFired = true
			inv.proc.terminate()
			expired = nil
		}
	}
}

func (inv *invocation) handleEvent(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case SessionIdentifier:
		inv.sessionID = ev.ID
		if !inv.sessionSent && inv.req.OnSessionID != nil {
			inv.sessionSent = true
			inv.req.OnSessionID(ev.ID)
		}

	case AssistantDelta:
		inv.acc.fold(ev)

	case ResultEvent:
		inv.acc.fold(ev)

	case ToolInvocation:
		if inv.eng.interactive[ev.ToolName] {
			// A question draining in during teardown has nobody left to
			// answer it.
			if !inv.cancelled && !inv.idleFired {
				inv.suspend(ctx, ev)
			}
			return
		}
		inv.progress("using " + ev.ToolName)

	case Diagnostic:
		inv.log.Debug("diagnostic stream line", "line", truncateForLog(ev.Raw))

	case Unrecognized:
		// Recovered locally; one malformed line never ends the stream.
		inv.log.Debug("unrecognized stream line", "line", truncateForLog(ev.Raw))
	}
}

// suspend pauses event consumption around an interactive tool call and
// resumes once the answer lands on the child's stdin. The question handler
// runs as its own continuation so no other invocation is held up, while
// this invocation's idle timer and cancellation gate keep operating.
func (inv *invocation) suspend(ctx context.Context, ev ToolInvocation) {
	q := &Question{
		ToolUseID: ev.ToolUseID,
		Items:     parseQuestionItems(ev.Payload),
		pending:   newPendingQuestion(ev.ToolUseID),
	}

	inv.log.Info("stream suspended on interactive tool",
		"tool", ev.ToolName, "toolUseID", ev.ToolUseID, "questions", len(q.Items))
	inv.progress("waiting for your answer")

	if inv.req.OnQuestion != nil {
		go inv.req.OnQuestion(q)
	} else {
		q.Answer(defaultAnswers(q.Items))
	}

	select {
	case answers := <-q.pending.answers:
		if err := inv.proc.sendAnswer(ev.ToolUseID, answers); err != nil {
			inv.log.Warn("failed to send continuation", "toolUseID", ev.ToolUseID, "error", err)
		}
		inv.log.Info("stream resumed", "toolUseID", ev.ToolUseID)

	case <-ctx.Done():
		inv.cancelled = true
		inv.proc.terminate()
		// Claim the slot so a late Answer reports false and goes nowhere.
		q.pending.resolve(nil)

	case <-inv.wd.expired():
		inv.idleFired = true
		inv.proc.terminate()
		q.pending.resolve(nil)
	}
}

func (inv *invocation) progress(summary string) {
	if inv.req.OnProgress != nil {
		inv.req.OnProgress(summary)
	}
}

// resolve reconciles exit status, accumulated text, and the terminal flags
// into exactly one outcome per invocation.
func (inv *invocation) resolve(ctx context.Context, exitCode int) (*Result, error) {
	switch {
	case inv.idleFired:
		return nil, &IdleTimeoutError{Quiet: inv.eng.idleTimeout}

	case inv.cancelled || ctx.Err() != nil:
		// Partial text, never a failure, regardless of exit status.
		return &Result{
			Text:        inv.acc.canonical(),
			SessionID:   inv.sessionID,
			Subtype:     inv.acc.subtype(),
			Interrupted: true,
		}, nil

	case exitCode == 0:
		return &Result{
			Text:      inv.acc.canonical(),
			SessionID: inv.sessionID,
			Subtype:   inv.acc.subtype(),
		}, nil

	case exitCode == 130 || exitCode == 143:
		// Interrupt or terminate: whatever arrived still counts.
		return &Result{
			Text:        inv.acc.canonical(),
			SessionID:   inv.sessionID,
			Subtype:     inv.acc.subtype(),
			Interrupted: true,
		}, nil

	default:
		return nil, &ExitError{Code: exitCode, Stderr: inv.proc.stderr.String()}
	}
}
