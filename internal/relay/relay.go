// Package relay connects incoming conversation messages to the invocation
// engine: it serializes work per conversation, resumes the right CLI
// session, surfaces interactive questions, and routes progress notices back
// to whatever front end delivered the message.
package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/attache-ai/attache/internal/engine"
	"github.com/attache-ai/attache/internal/queue"
	"github.com/attache-ai/attache/internal/questions"
)

// Invoker runs one invocation to completion. Satisfied by *engine.Engine.
type Invoker interface {
	Run(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Notifier delivers out-of-band messages to a conversation's front end:
// progress notices, long-run advisories, and pending questions.
type Notifier interface {
	Notify(conversationID, message string)
	AskQuestion(conversationID string, p *questions.Pending)
}

// Relay ties the dispatcher, session store, and question store to the
// engine. One relay serves all conversations.
type Relay struct {
	invoker   Invoker
	sessions  *SessionStore
	queue     *queue.Dispatcher
	questions *questions.Store
	notifier  Notifier
	log       *slog.Logger

	// streamLog opens the raw stream sink for a conversation, when set.
	streamLog func(conversationID string) (io.WriteCloser, error)
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithNotifier sets the front-end notifier.
func WithNotifier(n Notifier) RelayOption {
	return func(r *Relay) { r.notifier = n }
}

// WithDispatcher replaces the default dispatcher.
func WithDispatcher(d *queue.Dispatcher) RelayOption {
	return func(r *Relay) { r.queue = d }
}

// WithQuestionStore replaces the default question store.
func WithQuestionStore(s *questions.Store) RelayOption {
	return func(r *Relay) { r.questions = s }
}

// WithStreamLog sets the raw stream sink opener.
func WithStreamLog(open func(conversationID string) (io.WriteCloser, error)) RelayOption {
	return func(r *Relay) { r.streamLog = open }
}

// WithLogger sets the relay logger.
func WithLogger(log *slog.Logger) RelayOption {
	return func(r *Relay) { r.log = log }
}

// New creates a relay over the given invoker and session store.
func New(invoker Invoker, sessions *SessionStore, opts ...RelayOption) *Relay {
	r := &Relay{
		invoker:  invoker,
		sessions: sessions,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.queue == nil {
		r.queue = queue.NewDispatcher(queue.WithLogger(r.log))
	}
	if r.questions == nil {
		r.questions = questions.NewStore(r.log)
	}
	return r
}

// Questions exposes the pending question store, for surfaces that list and
// answer questions directly.
func (r *Relay) Questions() *questions.Store {
	return r.questions
}

// outcome carries a finished invocation back to HandleMessage.
type outcome struct {
	res *engine.Result
	err error
}

// HandleMessage runs one conversation message through the engine and blocks
// until its outcome. Messages on the same conversation are serialized in
// arrival order; cancelling ctx stops the active invocation and returns its
// partial result.
func (r *Relay) HandleMessage(ctx context.Context, conversationID, text string) (*engine.Result, error) {
	log := r.log.With("conversationID", conversationID)

	done := make(chan outcome, 1)
	err := r.queue.Submit(conversationID, func(taskCtx context.Context) {
		res, err := r.invoke(taskCtx, conversationID, text)
		done <- outcome{res: res, err: err}
	})
	if err != nil {
		log.Warn("message rejected", "error", err)
		return nil, fmt.Errorf("failed to queue message: %w", err)
	}

	for {
		select {
		case out := <-done:
			return out.res, out.err
		case <-ctx.Done():
			// Stop the active invocation and keep waiting: the engine
			// resolves with a partial result rather than vanishing.
			r.queue.Cancel(conversationID)
			ctx = context.Background()
		}
	}
}

// Cancel stops the conversation's active invocation, if any.
func (r *Relay) Cancel(conversationID string) bool {
	return r.queue.Cancel(conversationID)
}

// Close shuts down the dispatcher, cancelling active invocations.
func (r *Relay) Close() {
	r.queue.Close()
}

// invoke runs a single engine invocation with the conversation's session
// and callback wiring.
func (r *Relay) invoke(ctx context.Context, conversationID, text string) (*engine.Result, error) {
	log := r.log.With("conversationID", conversationID)

	req := engine.Request{
		Prompt:          text,
		ResumeSessionID: r.sessions.Get(conversationID),
		OnSessionID: func(id string) {
			if err := r.sessions.Set(conversationID, id); err != nil {
				log.Error("failed to persist session id", "error", err)
			}
		},
		OnQuestion: func(q *engine.Question) {
			p := r.questions.Add(conversationID, q)
			if r.notifier != nil {
				r.notifier.AskQuestion(conversationID, p)
			}
		},
	}
	if r.notifier != nil {
		req.OnProgress = func(summary string) { r.notifier.Notify(conversationID, summary) }
		req.OnSoftCeiling = func(msg string) { r.notifier.Notify(conversationID, msg) }
	}
	if r.streamLog != nil {
		sink, err := r.streamLog(conversationID)
		if err != nil {
			log.Warn("failed to open stream log", "error", err)
		} else {
			defer sink.Close()
			req.StreamLog = sink
		}
	}

	// Questions left pending after the run cannot be answered anymore.
	defer r.questions.Withdraw(conversationID)

	log.Info("invocation starting", "resume", req.ResumeSessionID != "")
	res, err := r.invoker.Run(ctx, req)
	if err != nil {
		log.Error("invocation failed", "error", err)
		return nil, err
	}
	log.Info("invocation finished",
		"sessionID", res.SessionID, "interrupted", res.Interrupted, "chars", len(res.Text))
	return res, nil
}
