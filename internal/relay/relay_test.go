package relay

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/attache-ai/attache/internal/engine"
	"github.com/attache-ai/attache/internal/questions"
)

// fakeInvoker records requests and delegates to a configurable run func.
type fakeInvoker struct {
	mu    sync.Mutex
	calls []engine.Request
	run   func(ctx context.Context, req engine.Request) (*engine.Result, error)
}

var _ Invoker = (*fakeInvoker)(nil)

func (f *fakeInvoker) Run(ctx context.Context, req engine.Request) (*engine.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx, req)
	}
	return &engine.Result{Text: "ok"}, nil
}

func (f *fakeInvoker) call(t *testing.T, i int) engine.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.calls) {
		t.Fatalf("expected at least %d calls, got %d", i+1, len(f.calls))
	}
	return f.calls[i]
}

// fakeNotifier records delivered notices and questions.
type fakeNotifier struct {
	mu        sync.Mutex
	notices   []string
	questions []*questions.Pending
}

var _ Notifier = (*fakeNotifier)(nil)

func (n *fakeNotifier) Notify(conversationID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, message)
}

func (n *fakeNotifier) AskQuestion(conversationID string, p *questions.Pending) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.questions = append(n.questions, p)
}

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := LoadSessionStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("failed to load session store: %v", err)
	}
	return s
}

func TestHandleMessageReturnsResult(t *testing.T) {
	inv := &fakeInvoker{
		run: func(ctx context.Context, req engine.Request) (*engine.Result, error) {
			return &engine.Result{Text: "the answer", SessionID: "sess-1"}, nil
		},
	}
	r := New(inv, newTestStore(t))
	defer r.Close()

	res, err := r.HandleMessage(context.Background(), "conv-1", "question")
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if res.Text != "the answer" {
		t.Errorf("expected result text, got %q", res.Text)
	}
	if got := inv.call(t, 0).Prompt; got != "question" {
		t.Errorf("expected prompt forwarded, got %q", got)
	}
}

func TestHandleMessageResumesPersistedSession(t *testing.T) {
	store := newTestStore(t)
	inv := &fakeInvoker{
		run: func(ctx context.Context, req engine.Request) (*engine.Result, error) {
			// The engine reports the session id mid-stream.
			if req.OnSessionID != nil {
				req.OnSessionID("sess-42")
			}
			return &engine.Result{Text: "ok", SessionID: "sess-42"}, nil
		},
	}
	r := New(inv, store)
	defer r.Close()

	if _, err := r.HandleMessage(context.Background(), "conv-1", "first"); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	if got := store.Get("conv-1"); got != "sess-42" {
		t.Fatalf("session id not persisted, got %q", got)
	}

	if _, err := r.HandleMessage(context.Background(), "conv-1", "second"); err != nil {
		t.Fatalf("second message failed: %v", err)
	}
	if got := inv.call(t, 0).ResumeSessionID; got != "" {
		t.Errorf("first message should start fresh, got resume %q", got)
	}
	if got := inv.call(t, 1).ResumeSessionID; got != "sess-42" {
		t.Errorf("second message should resume, got %q", got)
	}
}

func TestHandleMessageSerializesPerConversation(t *testing.T) {
	var mu sync.Mutex
	running := 0
	maxRunning := 0

	inv := &fakeInvoker{
		run: func(ctx context.Context, req engine.Request) (*engine.Result, error) {
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return &engine.Result{Text: "ok"}, nil
		},
	}
	r := New(inv, newTestStore(t))
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.HandleMessage(context.Background(), "conv-1", "msg"); err != nil {
				t.Errorf("handle failed: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxRunning != 1 {
		t.Errorf("expected at most 1 concurrent invocation per conversation, saw %d", maxRunning)
	}
}

func TestHandleMessageCancellation(t *testing.T) {
	inv := &fakeInvoker{
		run: func(ctx context.Context, req engine.Request) (*engine.Result, error) {
			<-ctx.Done()
			return &engine.Result{Text: "partial", Interrupted: true}, nil
		},
	}
	r := New(inv, newTestStore(t))
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := r.HandleMessage(ctx, "conv-1", "long task")
	if err != nil {
		t.Fatalf("cancelled message should yield a partial result: %v", err)
	}
	if !res.Interrupted {
		t.Error("expected interrupted result")
	}
	if res.Text != "partial" {
		t.Errorf("expected partial text, got %q", res.Text)
	}
}

func TestHandleMessageSurfacesQuestions(t *testing.T) {
	notifier := &fakeNotifier{}
	answered := make(chan map[string]string, 1)

	inv := &fakeInvoker{
		run: func(ctx context.Context, req engine.Request) (*engine.Result, error) {
			q := engine.NewSuspendedQuestion("toolu_1", []engine.QuestionItem{
				{Question: "Proceed?", Options: []string{"yes", "no"}},
			})
			req.OnQuestion(q)

			// Block until the answer lands, like a real suspension.
			select {
			case answers := <-waitAnswers(q):
				answered <- answers
			case <-time.After(5 * time.Second):
				t.Error("question never answered")
			}
			return &engine.Result{Text: "resumed"}, nil
		},
	}
	r := New(inv, newTestStore(t), WithNotifier(notifier))
	defer r.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := r.HandleMessage(context.Background(), "conv-1", "msg"); err != nil {
			t.Errorf("handle failed: %v", err)
		}
	}()

	// Wait for the question to surface, then answer it through the store.
	var pending *questions.Pending
	deadline := time.Now().Add(5 * time.Second)
	for pending == nil {
		if time.Now().After(deadline) {
			t.Fatal("question never surfaced")
		}
		notifier.mu.Lock()
		if len(notifier.questions) > 0 {
			pending = notifier.questions[0]
		}
		notifier.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}

	if err := r.Questions().Answer(pending.ID, map[string]string{"Proceed?": "yes"}); err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	select {
	case answers := <-answered:
		if answers["Proceed?"] != "yes" {
			t.Errorf("unexpected answers: %v", answers)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("answers never delivered")
	}
	<-done

	// The run finished, so nothing stays pending.
	if got := len(r.Questions().List("conv-1")); got != 0 {
		t.Errorf("expected questions withdrawn after run, got %d", got)
	}
}

// waitAnswers polls a detached question until its answers arrive.
func waitAnswers(q *engine.Question) <-chan map[string]string {
	ch := make(chan map[string]string, 1)
	go func() {
		for {
			if answers, ok := q.TakeAnswers(); ok {
				ch <- answers
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	return ch
}

func TestHandleMessageForwardsNotices(t *testing.T) {
	notifier := &fakeNotifier{}
	inv := &fakeInvoker{
		run: func(ctx context.Context, req engine.Request) (*engine.Result, error) {
			req.OnProgress("using Bash")
			req.OnSoftCeiling("still working")
			return &engine.Result{Text: "ok"}, nil
		},
	}
	r := New(inv, newTestStore(t), WithNotifier(notifier))
	defer r.Close()

	if _, err := r.HandleMessage(context.Background(), "conv-1", "msg"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.notices) != 2 {
		t.Fatalf("expected 2 notices, got %v", notifier.notices)
	}
}

func TestHandleMessagePropagatesEngineError(t *testing.T) {
	inv := &fakeInvoker{
		run: func(ctx context.Context, req engine.Request) (*engine.Result, error) {
			return nil, &engine.IdleTimeoutError{Quiet: time.Minute}
		},
	}
	r := New(inv, newTestStore(t))
	defer r.Close()

	_, err := r.HandleMessage(context.Background(), "conv-1", "msg")
	if err == nil {
		t.Fatal("expected engine error to propagate")
	}
}
