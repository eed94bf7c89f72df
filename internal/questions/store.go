// Package questions tracks interactive questions that are waiting for a
// human answer. The store is transport-agnostic: whatever surface shows the
// question (CLI prompt, chat reply) looks entries up by id and delivers the
// answer here.
package questions

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attache-ai/attache/internal/engine"
)

var (
	// ErrNotFound means no pending question has the given id.
	ErrNotFound = errors.New("question not found")
	// ErrAlreadyAnswered means the question was answered or withdrawn
	// before this delivery.
	ErrAlreadyAnswered = errors.New("question already answered")
)

// Pending is one question awaiting an answer.
type Pending struct {
	ID             string
	ConversationID string
	ToolUseID      string
	Items          []engine.QuestionItem
	AskedAt        time.Time

	question *engine.Question
}

// Store holds pending questions across all conversations.
type Store struct {
	mu      sync.Mutex
	byID    map[string]*Pending
	log     *slog.Logger
	nowFunc func() time.Time
}

// NewStore creates an empty store.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		byID:    make(map[string]*Pending),
		log:     log,
		nowFunc: time.Now,
	}
}

// Add registers a suspended question and returns its entry.
func (s *Store) Add(conversationID string, q *engine.Question) *Pending {
	p := &Pending{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		ToolUseID:      q.ToolUseID,
		Items:          q.Items,
		AskedAt:        s.nowFunc(),
		question:       q,
	}

	s.mu.Lock()
	s.byID[p.ID] = p
	s.mu.Unlock()

	s.log.Info("question pending",
		"questionID", p.ID, "conversationID", conversationID, "items", len(q.Items))
	return p
}

// Get returns the pending question with the given id.
func (s *Store) Get(id string) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// List returns the conversation's pending questions, oldest first. An empty
// conversation id lists everything.
func (s *Store) List(conversationID string) []*Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Pending
	for _, p := range s.byID {
		if conversationID == "" || p.ConversationID == conversationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AskedAt.Before(out[j].AskedAt) })
	return out
}

// Answer delivers answers to a pending question and removes it. Returns
// ErrNotFound for unknown ids and ErrAlreadyAnswered when the underlying
// invocation already moved on.
func (s *Store) Answer(id string, answers map[string]string) error {
	s.mu.Lock()
	p, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if !p.question.Answer(answers) {
		s.log.Warn("answer arrived after question resolved",
			"questionID", id, "conversationID", p.ConversationID)
		return ErrAlreadyAnswered
	}

	s.log.Info("question answered", "questionID", id, "conversationID", p.ConversationID)
	return nil
}

// Withdraw removes all of a conversation's pending questions. Called when
// the invocation ends so stale questions cannot be answered into nothing.
// Returns how many entries were removed.
func (s *Store) Withdraw(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, p := range s.byID {
		if p.ConversationID == conversationID {
			delete(s.byID, id)
			removed++
		}
	}
	if removed > 0 {
		s.log.Debug("questions withdrawn", "conversationID", conversationID, "count", removed)
	}
	return removed
}
