// Package queue serializes work per conversation. Each conversation gets a
// lane: a FIFO of pending tasks drained by one goroutine, so at most one
// task per conversation runs at a time while different conversations run
// concurrently. Idle lanes are evicted by a janitor after a TTL.
package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrQueueFull means the conversation's lane is at its depth cap.
	ErrQueueFull = errors.New("conversation queue is full")
	// ErrClosed means the dispatcher has shut down.
	ErrClosed = errors.New("dispatcher is closed")
)

const (
	// DefaultDepth is how many tasks may wait per conversation beyond the
	// running one.
	DefaultDepth = 8
	// DefaultLaneTTL is how long an idle lane survives before eviction.
	DefaultLaneTTL = 30 * time.Minute
)

// Task is one unit of conversation work. The context is cancelled when the
// conversation is cancelled or the dispatcher closes.
type Task func(ctx context.Context)

// lane is the per-conversation FIFO and its drain state. All fields are
// guarded by the dispatcher mutex except tasks, which is a channel.
// pending counts tasks submitted but not yet finished, so the janitor never
// evicts a lane whose task is in flight.
type lane struct {
	tasks        chan Task
	quit         chan struct{}
	pending      int
	activeCancel context.CancelFunc
	lastActive   time.Time
}

// Dispatcher owns all lanes and the janitor.
type Dispatcher struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool

	depth int
	ttl   time.Duration
	log   *slog.Logger

	wg          sync.WaitGroup
	janitorQuit chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDepth sets the per-conversation pending task cap.
func WithDepth(n int) DispatcherOption {
	return func(d *Dispatcher) { d.depth = n }
}

// WithLaneTTL sets how long an idle lane survives before the janitor
// evicts it. Zero disables eviction.
func WithLaneTTL(ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.ttl = ttl }
}

// WithLogger sets the dispatcher logger.
func WithLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher creates a dispatcher and starts its janitor.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		lanes:       make(map[string]*lane),
		depth:       DefaultDepth,
		ttl:         DefaultLaneTTL,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		janitorQuit: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.ttl > 0 {
		d.wg.Add(1)
		go d.janitor()
	}
	return d
}

// Submit queues a task on the conversation's lane. Returns ErrQueueFull when
// the lane is at capacity and ErrClosed after Close. Tasks on the same
// conversation run strictly in submission order.
func (d *Dispatcher) Submit(conversationID string, task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	ln, ok := d.lanes[conversationID]
	if !ok {
		ln = &lane{
			tasks:      make(chan Task, d.depth),
			quit:       make(chan struct{}),
			lastActive: time.Now(),
		}
		d.lanes[conversationID] = ln
		d.wg.Add(1)
		go d.drain(conversationID, ln)
		d.log.Debug("lane created", "conversationID", conversationID)
	}

	select {
	case ln.tasks <- task:
		ln.pending++
		return nil
	default:
		d.log.Warn("lane full, rejecting task",
			"conversationID", conversationID, "depth", d.depth)
		return ErrQueueFull
	}
}

// Cancel cancels the conversation's active task, if any. Pending tasks stay
// queued and run afterwards. Returns true when a running task was cancelled.
func (d *Dispatcher) Cancel(conversationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ln, ok := d.lanes[conversationID]
	if !ok || ln.activeCancel == nil {
		return false
	}
	d.log.Info("cancelling active task", "conversationID", conversationID)
	ln.activeCancel()
	return true
}

// Pending returns the number of queued tasks for a conversation, not
// counting one currently running.
func (d *Dispatcher) Pending(conversationID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ln, ok := d.lanes[conversationID]; ok {
		return len(ln.tasks)
	}
	return 0
}

// Lanes returns the number of live lanes.
func (d *Dispatcher) Lanes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

// Close stops accepting work, cancels active tasks, and waits for the
// drain goroutines and janitor to exit. Queued tasks that never started are
// dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for id, ln := range d.lanes {
		close(ln.quit)
		if ln.activeCancel != nil {
			ln.activeCancel()
		}
		delete(d.lanes, id)
	}
	if d.ttl > 0 {
		close(d.janitorQuit)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Debug("dispatcher closed")
}

// drain runs a lane's tasks one at a time until the lane is evicted or the
// dispatcher closes.
func (d *Dispatcher) drain(conversationID string, ln *lane) {
	defer d.wg.Done()

	for {
		select {
		case <-ln.quit:
			return
		case task := <-ln.tasks:
			ctx, cancel := context.WithCancel(context.Background())

			d.mu.Lock()
			ln.activeCancel = cancel
			d.mu.Unlock()

			task(ctx)
			cancel()

			d.mu.Lock()
			ln.activeCancel = nil
			ln.pending--
			ln.lastActive = time.Now()
			d.mu.Unlock()
		}
	}
}

// janitor periodically evicts lanes that have been idle past the TTL with
// nothing queued or running.
func (d *Dispatcher) janitor() {
	defer d.wg.Done()

	interval := d.ttl / 4
	if interval < time.Second {
		interval = d.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.janitorQuit:
			return
		case <-ticker.C:
			d.evictIdle()
		}
	}
}

func (d *Dispatcher) evictIdle() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ln := range d.lanes {
		if ln.pending > 0 {
			continue
		}
		if now.Sub(ln.lastActive) < d.ttl {
			continue
		}
		close(ln.quit)
		delete(d.lanes, id)
		d.log.Debug("lane evicted", "conversationID", id, "idle", now.Sub(ln.lastActive))
	}
}
