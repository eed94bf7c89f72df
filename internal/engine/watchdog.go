package engine

import (
	"fmt"
	"time"
)

// watchdog owns the two invocation timers. The idle timer is reset on every
// decoded event and fires fatally; the soft-ceiling timer is armed once at
// launch and fires a single advisory notification without touching the
// stream.
type watchdog struct {
	idleTimeout time.Duration
	idle        *time.Timer
	soft        *time.Timer
}

func newWatchdog(idleTimeout, softCeiling time.Duration, onSoft func(string)) *watchdog {
	w := &watchdog{
		idleTimeout: idleTimeout,
		idle:        time.NewTimer(idleTimeout),
	}
	if softCeiling > 0 && onSoft != nil {
		msg := fmt.Sprintf("still working after %s; this can be normal for larger tasks", softCeiling)
		w.soft = time.AfterFunc(softCeiling, func() { onSoft(msg) })
	}
	return w
}

// touch resets the idle timer. Only called on decoded events, never on raw
// bytes, so garbled partial chunks cannot keep a wedged process alive.
func (w *watchdog) touch() {
	if !w.idle.Stop() {
		select {
		case <-w.idle.C:
		default:
		}
	}
	w.idle.Reset(w.idleTimeout)
}

// expired fires when the idle window elapses with no decoded events.
func (w *watchdog) expired() <-chan time.Time {
	return w.idle.C
}

func (w *watchdog) stop() {
	w.idle.Stop()
	if w.soft != nil {
		w.soft.Stop()
	}
}
