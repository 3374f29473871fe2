package download

import (
	"sync"
	"time"
)

// DefaultProgressInterval matches the UI refresh cadence.
const DefaultProgressInterval = 500 * time.Millisecond

// Throttle limits Progress events to one per interval. Started and terminal
// events always pass; a Progress held back by the limit is flushed right
// before the terminal event. Nothing is forwarded after a terminal event.
type Throttle struct {
	interval time.Duration
	next     func(Event)
	now      func() time.Time

	mu         sync.Mutex
	lastUpdate time.Time
	pending    *Progress
	done       bool
}

func NewThrottle(interval time.Duration, next func(Event)) *Throttle {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Throttle{
		interval: interval,
		next:     next,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

// Emit is the Executor-facing sink.
func (t *Throttle) Emit(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}

	switch e := ev.(type) {
	case Progress:
		now := t.now()
		if !t.lastUpdate.IsZero() && now.Sub(t.lastUpdate) < t.interval {
			t.pending = &e
			return
		}
		t.lastUpdate = now
		t.pending = nil
		t.next(e)
	case Completed, Canceled, Failed:
		if t.pending != nil {
			t.next(*t.pending)
			t.pending = nil
		}
		t.done = true
		t.next(ev)
	default:
		t.next(ev)
	}
}
