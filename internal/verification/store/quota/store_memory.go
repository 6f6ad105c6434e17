package quota

import (
	"context"
	"sync"
	"time"

	c "trustgate/internal/verification/config"
	"trustgate/pkg/requestcontext"
)

// InMemoryLedger implements the free-quota ledger as a mutex-guarded map
// of per-address sliding windows. Process-local by design: state is lost
// on restart and is not shared across replicas.
type InMemoryLedger struct {
	mu      sync.Mutex
	windows map[string]*window
	config  *c.Config
}

// window tracks one address's events. firstEvent never moves while the
// window lives; the whole entry is discarded once ResetWindow has elapsed
// since firstEvent.
type window struct {
	firstEvent time.Time
	events     []time.Time
}

func New(config *c.Config) *InMemoryLedger {
	if config == nil {
		config = c.DefaultConfig()
	}
	return &InMemoryLedger{
		windows: make(map[string]*window),
		config:  config,
	}
}

func (l *InMemoryLedger) Remaining(ctx context.Context, address string) (int, error) {
	now := requestcontext.Now(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[address]
	if w == nil {
		return l.config.MaxFreeLookups, nil
	}
	if now.Sub(w.firstEvent) >= l.config.ResetWindow {
		delete(l.windows, address)
		return l.config.MaxFreeLookups, nil
	}

	w.prune(now, l.config.ResetWindow)
	remaining := l.config.MaxFreeLookups - len(w.events)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *InMemoryLedger) TimeUntilReset(ctx context.Context, address string) (*time.Duration, error) {
	now := requestcontext.Now(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[address]
	if w == nil {
		return nil, nil
	}
	age := now.Sub(w.firstEvent)
	if age >= l.config.ResetWindow {
		delete(l.windows, address)
		return nil, nil
	}

	w.prune(now, l.config.ResetWindow)
	if len(w.events) < l.config.MaxFreeLookups {
		return nil, nil
	}
	d := l.config.ResetWindow - age
	return &d, nil
}

func (l *InMemoryLedger) RecordEvent(ctx context.Context, address string) (bool, error) {
	now := requestcontext.Now(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[address]
	if w == nil || now.Sub(w.firstEvent) >= l.config.ResetWindow {
		l.windows[address] = &window{
			firstEvent: now,
			events:     []time.Time{now},
		}
		return true, nil
	}

	w.prune(now, l.config.ResetWindow)
	if len(w.events) >= l.config.MaxFreeLookups {
		return false, nil
	}
	// firstEvent stays put so the reset countdown is anchored to the
	// window's opening, not its latest event.
	w.events = append(w.events, now)
	return true, nil
}

// prune drops events older than the reset window.
func (w *window) prune(now time.Time, resetWindow time.Duration) {
	cutoff := now.Add(-resetWindow)
	i := 0
	for ; i < len(w.events); i++ {
		if w.events[i].After(cutoff) {
			break
		}
	}
	w.events = w.events[i:]
}
