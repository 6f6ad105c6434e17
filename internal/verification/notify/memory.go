package notify

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryNotifier fans results out to in-process subscribers. Used in
// single-node deployments and tests.
type MemoryNotifier struct {
	mu   sync.Mutex
	subs map[string]map[chan json.RawMessage]struct{}
}

func NewMemory() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string]map[chan json.RawMessage]struct{})}
}

func (n *MemoryNotifier) PublishResult(_ context.Context, key string, report json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs[key] {
		// Non-blocking: a stalled subscriber drops its notification
		// rather than stalling the publisher.
		select {
		case ch <- report:
		default:
		}
	}
	return nil
}

func (n *MemoryNotifier) Subscribe(_ context.Context, key string) (<-chan json.RawMessage, func(), error) {
	ch := make(chan json.RawMessage, 1)

	n.mu.Lock()
	if n.subs[key] == nil {
		n.subs[key] = make(map[chan json.RawMessage]struct{})
	}
	n.subs[key][ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if set := n.subs[key]; set != nil {
			delete(set, ch)
			if len(set) == 0 {
				delete(n.subs, key)
			}
		}
	}
	return ch, cancel, nil
}
