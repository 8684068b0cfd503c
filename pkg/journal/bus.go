package journal

import (
	"context"
	"sync"
)

// Bus wraps a Store and pushes every appended entry to live subscribers.
// A subscriber may watch one task or, with an empty task id, all of them.
type Bus struct {
	Store
	mu   sync.RWMutex
	subs map[chan *Entry]string
}

// NewBus creates a Bus wrapping the given store.
func NewBus(store Store) *Bus {
	return &Bus{
		Store: store,
		subs:  make(map[chan *Entry]string),
	}
}

// Append persists e, then offers it to matching subscribers. A subscriber
// whose buffer is full misses the entry rather than stalling the append.
func (b *Bus) Append(ctx context.Context, e Entry) (*Entry, error) {
	out, err := b.Store.Append(ctx, e)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, taskID := range b.subs {
		if taskID != "" && taskID != out.TaskID {
			continue
		}
		select {
		case ch <- out:
		default:
		}
	}
	return out, nil
}

// Subscribe returns a buffered channel of new entries for taskID, or for
// every task when taskID is empty.
func (b *Bus) Subscribe(taskID string) chan *Entry {
	ch := make(chan *Entry, 64)
	b.mu.Lock()
	b.subs[ch] = taskID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan *Entry) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
