package db

import (
	"sync"

	"github.com/solatis/sieve/internal/types"
)

// broadcaster fans rule snapshots out to subscribers. Each subscriber
// holds at most one pending snapshot; a newer one replaces it.
type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan []types.Rule
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan []types.Rule)}
}

func (b *broadcaster) add() (int, <-chan []types.Rule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan []types.Rule, 1)
	b.subs[id] = ch
	return id, ch
}

func (b *broadcaster) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// offer delivers snapshot to one subscriber, dropping its stale value.
func (b *broadcaster) offer(id int, snapshot []types.Rule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		replace(ch, snapshot)
	}
}

func (b *broadcaster) publish(snapshot []types.Rule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		replace(ch, snapshot)
	}
}

func (b *broadcaster) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// replace must be called with the broadcaster lock held.
func replace(ch chan []types.Rule, snapshot []types.Rule) {
	select {
	case <-ch:
	default:
	}
	out := make([]types.Rule, len(snapshot))
	copy(out, snapshot)
	ch <- out
}
