// Package progress fans a single Redis-subscribed stream of
// ProgressEvents out to many per-connection SSE subscribers, dropping
// slow consumers rather than letting them stall the feed.
package progress

import (
	"context"
	"sync"

	"ragservice/internal/domain"
	"ragservice/internal/scope"
)

// subscriberBuffer is how many undelivered events a slow SSE connection
// may queue before further events for it are dropped.
const subscriberBuffer = 32

type subscriber struct {
	ch  chan domain.ProgressEvent
	vis scope.Visibility
}

// Broadcaster fans out ProgressEvents to visibility-filtered subscribers.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[int]*subscriber)}
}

// Subscribe registers a new SSE connection scoped to vis's visibility.
// The returned cancel func must be called when the connection closes.
func (b *Broadcaster) Subscribe(vis scope.Visibility) (<-chan domain.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan domain.ProgressEvent, subscriberBuffer), vis: vis}
	b.subscribers[id] = sub
	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			close(s.ch)
			delete(b.subscribers, id)
		}
	}
}

// Broadcast delivers event to every subscriber whose visibility allows
// event's ScopeKey; a subscriber whose buffer is full has the event
// dropped for it rather than blocking the others.
func (b *Broadcaster) Broadcast(event domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		if !sub.vis.Allows(event.ScopeKey) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Run consumes upstreamEvents (typically the Redis pub/sub stream) until
// ctx is cancelled, broadcasting each to visibility-matching subscribers.
func (b *Broadcaster) Run(ctx context.Context, upstreamEvents <-chan domain.ProgressEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-upstreamEvents:
			if !ok {
				return
			}
			b.Broadcast(event)
		}
	}
}
