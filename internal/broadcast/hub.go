// Package broadcast implements a non-blocking single-producer,
// multi-consumer fan-out for PTY output chunks.
package broadcast

import "sync"

// subscriberCap is the number of unconsumed chunks a subscriber may
// buffer before Publish starts dropping messages to it.
const subscriberCap = 256

// Hub fans out byte chunks published by a single producer to any number of
// subscribers. Publish never blocks: a subscriber whose channel is full has
// the chunk dropped and its lag counter incremented instead.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription is one consumer's view of a Hub. Ch delivers chunks in
// publication order; a chunk is dropped (and Lagged incremented) rather
// than blocking the producer when Ch's buffer is full.
type Subscription struct {
	Ch     chan []byte
	hub    *Hub
	mu     sync.Mutex
	lagged uint64
}

// Subscribe registers a new subscriber and returns it. Safe to call
// concurrently with Publish and Close.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{Ch: make(chan []byte, subscriberCap), hub: h}
	if h.closed {
		close(sub.Ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from the hub. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

// Lagged returns how many chunks have been dropped for this subscriber
// because its buffer was full.
func (s *Subscription) Lagged() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagged
}

func (s *Subscription) markLagged() {
	s.mu.Lock()
	s.lagged++
	s.mu.Unlock()
}

// Publish fans data out to every current subscriber without blocking. The
// producer is never slowed by a lagging subscriber.
func (h *Hub) Publish(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.Ch <- data:
		default:
			sub.markLagged()
		}
	}
}

// Close marks the hub closed and closes every current subscriber's channel,
// signalling "producer ended" to every attached reader (a connection
// handler turns this into a SessionEnded message to its client). Further
// Subscribe calls return an already-closed Subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.Ch)
		delete(h.subs, sub)
	}
}
