// Package scrollback implements the bounded byte history kept per session.
package scrollback

import "sync"

// Cap is the maximum number of bytes retained.
const Cap = 64 * 1024

// Buffer is a FIFO byte ring capped at Cap bytes. Push is the sole writer's
// operation; Contents and LastLines may be called concurrently by readers.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{data: make([]byte, 0, Cap)}
}

// Push appends data, evicting the oldest bytes once the buffer exceeds Cap.
func (b *Buffer) Push(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.push(data)
}

func (b *Buffer) push(data []byte) {
	b.data = append(b.data, data...)
	if len(b.data) > Cap {
		overflow := len(b.data) - Cap
		b.data = append(b.data[:0], b.data[overflow:]...)
	}
}

// PushAndPublish pushes data, then calls publish(data) while still holding
// the buffer's lock, so that any snapshot taken via SnapshotAndSubscribe
// either sees this chunk in the snapshot or receives it live through
// publish — never both, never neither.
func (b *Buffer) PushAndPublish(data []byte, publish func(data []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.push(data)
	publish(data)
}

// Contents returns a copy of all bytes currently held, oldest first.
func (b *Buffer) Contents() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// LastLines returns the suffix starting just after the n-th most recent
// newline, ignoring a trailing newline when counting. If fewer than n
// newlines exist, it returns the entire buffer. n == 0 or an empty buffer
// yields an empty result.
func (b *Buffer) LastLines(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n == 0 || len(b.data) == 0 {
		return []byte{}
	}

	searchEnd := len(b.data)
	if b.data[searchEnd-1] == '\n' {
		searchEnd--
	}

	start := 0
	newlines := 0
	for i := searchEnd - 1; i >= 0; i-- {
		if b.data[i] == '\n' {
			newlines++
			if newlines == n {
				start = i + 1
				break
			}
		}
	}

	out := make([]byte, len(b.data)-start)
	copy(out, b.data[start:])
	return out
}

// SnapshotAndSubscribe takes a snapshot of the buffer's current contents
// and runs subscribe while still holding the buffer's lock, so the
// subscription cannot race a concurrent PushAndPublish: any chunk pushed
// after this call returns was not yet in the snapshot and will be observed
// live via the subscription, and vice versa.
func (b *Buffer) SnapshotAndSubscribe(subscribe func()) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := make([]byte, len(b.data))
	copy(snap, b.data)
	subscribe()
	return snap
}
