// Package window holds the bounded buffer of recently seen packets.
package window

import "CyberGuard/internal/model"

// DefaultCapacity is the number of packets retained when none is configured.
const DefaultCapacity = 500

// Window is a fixed-capacity ring of packets. Once full, every push evicts
// the oldest packets first. It is not safe for concurrent use; the pipeline
// worker owns it.
type Window struct {
	buf  []model.Packet
	head int // next write position
	size int
}

// New creates a window holding at most capacity packets.
func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]model.Packet, capacity)}
}

// Push appends a chronologically ordered batch and returns the window
// contents, most recent first. The returned slice is a fresh copy.
func (w *Window) Push(batch []model.Packet) []model.Packet {
	// Only the newest cap(buf) packets of an oversized batch can survive.
	if len(batch) > len(w.buf) {
		batch = batch[len(batch)-len(w.buf):]
	}
	for _, p := range batch {
		w.buf[w.head] = p
		w.head = (w.head + 1) % len(w.buf)
		if w.size < len(w.buf) {
			w.size++
		}
	}
	return w.Snapshot(w.size)
}

// Snapshot returns up to limit of the most recent packets, newest first.
func (w *Window) Snapshot(limit int) []model.Packet {
	if limit > w.size {
		limit = w.size
	}
	if limit <= 0 {
		return []model.Packet{}
	}
	out := make([]model.Packet, limit)
	idx := w.head
	for i := 0; i < limit; i++ {
		idx--
		if idx < 0 {
			idx = len(w.buf) - 1
		}
		out[i] = w.buf[idx]
	}
	return out
}

// Len returns the number of packets currently held.
func (w *Window) Len() int { return w.size }

// Capacity returns the configured bound.
func (w *Window) Capacity() int { return len(w.buf) }
