package gateway

import "sync"

// Envelope is one broadcast message kept for replay.
type Envelope struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer is a fixed-size ring of the most recent envelopes on one
// channel. Clients that notice a channel_seq gap fetch the missing range
// through /api/missed.
type ReplayBuffer struct {
	mu   sync.RWMutex
	ring []Envelope
	next int
	size int
}

// NewReplayBuffer creates a replay buffer. Non-positive capacities get 500.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{ring: make([]Envelope, capacity)}
}

// Push stores a copy of data, overwriting the oldest envelope when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.ring[rb.next] = Envelope{Seq: seq, Data: cp}
	rb.next = (rb.next + 1) % len(rb.ring)
	if rb.size < len(rb.ring) {
		rb.size++
	}
}

// Range returns the envelopes with fromSeq <= Seq <= toSeq, oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []Envelope {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []Envelope
	start := (rb.next - rb.size + len(rb.ring)) % len(rb.ring)
	for i := 0; i < rb.size; i++ {
		e := rb.ring[(start+i)%len(rb.ring)]
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}
