package ingest

import (
	"sync"

	"github.com/twitchtranslate/pipeline/internal/util"
)

// JitterBuffer is the bounded single-producer/single-consumer queue between
// the playlist poller and the segment fetcher. When full, Push drops the
// oldest entry; Pop blocks until an item is available or the buffer is
// closed.
type JitterBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   *util.RingBuffer[SegmentInfo]
	closed bool
}

// NewJitterBuffer builds a buffer of the given capacity (at least 1).
func NewJitterBuffer(capacity int) *JitterBuffer {
	if capacity < 1 {
		capacity = 1
	}
	jb := &JitterBuffer{ring: util.NewRingBuffer[SegmentInfo](capacity)}
	jb.cond = sync.NewCond(&jb.mu)
	return jb
}

// Push appends a segment descriptor, dropping the oldest entry if the
// buffer is already full.
func (jb *JitterBuffer) Push(item SegmentInfo) (dropped *SegmentInfo) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if jb.closed {
		return nil
	}

	dropped = jb.ring.Push(item)
	jb.cond.Signal()
	return dropped
}

// Pop blocks until an item is available or the buffer is closed, in which
// case ok is false.
func (jb *JitterBuffer) Pop() (item SegmentInfo, ok bool) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	for jb.ring.IsEmpty() && !jb.closed {
		jb.cond.Wait()
	}
	if jb.ring.IsEmpty() {
		return SegmentInfo{}, false
	}
	return jb.ring.PopFront()
}

// Close wakes any blocked Pop and makes future Push calls no-ops.
func (jb *JitterBuffer) Close() {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	jb.closed = true
	jb.cond.Broadcast()
}
