// Package ringbuffer holds converted audio between the producer pipeline and the output callback.
package ringbuffer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
)

// A RingBuffer is a bounded FIFO of interleaved sample frames with exactly one
// producer and one consumer.
//
// The producer blocks in Push while the buffer is full. The consumer never blocks:
// Pop takes the lock only for the duration of a copy and returns what is available.
type RingBuffer struct {
	mu       sync.Mutex
	data     []float32
	channels int
	head     int // index of the oldest sample
	size     int // samples held
	eos      bool

	// Signalled whenever space is freed or the buffer is flushed
	space chan struct{}

	// Frames popped since the last flush
	consumed atomic.Int64
}

// Create a RingBuffer holding up to capacityFrames frames of the given channel count.
func New(capacityFrames, channels int) *RingBuffer {
	capacityFrames = max(1, capacityFrames)
	channels = max(1, channels)
	return &RingBuffer{
		data:     make([]float32, capacityFrames*channels),
		channels: channels,
		space:    make(chan struct{}, 1),
	}
}

// Push writes every frame of samples, blocking while the buffer is full.
//
// The context is checked under the buffer lock before each chunk is written,
// so once ctx is cancelled and Flush has returned, no sample from this call can
// appear in the buffer. Returns ctx.Err() on cancellation.
func (r *RingBuffer) Push(ctx context.Context, samples frame.PCMFrame) error {
	samples = samples[:samples.Frames(r.channels)*r.channels]
	for len(samples) > 0 {
		r.mu.Lock()
		if err := ctx.Err(); err != nil {
			r.mu.Unlock()
			return err
		}
		n := r.writeLocked(samples)
		r.mu.Unlock()
		samples = samples[n:]

		if len(samples) == 0 {
			return nil
		}
		if n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.space:
		}
	}
	return nil
}

// Copy as many whole frames of samples as fit. Returns the samples written.
func (r *RingBuffer) writeLocked(samples []float32) int {
	free := len(r.data) - r.size
	n := min(len(samples), free)
	n -= n % r.channels
	if n == 0 {
		return 0
	}

	tail := (r.head + r.size) % len(r.data)
	first := copy(r.data[tail:min(len(r.data), tail+n)], samples[:n])
	copy(r.data, samples[first:n])
	r.size += n
	return n
}

// Pop copies up to len(dst)/channels frames into dst and returns the number of frames copied.
// Pop never waits for data.
func (r *RingBuffer) Pop(dst []float32) int {
	r.mu.Lock()
	n := min(len(dst)-len(dst)%r.channels, r.size)
	if n == 0 {
		r.mu.Unlock()
		return 0
	}

	first := copy(dst[:n], r.data[r.head:min(len(r.data), r.head+n)])
	copy(dst[first:n], r.data)
	r.head = (r.head + n) % len(r.data)
	r.size -= n
	frames := n / r.channels
	r.consumed.Add(int64(frames))
	r.mu.Unlock()

	r.signalSpace()
	return frames
}

func (r *RingBuffer) signalSpace() {
	select {
	case r.space <- struct{}{}:
	default:
	}
}

// Flush discards every buffered frame, clears end of stream and resets the consumed counter.
func (r *RingBuffer) Flush() {
	r.mu.Lock()
	r.head = 0
	r.size = 0
	r.eos = false
	r.consumed.Store(0)
	r.mu.Unlock()
	r.signalSpace()
}

// CloseWrite marks end of stream: no more frames will be pushed until the next Flush.
func (r *RingBuffer) CloseWrite() {
	r.mu.Lock()
	r.eos = true
	r.mu.Unlock()
}

// EndOfStream reports whether CloseWrite was called since the last Flush.
func (r *RingBuffer) EndOfStream() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eos
}

// Drained reports end of stream with every frame popped.
func (r *RingBuffer) Drained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eos && r.size == 0
}

// Len returns the number of buffered frames.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size / r.channels
}

// Cap returns the capacity in frames.
func (r *RingBuffer) Cap() int {
	return len(r.data) / r.channels
}

func (r *RingBuffer) Channels() int {
	return r.channels
}

// Consumed returns the number of frames popped since the last Flush.
func (r *RingBuffer) Consumed() int64 {
	return r.consumed.Load()
}
