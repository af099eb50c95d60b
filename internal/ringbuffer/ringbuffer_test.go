package ringbuffer

import (
	"context"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(frames, channels int, start float32) frame.PCMFrame {
	out := make(frame.PCMFrame, frames*channels)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestPushPopFIFO(t *testing.T) {
	r := New(8, 2)
	ctx := context.Background()

	require.NoError(t, r.Push(ctx, ramp(3, 2, 0)))
	require.NoError(t, r.Push(ctx, ramp(2, 2, 6)))
	assert.Equal(t, 5, r.Len())

	dst := make([]float32, 8)
	assert.Equal(t, 4, r.Pop(dst))
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5, 6, 7}, dst)

	// Wrap around the end of the backing array
	require.NoError(t, r.Push(ctx, ramp(6, 2, 10)))
	dst = make([]float32, 20)
	assert.Equal(t, 7, r.Pop(dst))
	assert.Equal(t, []float32{8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21}, dst[:14])
	assert.Equal(t, int64(11), r.Consumed())
}

func TestPopEmptyReturnsImmediately(t *testing.T) {
	r := New(4, 2)
	assert.Equal(t, 0, r.Pop(make([]float32, 8)))
	assert.Equal(t, 0, r.Pop(make([]float32, 1)), "partial frames are never popped")
}

func TestPushBlocksWhileFull(t *testing.T) {
	r := New(4, 1)
	ctx := context.Background()
	require.NoError(t, r.Push(ctx, ramp(4, 1, 0)))

	done := make(chan error, 1)
	go func() { done <- r.Push(ctx, ramp(2, 1, 4)) }()

	select {
	case <-done:
		t.Fatal("Push returned while the buffer was full")
	case <-time.After(20 * time.Millisecond):
	}

	dst := make([]float32, 2)
	require.Equal(t, 2, r.Pop(dst))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Push did not resume after Pop")
	}
	assert.LessOrEqual(t, r.Len(), r.Cap())
	assert.Equal(t, 4, r.Len())
}

func TestPushCancelled(t *testing.T) {
	r := New(2, 1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Push(ctx, ramp(2, 1, 0)))

	done := make(chan error, 1)
	go func() { done <- r.Push(ctx, ramp(4, 1, 0)) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled Push did not return")
	}

	r.Flush()
	assert.ErrorIs(t, r.Push(ctx, ramp(1, 1, 0)), context.Canceled)
	assert.Equal(t, 0, r.Len(), "no writes after cancellation")
}

func TestFlushEmpties(t *testing.T) {
	r := New(16, 2)
	require.NoError(t, r.Push(context.Background(), ramp(10, 2, 0)))
	r.Pop(make([]float32, 4))
	r.CloseWrite()

	r.Flush()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Pop(make([]float32, 32)))
	assert.Equal(t, int64(0), r.Consumed())
	assert.False(t, r.EndOfStream())
	assert.False(t, r.Drained())
}

func TestDrained(t *testing.T) {
	r := New(4, 2)
	require.NoError(t, r.Push(context.Background(), ramp(2, 2, 0)))
	r.CloseWrite()
	assert.True(t, r.EndOfStream())
	assert.False(t, r.Drained())

	r.Pop(make([]float32, 8))
	assert.True(t, r.Drained())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const total = 10000
	r := New(64, 2)

	go func() {
		ctx := context.Background()
		for i := 0; i < total; i += 100 {
			_ = r.Push(ctx, ramp(100, 2, float32(2*i)))
		}
		r.CloseWrite()
	}()

	next := float32(0)
	dst := make([]float32, 2*37)
	deadline := time.After(5 * time.Second)
	for !r.Drained() {
		select {
		case <-deadline:
			t.Fatal("consumer did not drain the buffer")
		default:
		}
		n := r.Pop(dst)
		for _, v := range dst[:2*n] {
			require.Equal(t, next, v, "samples out of order")
			next++
		}
	}
	assert.Equal(t, float32(2*total), next)
	assert.Equal(t, int64(total), r.Consumed())
}

// A pop racing a flush is counted either before the flush or not at all.
func TestFlushDuringPopLeavesNoConsumedFrames(t *testing.T) {
	ctx := context.Background()
	for range 500 {
		r := New(64, 2)
		require.NoError(t, r.Push(ctx, ramp(64, 2, 0)))

		done := make(chan struct{})
		go func() {
			defer close(done)
			dst := make([]float32, 8)
			for r.Pop(dst) > 0 {
			}
		}()
		r.Flush()
		<-done

		require.Zero(t, r.Consumed())
	}
}
