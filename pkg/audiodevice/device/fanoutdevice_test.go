package device

import (
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOutDelivesCopies(t *testing.T) {
	d := NewFanOutDevice(props(48000, 2))
	a := d.GetStream()
	b := d.GetStream()

	samples := frame.PCMFrame{1, 2, 3, 4}
	d.Write(frame.Block{Samples: samples, Offset: 10, Generation: 3})
	samples[0] = 99

	for _, stream := range []<-chan frame.Block{a, b} {
		select {
		case got := <-stream:
			assert.Equal(t, frame.PCMFrame{1, 2, 3, 4}, got.Samples)
			assert.Equal(t, int64(10), got.Offset)
			assert.Equal(t, uint64(3), got.Generation)
		case <-time.After(time.Second):
			t.Fatal("block not delivered")
		}
	}
}

func TestFanOutNeverBlocksOnSlowStream(t *testing.T) {
	d := NewFanOutDevice(props(48000, 2))
	_ = d.GetStream()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range FAN_OUT_STREAM_BUFFER_SIZE + 10 {
			d.Write(frame.Block{Samples: frame.PCMFrame{0, 0}})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked on a full stream")
	}
	assert.Equal(t, int64(10), d.Dropped())
}

func TestFanOutClose(t *testing.T) {
	d := NewFanOutDevice(props(48000, 2))
	stream := d.GetStream()
	d.Close()
	d.Close()

	_, ok := <-stream
	require.False(t, ok)

	late := d.GetStream()
	_, ok = <-late
	assert.False(t, ok, "streams created after Close are closed")

	// Writing after close is a no-op
	d.Write(frame.Block{Samples: frame.PCMFrame{1}})
}
