package output

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/ringbuffer"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stereo = audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 2}

func newDriver(t *testing.T, capacity int, volume float32) (*Driver, *ringbuffer.RingBuffer) {
	t.Helper()
	ring := ringbuffer.New(capacity, 2)
	return NewDriver(ring, device.NewAudioAugmentationDevice(stereo, volume)), ring
}

func filled(v float32, n int) frame.PCMFrame {
	out := make(frame.PCMFrame, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestRenderAppliesVolume(t *testing.T) {
	d, ring := newDriver(t, 16, 0.5)
	d.SetActive(true)
	require.NoError(t, ring.Push(context.Background(), filled(0.8, 8)))

	out := filled(9, 8)
	d.Render(out)
	assert.InDeltaSlice(t, []float32{0.4, 0.4, 0.4, 0.4, 0.4, 0.4, 0.4, 0.4}, out, 1e-6)
	assert.Zero(t, d.Underruns())
}

func TestUnderrunIsSilentAndCounted(t *testing.T) {
	d, ring := newDriver(t, 16, 1)
	d.SetActive(true)
	require.NoError(t, ring.Push(context.Background(), filled(0.5, 4)))

	out := filled(9, 8)
	d.Render(out)
	assert.Equal(t, frame.PCMFrame{0.5, 0.5, 0.5, 0.5, 0, 0, 0, 0}, out)
	assert.Equal(t, int64(1), d.Underruns())

	d.Render(out)
	assert.Equal(t, frame.PCMFrame{0, 0, 0, 0, 0, 0, 0, 0}, out)
	assert.Equal(t, int64(2), d.Underruns())

	// Playback resumes once frames arrive again
	require.NoError(t, ring.Push(context.Background(), filled(0.25, 8)))
	d.Render(out)
	assert.Equal(t, filled(0.25, 8), frame.PCMFrame(out))
	assert.Equal(t, int64(2), d.Underruns())
}

func TestStartupShortfallIsNotAnUnderrun(t *testing.T) {
	d, ring := newDriver(t, 16, 1)
	d.SetActive(true)

	// The producer has not pushed anything yet
	out := filled(9, 8)
	d.Render(out)
	d.Render(out)
	assert.Equal(t, filled(0, 8), frame.PCMFrame(out))
	assert.Zero(t, d.Underruns())

	require.NoError(t, ring.Push(context.Background(), filled(0.5, 2)))
	d.Render(out)
	assert.Equal(t, int64(1), d.Underruns())

	// Reactivating for the next pipeline starts unprimed again
	d.SetActive(false)
	d.SetActive(true)
	d.Render(out)
	assert.Equal(t, int64(1), d.Underruns())
}

func TestEndOfStreamIsNotAnUnderrun(t *testing.T) {
	d, ring := newDriver(t, 16, 1)
	d.SetActive(true)
	require.NoError(t, ring.Push(context.Background(), filled(0.5, 2)))
	ring.CloseWrite()

	d.Render(make([]float32, 8))
	assert.Zero(t, d.Underruns())
	assert.True(t, ring.Drained())
}

func TestPausedAndInactiveRenderSilenceWithoutPopping(t *testing.T) {
	d, ring := newDriver(t, 16, 1)
	require.NoError(t, ring.Push(context.Background(), filled(0.5, 8)))

	out := filled(9, 8)
	d.Render(out)
	assert.Equal(t, filled(0, 8), frame.PCMFrame(out))
	assert.Equal(t, 4, ring.Len())

	d.SetActive(true)
	d.SetPaused(true)
	d.Render(out)
	assert.Equal(t, filled(0, 8), frame.PCMFrame(out))
	assert.Equal(t, 4, ring.Len())
	assert.Zero(t, d.Underruns())

	d.SetPaused(false)
	d.Render(out)
	assert.Equal(t, 0, ring.Len())
	assert.Equal(t, int64(3), d.RenderCalls())
}

func TestAttach(t *testing.T) {
	d, ring := newDriver(t, 4800, 1)
	d.SetActive(true)
	require.NoError(t, ring.Push(context.Background(), filled(0.1, 2*4800)))

	sink := device.NewDummyAudioSinkDevice(stereo, time.Millisecond, 480)
	defer sink.Close()
	require.NoError(t, d.Attach(sink))

	require.Eventually(t, func() bool { return ring.Len() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(4800), ring.Consumed())

	// A second Start fails and is reported as an output failure
	err := d.Attach(sink)
	assert.ErrorIs(t, err, ErrOutputFailure)
}

func TestAttachRejectsChannelMismatch(t *testing.T) {
	d, _ := newDriver(t, 16, 1)
	mono := audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 1}
	sink := device.NewDummyAudioSinkDevice(mono, time.Millisecond, 0)
	defer sink.Close()

	err := d.Attach(sink)
	assert.True(t, errors.Is(err, ErrOutputFailure))
}
