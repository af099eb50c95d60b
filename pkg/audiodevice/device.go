package audiodevice

import (
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
)

type DeviceProperties struct {
	SampleRate  int
	NumChannels int
}

// Number of sample frames that span the given duration at the device sample rate.
func (p DeviceProperties) FramesIn(d time.Duration) int {
	return int(int64(p.SampleRate) * int64(d) / int64(time.Second))
}

// Duration of the given number of sample frames at the device sample rate.
func (p DeviceProperties) DurationOf(frames int64) time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames * int64(time.Second) / int64(p.SampleRate))
}

// A RenderFunc fills out with interleaved samples in the device format.
//
// RenderFuncs are called from the device clock, which is timing critical:
// they must never block on I/O or on locks held for an unbounded time,
// and must write every element of out (silence included).
type RenderFunc func(out []float32)

// Interface for audio sink devices, e.g. speakers
//
// Unlike a source of audio, a sink is driven by its own clock: once started,
// the device repeatedly asks the RenderFunc for the next buffer of samples.
type AudioSinkDevice interface {
	// Start pulling audio from render. Start must be called at most once.
	Start(render RenderFunc) error

	// Device level failures (device lost, format rejected) are delivered on this channel.
	// A failure is fatal to the device; no further audio will be pulled after it.
	Failures() <-chan error

	GetDeviceProperties() DeviceProperties

	// Stop the device clock and release any handles.
	// Once Close returns, the RenderFunc is no longer called.
	Close()
}

// Interface for consumers of a stream of PCM blocks, e.g. visualisers.
type AudioSourceDevice interface {
	// Get a stream of the blocks flowing through this device.
	GetStream() <-chan frame.Block

	GetDeviceProperties() DeviceProperties

	// Meaningfully close the AudioSourceDevice, including any cleanup of
	// memory and closing of channels.
	Close()
}
