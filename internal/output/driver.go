// Package output adapts the playback ring buffer to the clock of an audio sink device.
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/ringbuffer"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice/device"
)

// Device level failure; playback cannot continue on this device.
var ErrOutputFailure = errors.New("output failure")

// Wrap a device error as an ErrOutputFailure.
func Failure(err error) error {
	return fmt.Errorf("%w: %w", ErrOutputFailure, err)
}

// A Driver is the RenderFunc handed to the sink device.
//
// Each call pops what the ring buffer holds, fills any shortfall with silence and
// applies the render-time augmentations (volume). While inactive or paused it renders
// silence and leaves the ring buffer alone, so the playback position does not move.
type Driver struct {
	logger *slog.Logger

	ring    *ringbuffer.RingBuffer
	augment *device.AudioAugmentationDevice

	active atomic.Bool
	paused atomic.Bool

	// Set by the first frame popped after activation. Until then the producer is
	// still filling the buffer and a shortfall is not an underrun.
	primed atomic.Bool

	underruns   atomic.Int64
	inUnderrun  atomic.Bool
	renderCalls atomic.Int64
	played      atomic.Int64
}

func NewDriver(ring *ringbuffer.RingBuffer, augment *device.AudioAugmentationDevice) *Driver {
	return &Driver{
		logger:  slog.Default().With("component", "output driver"),
		ring:    ring,
		augment: augment,
	}
}

// Start pulling audio from sink. The sink properties must match the ring buffer layout.
func (d *Driver) Attach(sink audiodevice.AudioSinkDevice) error {
	props := sink.GetDeviceProperties()
	if props.NumChannels != d.ring.Channels() {
		return Failure(fmt.Errorf("sink has %d channels, ring buffer has %d", props.NumChannels, d.ring.Channels()))
	}
	if err := sink.Start(d.Render); err != nil {
		return Failure(err)
	}
	return nil
}

// Render fills out with the next samples. Called from the device clock.
func (d *Driver) Render(out []float32) {
	d.renderCalls.Add(1)

	if !d.active.Load() || d.paused.Load() {
		clear(out)
		return
	}

	channels := d.ring.Channels()
	frames := d.ring.Pop(out)
	clear(out[frames*channels:])
	d.played.Add(int64(frames))
	if frames > 0 {
		d.primed.Store(true)
	}

	if frames*channels < len(out)-len(out)%channels && d.primed.Load() && !d.ring.EndOfStream() {
		d.underruns.Add(1)
		if !d.inUnderrun.Swap(true) {
			d.logger.Debug("underrun", "wanted", len(out)/channels, "got", frames)
		}
	} else {
		d.inUnderrun.Store(false)
	}

	d.augment.Apply(out[:frames*channels])
}

// An inactive driver renders silence without touching the ring buffer.
// Each activation starts unprimed.
func (d *Driver) SetActive(active bool) {
	d.primed.Store(false)
	d.active.Store(active)
	if !active {
		d.inUnderrun.Store(false)
	}
}

func (d *Driver) Active() bool {
	return d.active.Load()
}

func (d *Driver) SetPaused(paused bool) {
	d.paused.Store(paused)
}

func (d *Driver) Paused() bool {
	return d.paused.Load()
}

// Set the output volume, returning the clamped value in effect.
func (d *Driver) SetVolume(volume float32) float32 {
	return d.augment.SetVolumeAdjustMagnitude(volume)
}

func (d *Driver) Volume() float32 {
	return d.augment.GetVolumeAdjustMagnitude()
}

// Number of render calls that could not be filled while playing.
func (d *Driver) Underruns() int64 {
	return d.underruns.Load()
}

// Total frames of audio handed to the device over the driver's lifetime.
func (d *Driver) Played() int64 {
	return d.played.Load()
}

// Number of render calls made by the device.
func (d *Driver) RenderCalls() int64 {
	return d.renderCalls.Load()
}
