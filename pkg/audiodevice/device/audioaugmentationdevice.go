package device

import (
	"math"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
)

// Render-time processing stage to handle audio augmentations,
// such as volume controls.
//
// Augmentations run inside the output callback, so changes are heard on the next
// device period rather than after everything already buffered. All settings are
// atomics; Apply never takes a lock.
type AudioAugmentationDevice struct {
	deviceProperties audiodevice.DeviceProperties

	augmentationFunctions []audioAugmentationFunction

	// float32 bits of the volume magnitude
	volumeAdjustMagnitude atomic.Uint32
}

// Create a new AudioAugmentationDevice, automatically adding
// audioAugmentationFunctions:
//   - volumeAdjust (controlled with AudioAugmentationDevice.SetVolumeAdjustMagnitude)
//     (0.0 for mute, capped at MaxVolume)
func NewAudioAugmentationDevice(deviceProperties audiodevice.DeviceProperties, volume float32) *AudioAugmentationDevice {
	device := &AudioAugmentationDevice{
		deviceProperties: deviceProperties,
	}
	device.SetVolumeAdjustMagnitude(volume)

	device.augmentationFunctions = []audioAugmentationFunction{
		device.volumeAdjust,
	}
	return device
}

// Apply every augmentation to out, in place.
func (d *AudioAugmentationDevice) Apply(out []float32) {
	for _, f := range d.augmentationFunctions {
		f(out)
	}
}

// The device properties of the incoming and outgoing samples are identical.
func (d *AudioAugmentationDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.deviceProperties
}

// --------------------------------------------------------------------------------
// Methods relating to changing the augmentation functions

const MaxVolume = 2.0

// Set the volumeAdjustMagnitude to a new value, clamped to [0, MaxVolume].
// 0.0 means muted, 1.0 is natural scaling; values above 1.0 may clip.
// Returns the value actually stored.
func (d *AudioAugmentationDevice) SetVolumeAdjustMagnitude(volumeAdjustMagnitude float32) float32 {
	if math.IsNaN(float64(volumeAdjustMagnitude)) {
		volumeAdjustMagnitude = 0.0
	}
	volumeAdjustMagnitude = max(0.0, min(MaxVolume, volumeAdjustMagnitude))
	d.volumeAdjustMagnitude.Store(math.Float32bits(volumeAdjustMagnitude))
	return volumeAdjustMagnitude
}

// Get the current volumeAdjustMagnitude.
func (d *AudioAugmentationDevice) GetVolumeAdjustMagnitude() float32 {
	return math.Float32frombits(d.volumeAdjustMagnitude.Load())
}

// --------------------------------------------------------------------------------

// An audioAugmentationFunction rewrites samples in place, keeping the device properties.
type audioAugmentationFunction func(samples []float32)

func (d *AudioAugmentationDevice) volumeAdjust(samples []float32) {
	volume := d.GetVolumeAdjustMagnitude()
	if volume == 1.0 {
		return
	}
	for i := range samples {
		samples[i] *= volume
	}
}
