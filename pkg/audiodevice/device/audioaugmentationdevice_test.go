package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVolumeAdjust(t *testing.T) {
	d := NewAudioAugmentationDevice(props(48000, 2), 0.5)

	samples := []float32{1, -1, 0.5, 0}
	d.Apply(samples)
	assert.InDeltaSlice(t, []float32{0.5, -0.5, 0.25, 0}, samples, 1e-6)

	d.SetVolumeAdjustMagnitude(0)
	d.Apply(samples)
	assert.InDeltaSlice(t, []float32{0, 0, 0, 0}, samples, 1e-6)
}

func TestVolumeClamped(t *testing.T) {
	d := NewAudioAugmentationDevice(props(48000, 2), 1)

	assert.Equal(t, float32(0), d.SetVolumeAdjustMagnitude(-3))
	assert.Equal(t, float32(MaxVolume), d.SetVolumeAdjustMagnitude(10))
	assert.Equal(t, float32(MaxVolume), d.GetVolumeAdjustMagnitude())
}
