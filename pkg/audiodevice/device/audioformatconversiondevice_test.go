package device

import (
	"math"
	"testing"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func props(rate, channels int) audiodevice.DeviceProperties {
	return audiodevice.DeviceProperties{SampleRate: rate, NumChannels: channels}
}

func TestConverterIdentity(t *testing.T) {
	c, err := NewAudioFormatConverter(props(48000, 2), props(48000, 2), DefaultResampleQuality)
	require.NoError(t, err)
	assert.True(t, c.IsIdentity())

	in := frame.PCMFrame{0.1, -0.2, 1.5, -1.5}
	out := c.Convert(in)
	assert.Equal(t, in, out)
	assert.Same(t, &in[0], &out[0], "identity conversion must not copy")
}

func TestConverterChannelMapping(t *testing.T) {
	tests := []struct {
		name   string
		source int
		sink   int
		in     frame.PCMFrame
		want   frame.PCMFrame
	}{
		{
			name:   "mono to stereo",
			source: 1,
			sink:   2,
			in:     frame.PCMFrame{0.5, -0.25},
			want:   frame.PCMFrame{0.5, 0.5, -0.25, -0.25},
		},
		{
			name:   "stereo to mono",
			source: 2,
			sink:   1,
			in:     frame.PCMFrame{0.5, 0.25, -1, 1},
			want:   frame.PCMFrame{0.375, 0},
		},
		{
			name:   "surround keeps front pair",
			source: 4,
			sink:   2,
			in:     frame.PCMFrame{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8},
			want:   frame.PCMFrame{0.1, 0.2, 0.5, 0.6},
		},
		{
			name:   "out of range values pass through",
			source: 1,
			sink:   2,
			in:     frame.PCMFrame{2.5},
			want:   frame.PCMFrame{2.5, 2.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewAudioFormatConverter(props(44100, tt.source), props(44100, tt.sink), DefaultResampleQuality)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, c.Convert(tt.in), 1e-6)
		})
	}
}

func TestConverterRejectsBadProperties(t *testing.T) {
	_, err := NewAudioFormatConverter(props(0, 2), props(48000, 2), DefaultResampleQuality)
	assert.Error(t, err)
	_, err = NewAudioFormatConverter(props(48000, 0), props(48000, 2), DefaultResampleQuality)
	assert.Error(t, err)
	_, err = NewAudioFormatConverter(props(48000, 2), props(48000, 6), DefaultResampleQuality)
	assert.Error(t, err)
}

// Converting a stream in blocks must preserve its duration, within the filter delay.
func TestConverterResamplePreservesDuration(t *testing.T) {
	const (
		sourceRate = 44100
		sinkRate   = 48000
		blockSize  = 1024
	)
	c, err := NewAudioFormatConverter(props(sourceRate, 2), props(sinkRate, 2), DefaultResampleQuality)
	require.NoError(t, err)
	require.False(t, c.IsIdentity())

	block := make(frame.PCMFrame, 2*blockSize)
	totalIn, totalOut := 0, 0
	for n := 0; totalIn < sourceRate; n++ {
		for i := range blockSize {
			v := float32(0.5 * math.Sin(2*math.Pi*440*float64(n*blockSize+i)/sourceRate))
			block[2*i] = v
			block[2*i+1] = v
		}
		out := c.Convert(block)
		require.Zero(t, len(out)%2, "output must hold whole frames")
		totalIn += blockSize
		totalOut += len(out) / 2
	}

	want := totalIn * sinkRate / sourceRate
	assert.InDelta(t, want, totalOut, blockSize)
}
