// Package testutil generates audio fixtures for tests.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// Tone describes a sine wave fixture.
type Tone struct {
	SampleRate  int
	NumChannels int
	BitDepth    int
	Duration    time.Duration
	Frequency   float64
	Amplitude   float64
}

// Frames is the number of sample frames the tone spans.
func (tone Tone) Frames() int {
	return int(int64(tone.SampleRate) * int64(tone.Duration) / int64(time.Second))
}

// Sample value of the tone at frame i, in [-Amplitude, Amplitude].
func (tone Tone) At(i int) float64 {
	return tone.Amplitude * math.Sin(2*math.Pi*tone.Frequency*float64(i)/float64(tone.SampleRate))
}

// Sine is a 16 bit stereo tone at 440 Hz.
func Sine(sampleRate int, duration time.Duration) Tone {
	return Tone{
		SampleRate:  sampleRate,
		NumChannels: 2,
		BitDepth:    16,
		Duration:    duration,
		Frequency:   440,
		Amplitude:   0.5,
	}
}

// WriteWav encodes the tone into name inside a fresh temporary directory and returns the path.
func WriteWav(t testing.TB, name string, tone Tone) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	encoder := wav.NewEncoder(f, tone.SampleRate, tone.BitDepth, tone.NumChannels, 1)

	scale := float64(int64(1)<<(tone.BitDepth-1) - 1)
	frames := tone.Frames()
	data := make([]int, frames*tone.NumChannels)
	for i := range frames {
		v := tone.At(i) * scale
		for c := range tone.NumChannels {
			if tone.BitDepth == 8 {
				data[i*tone.NumChannels+c] = int(v) + 128
			} else {
				data[i*tone.NumChannels+c] = int(v)
			}
		}
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: tone.NumChannels,
			SampleRate:  tone.SampleRate,
		},
		Data:           data,
		SourceBitDepth: tone.BitDepth,
	}
	require.NoError(t, encoder.Write(buf))
	require.NoError(t, encoder.Close())
	return path
}

// WriteFile writes raw bytes to name inside a fresh temporary directory and returns the path.
func WriteFile(t testing.TB, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, contents, 0o644))
	return path
}

// WriteRampWav writes a 16 bit stereo track whose sample value rises linearly from 0 to 0.9,
// so any sample identifies the position it was taken from.
func WriteRampWav(t testing.TB, name string, sampleRate int, duration time.Duration) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	frames := int(int64(sampleRate) * int64(duration) / int64(time.Second))
	data := make([]int, 2*frames)
	for i := range frames {
		v := int(RampValue(i, frames) * math.MaxInt16)
		data[2*i] = v
		data[2*i+1] = v
	}

	encoder := wav.NewEncoder(f, sampleRate, 16, 2, 1)
	require.NoError(t, encoder.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, encoder.Close())
	return path
}

// RampValue is the sample value of a ramp track of total frames at frame i.
func RampValue(i, total int) float64 {
	return 0.9 * float64(i) / float64(total)
}
