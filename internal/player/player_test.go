package player

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/playlist"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/spectrum"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/testutil"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/transport"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var props = audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 2}

func testOptions() Options {
	return Options{
		BufferDuration:  300 * time.Millisecond,
		BlockFrames:     1024,
		ResampleQuality: device.DefaultResampleQuality,
		Volume:          0.7,
		FFTSize:         spectrum.DefaultFFTSize,
		Bars:            spectrum.DefaultBars,
		RefreshInterval: 5 * time.Millisecond,
	}
}

func TestPlayerPlaysThroughWithSpectrum(t *testing.T) {
	path := testutil.WriteWav(t, "tone.wav", testutil.Sine(44100, time.Second))
	sink := device.NewDummyAudioSinkDevice(props, time.Millisecond, 96)

	p, err := New(playlist.New(playlist.TrackFromPath(path)), sink, testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	require.NoError(t, p.Execute(ctx, transport.LoadTrack(0)))
	assert.Equal(t, transport.Playing, p.State().State)
	assert.InDelta(t, 0.7, p.State().Volume, 1e-6)

	// The spectrum follows playback and keeps its bar count
	require.Eventually(t, func() bool {
		snap := p.Spectrum()
		if len(snap.Bins) != spectrum.DefaultBars || snap.Frame == 0 {
			return false
		}
		for _, v := range snap.Bins {
			if v > 0 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return p.State().State == transport.Stopped
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, time.Second, p.State().Position)
	assert.Len(t, p.Spectrum().Bins, spectrum.DefaultBars)
	assert.Len(t, p.Tracks(), 1)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewRejectsEmptyBuffer(t *testing.T) {
	sink := device.NewDummyAudioSinkDevice(props, time.Millisecond, 0)
	defer sink.Close()

	opts := testOptions()
	opts.BufferDuration = 0
	_, err := New(playlist.New(), sink, opts)
	assert.Error(t, err)
}

func TestOpenSink(t *testing.T) {
	sink, err := OpenSink(SinkOptions{Kind: SinkNull, Properties: props, Period: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, props, sink.GetDeviceProperties())
	sink.Close()

	_, err = OpenSink(SinkOptions{Kind: SinkWav, Properties: props, Period: 10 * time.Millisecond})
	assert.Error(t, err, "wav output needs a file")

	sink, err = OpenSink(SinkOptions{
		Kind:       SinkWav,
		Properties: props,
		Period:     10 * time.Millisecond,
		OutputFile: filepath.Join(t.TempDir(), "out.wav"),
	})
	require.NoError(t, err)
	sink.Close()

	_, err = OpenSink(SinkOptions{Kind: "alsa"})
	assert.Error(t, err)
}
