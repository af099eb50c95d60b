// Package player assembles the playback engine: ring buffer, output driver, spectrum
// analyzer and transport controller around one audio sink.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/output"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/playlist"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/ringbuffer"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/spectrum"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/transport"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice/device"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	BufferDuration  time.Duration
	BlockFrames     int
	ResampleQuality int
	Volume          float32

	FFTSize         int
	Bars            int
	RefreshInterval time.Duration

	// Optional, for tests
	Open transport.OpenFunc
}

// The Player owns every stage of playback. Front ends talk to it through
// State, Spectrum and Send only.
type Player struct {
	logger *slog.Logger

	playlist *playlist.Playlist
	sink     audiodevice.AudioSinkDevice

	ring       *ringbuffer.RingBuffer
	driver     *output.Driver
	fanOut     *device.FanOutDevice
	analyzer   *spectrum.Analyzer
	controller *transport.Controller
}

// Build a player for the tracks of pl, playing to sink. The sink is started by Run.
func New(pl *playlist.Playlist, sink audiodevice.AudioSinkDevice, opts Options) (*Player, error) {
	props := sink.GetDeviceProperties()

	bufferFrames := props.FramesIn(opts.BufferDuration)
	if bufferFrames <= 0 {
		return nil, fmt.Errorf("buffer of %v holds no frames at %d Hz", opts.BufferDuration, props.SampleRate)
	}
	ring := ringbuffer.New(bufferFrames, props.NumChannels)
	driver := output.NewDriver(ring, device.NewAudioAugmentationDevice(props, opts.Volume))
	fanOut := device.NewFanOutDevice(props)

	analyzer, err := spectrum.New(spectrum.Config{
		FFTSize:         opts.FFTSize,
		Bars:            opts.Bars,
		RefreshInterval: opts.RefreshInterval,
		SampleRate:      props.SampleRate,
		NumChannels:     props.NumChannels,
		HistoryFrames:   bufferFrames + opts.FFTSize + 8*max(opts.BlockFrames, 1),
	}, fanOut.GetStream(), ring)
	if err != nil {
		return nil, fmt.Errorf("spectrum analyzer: %w", err)
	}

	controller, err := transport.New(transport.Options{
		Playlist:        pl,
		Ring:            ring,
		Driver:          driver,
		FanOut:          fanOut,
		Visualizer:      analyzer,
		Output:          props,
		Failures:        sink.Failures(),
		BlockFrames:     opts.BlockFrames,
		ResampleQuality: opts.ResampleQuality,
		Open:            opts.Open,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	return &Player{
		logger:     slog.Default().With("component", "player"),
		playlist:   pl,
		sink:       sink,
		ring:       ring,
		driver:     driver,
		fanOut:     fanOut,
		analyzer:   analyzer,
		controller: controller,
	}, nil
}

// Run starts the sink and runs the controller and analyzer until ctx is done.
// The sink is closed before Run returns.
func (p *Player) Run(ctx context.Context) error {
	if err := p.driver.Attach(p.sink); err != nil {
		p.sink.Close()
		return err
	}
	p.logger.Info("audio output started",
		"sampleRate", p.sink.GetDeviceProperties().SampleRate,
		"channels", p.sink.GetDeviceProperties().NumChannels,
		"bufferFrames", p.ring.Cap(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.controller.Run(gctx) })
	g.Go(func() error { return p.analyzer.Run(gctx) })
	err := g.Wait()

	p.sink.Close()
	p.fanOut.Close()
	p.logger.Info("player stopped", "underruns", p.driver.Underruns(), "fanOutDropped", p.fanOut.Dropped())
	return err
}

func (p *Player) State() transport.PlaybackStateView {
	return p.controller.View()
}

func (p *Player) Spectrum() spectrum.Snapshot {
	return p.analyzer.Snapshot()
}

// Queue a command without waiting.
func (p *Player) Send(cmd transport.Command) error {
	return p.controller.Send(cmd)
}

// Apply a command and wait for the result.
func (p *Player) Execute(ctx context.Context, cmd transport.Command) error {
	return p.controller.Execute(ctx, cmd)
}

func (p *Player) Tracks() []playlist.Track {
	return p.playlist.Tracks()
}

// Closed once Run has returned.
func (p *Player) Done() <-chan struct{} {
	return p.controller.Done()
}
