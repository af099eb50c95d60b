package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/ebitengine/oto/v3"
	"github.com/google/uuid"
)

const (
	bytesPerFloat32 = 4

	// How often the device context is checked for errors
	otoHealthCheckInterval = 250 * time.Millisecond
)

// OtoOutputDevice is an AudioSinkDevice that plays audio to the default output device using oto.
//
// oto pulls samples through an io.Reader; the reader converts each request into a call
// of the RenderFunc, so the sound card clock drives the whole pipeline.
// oto only allows a single context per process, so only one OtoOutputDevice may exist at a time.
type OtoOutputDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	properties audiodevice.DeviceProperties
	context    *oto.Context
	player     *oto.Player

	render  atomic.Pointer[audiodevice.RenderFunc]
	scratch []float32

	failures     chan error
	stop         chan struct{}
	startOnce    sync.Once
	shutdownOnce sync.Once
	closeWg      sync.WaitGroup
}

// NewOtoOutputDevice creates the oto context and waits until the device is ready.
// bufferSize is the device side buffer, which adds to output latency.
func NewOtoOutputDevice(properties audiodevice.DeviceProperties, bufferSize time.Duration) (*OtoOutputDevice, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"oto output device uuid", uuid,
	)

	if properties.NumChannels != 1 && properties.NumChannels != 2 {
		return nil, fmt.Errorf("oto output supports mono or stereo, got %d channels", properties.NumChannels)
	}

	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   properties.SampleRate,
		ChannelCount: properties.NumChannels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		logger.Error("failed to create oto context", "err", err)
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	<-ready

	logger.Debug(
		"initialized oto output device",
		"sampleRate", properties.SampleRate,
		"channels", properties.NumChannels,
		"bufferSize", bufferSize,
	)

	return &OtoOutputDevice{
		logger:     logger,
		uuid:       uuid,
		properties: properties,
		context:    context,
		failures:   make(chan error, 1),
		stop:       make(chan struct{}),
	}, nil
}

// Read implements io.Reader for the oto player.
// Every call renders whole sample frames as float32 little endian.
func (d *OtoOutputDevice) Read(p []byte) (int, error) {
	frameBytes := bytesPerFloat32 * d.properties.NumChannels
	numSamples := (len(p) / frameBytes) * d.properties.NumChannels
	if numSamples == 0 {
		return 0, nil
	}

	if cap(d.scratch) < numSamples {
		d.scratch = make([]float32, numSamples)
	}
	out := d.scratch[:numSamples]

	if render := d.render.Load(); render != nil {
		(*render)(out)
	} else {
		clear(out)
	}

	for i, sample := range out {
		binary.LittleEndian.PutUint32(p[i*bytesPerFloat32:], math.Float32bits(sample))
	}
	return numSamples * bytesPerFloat32, nil
}

// Start playback, pulling audio from render.
func (d *OtoOutputDevice) Start(render audiodevice.RenderFunc) error {
	started := false
	d.startOnce.Do(func() {
		started = true
		d.render.Store(&render)
		d.player = d.context.NewPlayer(d)
		d.player.Play()

		d.closeWg.Add(1)
		go d.watch()

		d.logger.Info("oto output device started successfully")
	})
	if !started {
		return errors.New("device already started")
	}
	return nil
}

// Report the first context or player error as a device failure.
func (d *OtoOutputDevice) watch() {
	defer d.closeWg.Done()

	ticker := time.NewTicker(otoHealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			err := d.context.Err()
			if err == nil {
				err = d.player.Err()
			}
			if err != nil {
				d.logger.Error("audio device failure", "err", err)
				d.failures <- err
				return
			}
		}
	}
}

func (d *OtoOutputDevice) Failures() <-chan error {
	return d.failures
}

func (d *OtoOutputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

// Close stops playback and the health check.
// The oto context itself lives until the process exits.
func (d *OtoOutputDevice) Close() {
	d.logger.Debug("shutdown called")
	d.shutdownOnce.Do(func() {
		close(d.stop)
		d.render.Store(nil)

		if d.player != nil {
			d.player.Pause()
			if err := d.player.Close(); err != nil {
				d.logger.Error("error closing oto player", "err", err)
			}
		}

		done := make(chan struct{})
		go func() {
			d.closeWg.Wait()
			close(done)
		}()

		select {
		case <-done:
			d.logger.Info("oto output device closed")
		case <-time.After(1 * time.Second):
			d.logger.Warn("timeout waiting for output device to close")
		}
	})
}
