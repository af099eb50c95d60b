package device

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------------
// FileAudioOutputDevice

// Define an AudioSinkDevice that pulls audio on a software clock and writes it to a .WAV file.
// Note the resulting file is only valid once the device is closed.
type FileAudioOutputDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	clock      *tickerClock
	encoder    *wav.Encoder
	fileHandle *os.File
	buf        *goaudio.IntBuffer
	failures   chan error

	shutdownOnce sync.Once
	failOnce     sync.Once
}

// Create a new FileAudioOutputDevice that writes 16 bit PCM to a .WAV file at the specified path.
// Audio is pulled every period, in real time.
func NewFileAudioOutputDevice(
	audioFilePath string,
	properties audiodevice.DeviceProperties,
	period time.Duration,
) (*FileAudioOutputDevice, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"file output device uuid", uuid,
	)

	f, err := os.Create(audioFilePath)
	if err != nil {
		logger.Error(
			"could not create audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}

	encoder := wav.NewEncoder(f, properties.SampleRate, 16, properties.NumChannels, 1)

	logger.Debug(
		"created audio file",
		"audioFile", audioFilePath,
		"sampleRate", encoder.SampleRate,
		"channels", encoder.NumChans,
	)

	return &FileAudioOutputDevice{
		logger:     logger,
		uuid:       uuid,
		clock:      newTickerClock(properties, period, 0),
		encoder:    encoder,
		fileHandle: f,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				SampleRate:  properties.SampleRate,
				NumChannels: properties.NumChannels,
			},
			SourceBitDepth: 16,
		},
		failures: make(chan error, 1),
	}, nil
}

func (d *FileAudioOutputDevice) Start(render audiodevice.RenderFunc) error {
	return d.clock.start(render, d.write)
}

func (d *FileAudioOutputDevice) write(pcm []float32) {
	const maxInt16 = float32(math.MaxInt16)

	if cap(d.buf.Data) < len(pcm) {
		d.buf.Data = make([]int, len(pcm))
	}
	d.buf.Data = d.buf.Data[:len(pcm)]
	for i, sample := range pcm {
		sample = max(-1, min(1, sample))
		d.buf.Data[i] = int(sample * maxInt16)
	}

	if err := d.encoder.Write(d.buf); err != nil {
		d.failOnce.Do(func() {
			d.logger.Error("error while writing frame to file", "err", err)
			d.failures <- err
		})
	}
}

func (d *FileAudioOutputDevice) Failures() <-chan error {
	return d.failures
}

func (d *FileAudioOutputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.clock.properties
}

// Stop the clock and finalise the .WAV header.
func (d *FileAudioOutputDevice) Close() {
	d.logger.Debug("shutdown called")
	d.shutdownOnce.Do(func() {
		d.clock.close()
		err := errors.Join(
			d.encoder.Close(),
			d.fileHandle.Sync(),
			d.fileHandle.Close(),
		)
		if err != nil {
			d.logger.Error("error while closing audio file", "err", err)
		}
	})
}
