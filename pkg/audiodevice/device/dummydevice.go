package device

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
)

// A software clock that calls a RenderFunc for a fixed number of frames every period.
// Stands in for the hardware clock of a sound card.
type tickerClock struct {
	properties    audiodevice.DeviceProperties
	period        time.Duration
	framesPerTick int

	startOnce    sync.Once
	shutdownOnce sync.Once
	stop         chan struct{}
	wg           sync.WaitGroup
}

func newTickerClock(properties audiodevice.DeviceProperties, period time.Duration, framesPerTick int) *tickerClock {
	if framesPerTick <= 0 {
		framesPerTick = properties.FramesIn(period)
	}
	return &tickerClock{
		properties:    properties,
		period:        period,
		framesPerTick: framesPerTick,
		stop:          make(chan struct{}),
	}
}

// Run render every period, passing each filled buffer to consume.
func (c *tickerClock) start(render audiodevice.RenderFunc, consume func([]float32)) error {
	if c.period <= 0 || c.framesPerTick <= 0 {
		return errors.New("non-positive clock period")
	}
	started := false
	c.startOnce.Do(func() {
		started = true
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			buf := make([]float32, c.framesPerTick*c.properties.NumChannels)
			ticker := time.NewTicker(c.period)
			defer ticker.Stop()
			for {
				select {
				case <-c.stop:
					return
				case <-ticker.C:
					render(buf)
					if consume != nil {
						consume(buf)
					}
				}
			}
		}()
	})
	if !started {
		return errors.New("device already started")
	}
	return nil
}

func (c *tickerClock) close() {
	c.shutdownOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
}

// --------------------------------------------------------------------------------

// An AudioSinkDevice that pulls audio on a software clock and discards it.
//
// Useful in testing and for running without a sound card. framesPerTick may exceed
// the frames that fit in one period, in which case audio is consumed faster than real time.
type DummyAudioSinkDevice struct {
	properties audiodevice.DeviceProperties
	clock      *tickerClock
	failures   chan error

	ticks atomic.Int64
}

// Create a DummyAudioSinkDevice that renders framesPerTick frames every period.
// A non-positive framesPerTick means real time (the frames that fit in one period).
func NewDummyAudioSinkDevice(properties audiodevice.DeviceProperties, period time.Duration, framesPerTick int) *DummyAudioSinkDevice {
	return &DummyAudioSinkDevice{
		properties: properties,
		clock:      newTickerClock(properties, period, framesPerTick),
		failures:   make(chan error, 1),
	}
}

func (d *DummyAudioSinkDevice) Start(render audiodevice.RenderFunc) error {
	return d.clock.start(render, func([]float32) {
		d.ticks.Add(1)
	})
}

// Inject a device failure, as a lost sound card would.
func (d *DummyAudioSinkDevice) Fail(err error) {
	select {
	case d.failures <- err:
	default:
	}
}

// Number of buffers rendered so far.
func (d *DummyAudioSinkDevice) Ticks() int64 {
	return d.ticks.Load()
}

func (d *DummyAudioSinkDevice) Failures() <-chan error {
	return d.failures
}

func (d *DummyAudioSinkDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

func (d *DummyAudioSinkDevice) Close() {
	d.clock.close()
}
