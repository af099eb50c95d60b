package device

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
)

// The number of blocks each fan out stream can hold before blocks are dropped.
const FAN_OUT_STREAM_BUFFER_SIZE = 64

// --------------------------------------------------------------------------------
// Fan Out Device (One to Many)

// A FanOutDevice copies every block written to it onto any number of streams.
//
// Writing never blocks: a stream that is not ready to accept a block simply misses it,
// so a slow consumer (e.g. a visualiser) can never hold up the producer that writes.
// Each call to GetStream creates a *new* stream unique to that call.
//
// Add and removing streams is concurrency safe thanks to a mutex.
type FanOutDevice struct {
	deviceProperties audiodevice.DeviceProperties

	sinksMutex sync.RWMutex
	sinks      []chan frame.Block
	closed     bool

	dropped atomic.Int64
}

// Create a new FanOutDevice.
// The given device properties describe the blocks written to the device.
func NewFanOutDevice(properties audiodevice.DeviceProperties) *FanOutDevice {
	return &FanOutDevice{
		deviceProperties: properties,
		sinks:            make([]chan frame.Block, 0),
	}
}

func (d *FanOutDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.deviceProperties
}

// Copy the block to every stream that can accept it right now.
//
// The samples are cloned once and shared read-only between streams,
// so the caller may reuse block.Samples as soon as Write returns.
func (d *FanOutDevice) Write(block frame.Block) {
	d.sinksMutex.RLock()
	defer d.sinksMutex.RUnlock()
	if d.closed || len(d.sinks) == 0 {
		return
	}

	block.Samples = slices.Clone(block.Samples)
	for _, sink := range d.sinks {
		select {
		case sink <- block:
		default:
			// The stream is full, it misses this block
			d.dropped.Add(1)
		}
	}
}

// Get a new stream from this fan out device.
//
// The returned channel is closed when the device is closed.
func (d *FanOutDevice) GetStream() <-chan frame.Block {
	d.sinksMutex.Lock()
	defer d.sinksMutex.Unlock()

	stream := make(chan frame.Block, FAN_OUT_STREAM_BUFFER_SIZE)
	if d.closed {
		close(stream)
		return stream
	}
	d.sinks = append(d.sinks, stream)
	return stream
}

// Number of blocks that could not be delivered to some stream.
func (d *FanOutDevice) Dropped() int64 {
	return d.dropped.Load()
}

func (d *FanOutDevice) Close() {
	d.sinksMutex.Lock()
	defer d.sinksMutex.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, sink := range d.sinks {
		close(sink)
	}
	d.sinks = d.sinks[:0]
}
