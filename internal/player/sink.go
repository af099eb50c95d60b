package player

import (
	"fmt"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice/device"
)

const (
	SinkOto  = "oto"
	SinkWav  = "wav"
	SinkNull = "null"
)

type SinkOptions struct {
	Kind       string
	Properties audiodevice.DeviceProperties

	// Clock period of the software clocked sinks, and buffer size of the sound card
	Period time.Duration

	// Destination of the wav sink
	OutputFile string
}

// Open the audio sink named by opts.Kind.
func OpenSink(opts SinkOptions) (audiodevice.AudioSinkDevice, error) {
	switch opts.Kind {
	case SinkOto:
		return device.NewOtoOutputDevice(opts.Properties, opts.Period)
	case SinkWav:
		if opts.OutputFile == "" {
			return nil, fmt.Errorf("the %s output needs an output file", SinkWav)
		}
		return device.NewFileAudioOutputDevice(opts.OutputFile, opts.Properties, opts.Period)
	case SinkNull:
		return device.NewDummyAudioSinkDevice(opts.Properties, opts.Period, 0), nil
	default:
		return nil, fmt.Errorf("unknown output %q", opts.Kind)
	}
}
