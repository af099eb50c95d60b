package device

import (
	"errors"
	"log/slog"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
	"github.com/oov/audio/resampler"
)

const (
	// Headroom added to every resampler output estimate, so rounding in the
	// rate ratio never leaves input unconsumed on a single pass.
	resampleHeadroom = 64

	DefaultResampleQuality = 10
)

// Middle-man processing stage to handle format mismatches
// between the decoded data format and the output device format.
//
// e.g. if the source format is mono at 44100Hz, but the sink format specifies
// stereo at 48000Hz, the converter duplicates the channel and then resamples.
//
// The resampler keeps filter state between calls, so a converter must live for
// exactly one continuous run of audio. Build a new one after a seek or track change.
type AudioFormatConverter struct {
	sourceProperties audiodevice.DeviceProperties
	sinkProperties   audiodevice.DeviceProperties

	// The functions to apply when processing the source data to sink format
	formatConversionFunctions []audioFormatConversionFunction
}

// Create a new AudioFormatConverter by defining:
// - the source properties (the properties of the audio fed into Convert)
// - the sink properties (the properties of the audio Convert returns)
func NewAudioFormatConverter(
	sourceProperties audiodevice.DeviceProperties,
	sinkProperties audiodevice.DeviceProperties,
	quality int,
) (*AudioFormatConverter, error) {
	if sourceProperties.NumChannels <= 0 || sinkProperties.NumChannels <= 0 {
		return nil, errors.New("non-positive channel count")
	}
	if sourceProperties.SampleRate <= 0 || sinkProperties.SampleRate <= 0 {
		return nil, errors.New("non-positive sample rate")
	}
	if sinkProperties.NumChannels > 2 {
		return nil, errors.New("sink devices with more than two channels are not supported")
	}

	formatConversionFunctions := make([]audioFormatConversionFunction, 0)

	numChannels := sourceProperties.NumChannels
	if numChannels > 2 {
		slog.Debug("adding channel reduction", "sourceChannels", numChannels)
		formatConversionFunctions = append(formatConversionFunctions, keepFrontChannels(numChannels))
		numChannels = 2
	}
	if numChannels == 1 && sinkProperties.NumChannels == 2 {
		slog.Debug("adding mono to stereo")
		formatConversionFunctions = append(formatConversionFunctions, monoToStereo())
	}
	if numChannels == 2 && sinkProperties.NumChannels == 1 {
		slog.Debug("adding stereo to mono")
		formatConversionFunctions = append(formatConversionFunctions, stereoToMono())
	}
	if sourceProperties.SampleRate != sinkProperties.SampleRate {
		slog.Debug("adding resampler",
			"sourceSampleRate", sourceProperties.SampleRate,
			"sinkSampleRate", sinkProperties.SampleRate,
		)
		formatConversionFunctions = append(formatConversionFunctions,
			newResampleFunction(sourceProperties.SampleRate, sinkProperties, quality))
	}

	return &AudioFormatConverter{
		sourceProperties:          sourceProperties,
		sinkProperties:            sinkProperties,
		formatConversionFunctions: formatConversionFunctions,
	}, nil
}

// Convert a block of source-format samples to the sink format.
//
// When the formats already match the input is returned untouched.
// Otherwise the returned slice is owned by the converter and is only
// valid until the next call to Convert.
func (c *AudioFormatConverter) Convert(sourceFrame frame.PCMFrame) frame.PCMFrame {
	for _, f := range c.formatConversionFunctions {
		sourceFrame = f(sourceFrame)
	}
	return sourceFrame
}

// True if Convert returns its input unchanged.
func (c *AudioFormatConverter) IsIdentity() bool {
	return len(c.formatConversionFunctions) == 0
}

func (c *AudioFormatConverter) GetSourceDeviceProperties() audiodevice.DeviceProperties {
	return c.sourceProperties
}

// GetDeviceProperties returns the properties of the LEAVING data.
func (c *AudioFormatConverter) GetDeviceProperties() audiodevice.DeviceProperties {
	return c.sinkProperties
}

// --------------------------------------------------------------------------------

type audioFormatConversionFunction func(sourceFrame frame.PCMFrame) frame.PCMFrame

// Grow buf so it holds at least n samples, reusing the allocation when possible.
func ensureLen(buf frame.PCMFrame, n int) frame.PCMFrame {
	if cap(buf) < n {
		return make(frame.PCMFrame, n, n+n/2)
	}
	return buf[:n]
}

func keepFrontChannels(numChannels int) audioFormatConversionFunction {
	var buf frame.PCMFrame
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		numFrames := len(sourceFrame) / numChannels
		buf = ensureLen(buf, 2*numFrames)
		for i := range numFrames {
			buf[2*i] = sourceFrame[numChannels*i]
			buf[2*i+1] = sourceFrame[numChannels*i+1]
		}
		return buf
	}
}

func monoToStereo() audioFormatConversionFunction {
	var buf frame.PCMFrame
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		buf = ensureLen(buf, 2*len(sourceFrame))
		for i, v := range sourceFrame {
			buf[2*i] = v
			buf[2*i+1] = v
		}
		return buf
	}
}

func stereoToMono() audioFormatConversionFunction {
	var buf frame.PCMFrame
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		numFrames := len(sourceFrame) / 2
		buf = ensureLen(buf, numFrames)
		for i := range numFrames {
			buf[i] = (sourceFrame[2*i] + sourceFrame[2*i+1]) / 2
		}
		return buf
	}
}

// Run one channel through the resampler until every input sample is consumed.
// Output is appended to dst, which is returned.
func resampleChannel(r *resampler.Resampler, channel int, in []float32, dst []float32, scratch []float32) []float32 {
	for len(in) > 0 {
		read, written := r.ProcessFloat32(channel, in, scratch)
		dst = append(dst, scratch[:written]...)
		in = in[read:]
		if read == 0 && written == 0 {
			break
		}
	}
	return dst
}

func newResampleFunction(sourceSampleRate int, sinkProperties audiodevice.DeviceProperties, quality int) audioFormatConversionFunction {
	estimate := func(n int) int {
		return n*sinkProperties.SampleRate/sourceSampleRate + resampleHeadroom
	}

	if sinkProperties.NumChannels == 1 {
		r := resampler.New(1, sourceSampleRate, sinkProperties.SampleRate, quality)
		var buf, scratch frame.PCMFrame
		return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
			scratch = ensureLen(scratch, estimate(len(sourceFrame)))
			buf = resampleChannel(r, 0, sourceFrame, buf[:0], scratch)
			return buf
		}
	}

	r := resampler.New(2, sourceSampleRate, sinkProperties.SampleRate, quality)
	var leftSourceBuf, rightSourceBuf frame.PCMFrame
	var leftSinkBuf, rightSinkBuf, scratch frame.PCMFrame
	var buf frame.PCMFrame
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		numFrames := len(sourceFrame) / 2

		// Decode to planar, sourceFrame is interleaved
		leftSourceBuf = ensureLen(leftSourceBuf, numFrames)
		rightSourceBuf = ensureLen(rightSourceBuf, numFrames)
		for i := range numFrames {
			leftSourceBuf[i] = sourceFrame[2*i]
			rightSourceBuf[i] = sourceFrame[2*i+1]
		}

		// Process both channels
		scratch = ensureLen(scratch, estimate(numFrames))
		leftSinkBuf = resampleChannel(r, 0, leftSourceBuf, leftSinkBuf[:0], scratch)
		rightSinkBuf = resampleChannel(r, 1, rightSourceBuf, rightSinkBuf[:0], scratch)

		// Interleave again
		written := min(len(leftSinkBuf), len(rightSinkBuf))
		buf = ensureLen(buf, 2*written)
		for i := range written {
			buf[2*i] = leftSinkBuf[i]
			buf[2*i+1] = rightSinkBuf[i]
		}
		return buf
	}
}
