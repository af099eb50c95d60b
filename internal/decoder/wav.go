package decoder

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Integer PCM .WAV files, 8 to 32 bits per sample.
type wavDecoder struct {
	path string
	file *os.File
	dec  *wav.Decoder
	info StreamInfo

	bitDepth    int
	frameBytes  int64
	blockFrames int
	buf         *goaudio.IntBuffer
	out         frame.PCMFrame
	position    int64

	// File offset and size of the PCM data chunk
	pcmStart int64
	pcmSize  int64
}

func newWavDecoder(f *os.File, path string, blockFrames int) (*wavDecoder, error) {
	dec, err := openWavAtPCM(f, path)
	if err != nil {
		return nil, err
	}
	// The decoder reads the file unbuffered, so the file offset is the first PCM byte
	pcmStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, newDecodeError("open", path, ErrIO, err)
	}

	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, newDecodeError("open", path, ErrUnsupportedFormat,
			fmt.Errorf("wav audio format %d is not integer PCM", dec.WavAudioFormat))
	}
	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, newDecodeError("open", path, ErrUnsupportedFormat,
			fmt.Errorf("unsupported bit depth %d", bitDepth))
	}

	numChannels := int(dec.NumChans)
	frameBytes := int64(numChannels * bitDepth / 8)
	d := &wavDecoder{
		path: path,
		file: f,
		dec:  dec,
		info: StreamInfo{
			Codec: CodecWAV,
			Properties: audiodevice.DeviceProperties{
				SampleRate:  int(dec.SampleRate),
				NumChannels: numChannels,
			},
			TotalFrames: dec.PCMLen() / frameBytes,
		},
		bitDepth:    bitDepth,
		frameBytes:  frameBytes,
		blockFrames: blockFrames,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: numChannels,
				SampleRate:  int(dec.SampleRate),
			},
			Data:           make([]int, blockFrames*numChannels),
			SourceBitDepth: bitDepth,
		},
		out:      make(frame.PCMFrame, 0, blockFrames*numChannels),
		pcmStart: pcmStart,
		pcmSize:  dec.PCMLen(),
	}
	return d, nil
}

// Read the header of f from the start and position the decoder at the first PCM sample.
func openWavAtPCM(f *os.File, path string) (*wav.Decoder, error) {
	const op = "open"
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, newDecodeError(op, path, ErrIO, err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		err := dec.Err()
		if err == nil {
			err = errors.New("not a valid wav file")
		}
		return nil, newDecodeError(op, path, ErrCorruptStream, err)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, newDecodeError(op, path, ErrCorruptStream, errors.New("missing format chunk"))
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, newDecodeError(op, path, classify(err), err)
	}
	return dec, nil
}

func (d *wavDecoder) Info() StreamInfo {
	return d.info
}

func (d *wavDecoder) Next() (frame.Block, error) {
	channels := d.info.Properties.NumChannels
	n, err := d.dec.PCMBuffer(d.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return frame.Block{}, newDecodeError("decode", d.path, classify(err), err)
	}
	n -= n % channels
	if n == 0 {
		return frame.Block{}, io.EOF
	}

	d.out = d.out[:n]
	if d.bitDepth == 8 {
		// 8 bit wav is unsigned
		for i, v := range d.buf.Data[:n] {
			d.out[i] = float32(v-128) / 128
		}
	} else {
		scale := float32(int64(1) << (d.bitDepth - 1))
		for i, v := range d.buf.Data[:n] {
			d.out[i] = float32(v) / scale
		}
	}

	block := frame.Block{Samples: d.out, Offset: d.position}
	d.position += int64(n / channels)
	return block, nil
}

// Seek is exact: the file is positioned at the target frame inside the PCM chunk,
// so the cost does not depend on the target.
func (d *wavDecoder) Seek(target int64) (int64, error) {
	target = clampFrame(target, d.info.TotalFrames)
	offset := target * d.frameBytes

	if _, err := d.file.Seek(d.pcmStart+offset, io.SeekStart); err != nil {
		return d.position, newDecodeError("seek", d.path, classify(err), err)
	}
	// PCMBuffer reads through the chunk reader, bounded by what is left of the chunk
	d.dec.PCMChunk.R = io.LimitReader(d.file, d.pcmSize-offset)
	d.position = target
	return d.position, nil
}

func (d *wavDecoder) Close() error {
	return d.file.Close()
}
