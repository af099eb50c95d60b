package decoder

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always decodes to 16 bit little endian stereo
const (
	mp3Channels   = 2
	mp3FrameBytes = 4
)

type mp3Decoder struct {
	path string
	file *os.File
	dec  *mp3.Decoder
	info StreamInfo

	raw      []byte
	out      frame.PCMFrame
	position int64

	// Set by a seek to the very end; go-mp3 cannot seek past its last frame
	atEnd bool
}

func newMp3Decoder(f *os.File, path string, blockFrames int) (*mp3Decoder, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, newDecodeError("open", path, classify(err), err)
	}

	totalFrames := dec.Length() / mp3FrameBytes
	if totalFrames < 0 {
		totalFrames = 0
	}

	return &mp3Decoder{
		path: path,
		file: f,
		dec:  dec,
		info: StreamInfo{
			Codec: CodecMP3,
			Properties: audiodevice.DeviceProperties{
				SampleRate:  dec.SampleRate(),
				NumChannels: mp3Channels,
			},
			TotalFrames: totalFrames,
		},
		raw: make([]byte, blockFrames*mp3FrameBytes),
		out: make(frame.PCMFrame, blockFrames*mp3Channels),
	}, nil
}

func (d *mp3Decoder) Info() StreamInfo {
	return d.info
}

func (d *mp3Decoder) Next() (frame.Block, error) {
	if d.atEnd {
		return frame.Block{}, io.EOF
	}
	n, err := io.ReadFull(d.dec, d.raw)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return frame.Block{}, newDecodeError("decode", d.path, classify(err), err)
	}
	frames := n / mp3FrameBytes
	if frames == 0 {
		return frame.Block{}, io.EOF
	}

	samples := frames * mp3Channels
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(d.raw[2*i:]))
		d.out[i] = float32(v) / 32768
	}

	block := frame.Block{Samples: d.out[:samples], Offset: d.position}
	d.position += int64(frames)
	return block, nil
}

// Seek lands exactly on the target frame; go-mp3 decodes forward from the nearest MPEG frame.
func (d *mp3Decoder) Seek(target int64) (int64, error) {
	target = clampFrame(target, d.info.TotalFrames)
	d.atEnd = target > 0 && target == d.info.TotalFrames
	if d.atEnd {
		d.position = target
		return d.position, nil
	}

	offset, err := d.dec.Seek(target*mp3FrameBytes, io.SeekStart)
	if err != nil {
		return d.position, newDecodeError("seek", d.path, classify(err), err)
	}
	d.position = offset / mp3FrameBytes
	return d.position, nil
}

func (d *mp3Decoder) Close() error {
	return d.file.Close()
}
