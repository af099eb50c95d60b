package decoder

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/vorbis"
)

// FLAC and Ogg Vorbis, decoded through beep streamers.
// beep always streams stereo float64 pairs; mono sources use the left channel.
type beepDecoder struct {
	path   string
	file   *os.File
	stream beep.StreamSeekCloser
	info   StreamInfo

	buf      [][2]float64
	out      frame.PCMFrame
	position int64
	atEnd    bool
}

func newBeepDecoder(f *os.File, path string, codec Codec, blockFrames int) (*beepDecoder, error) {
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch codec {
	case CodecFLAC:
		stream, format, err = flac.Decode(f)
	case CodecVorbis:
		stream, format, err = vorbis.Decode(f)
	default:
		return nil, newDecodeError("open", path, ErrUnsupportedFormat, errors.New(string(codec)))
	}
	if err != nil {
		return nil, newDecodeError("open", path, classify(err), err)
	}

	numChannels := min(2, max(1, format.NumChannels))
	return &beepDecoder{
		path:   path,
		file:   f,
		stream: stream,
		info: StreamInfo{
			Codec: codec,
			Properties: audiodevice.DeviceProperties{
				SampleRate:  int(format.SampleRate),
				NumChannels: numChannels,
			},
			TotalFrames: int64(stream.Len()),
		},
		buf: make([][2]float64, blockFrames),
		out: make(frame.PCMFrame, blockFrames*numChannels),
	}, nil
}

func (d *beepDecoder) Info() StreamInfo {
	return d.info
}

func (d *beepDecoder) Next() (frame.Block, error) {
	if d.atEnd {
		return frame.Block{}, io.EOF
	}
	n, ok := d.stream.Stream(d.buf)
	if err := d.stream.Err(); err != nil {
		return frame.Block{}, newDecodeError("decode", d.path, classify(err), err)
	}
	if !ok || n == 0 {
		return frame.Block{}, io.EOF
	}

	if d.info.Properties.NumChannels == 1 {
		for i := range n {
			d.out[i] = float32(d.buf[i][0])
		}
	} else {
		for i := range n {
			d.out[2*i] = float32(d.buf[i][0])
			d.out[2*i+1] = float32(d.buf[i][1])
		}
	}

	block := frame.Block{
		Samples: d.out[:n*d.info.Properties.NumChannels],
		Offset:  d.position,
	}
	d.position += int64(n)
	return block, nil
}

func (d *beepDecoder) Seek(target int64) (int64, error) {
	target = clampFrame(target, d.info.TotalFrames)
	// The flac seeker rejects the end of the stream as a target
	d.atEnd = target > 0 && target == d.info.TotalFrames
	if d.atEnd {
		d.position = target
		return d.position, nil
	}

	if err := d.stream.Seek(int(target)); err != nil {
		return d.position, newDecodeError("seek", d.path, classify(err), err)
	}
	d.position = int64(d.stream.Position())
	return d.position, nil
}

// The beep streamers may already have closed the file.
func (d *beepDecoder) Close() error {
	streamErr := d.stream.Close()
	fileErr := d.file.Close()
	if errors.Is(fileErr, fs.ErrClosed) {
		fileErr = nil
	}
	return errors.Join(streamErr, fileErr)
}
