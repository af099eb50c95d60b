// Package decoder turns audio files into blocks of interleaved float32 PCM.
package decoder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
)

const DefaultBlockFrames = 1024

type Codec string

const (
	CodecWAV    Codec = "wav"
	CodecMP3    Codec = "mp3"
	CodecFLAC   Codec = "flac"
	CodecVorbis Codec = "vorbis"
)

// Stream metadata, fixed once the decoder is open.
type StreamInfo struct {
	Codec       Codec
	Properties  audiodevice.DeviceProperties
	TotalFrames int64
}

func (i StreamInfo) Duration() time.Duration {
	return i.Properties.DurationOf(i.TotalFrames)
}

// A Decoder produces the PCM of one file, block by block.
//
// Blocks are produced lazily and the stream is finite: once exhausted Next returns io.EOF.
// The only way back is Seek. A Decoder is not safe for concurrent use.
type Decoder interface {
	Info() StreamInfo

	// Next returns the next block in source format. Block.Samples is owned by the
	// decoder and valid until the following call to Next or Seek.
	Next() (frame.Block, error)

	// Seek discards decode state and resumes at the nearest decodable frame at or before
	// target, clamped to [0, TotalFrames]. The returned frame is authoritative.
	Seek(target int64) (int64, error)

	Close() error
}

// Map of file extension to the codec that decodes it.
var extensions = map[string]Codec{
	".wav":  CodecWAV,
	".wave": CodecWAV,
	".mp3":  CodecMP3,
	".flac": CodecFLAC,
	".ogg":  CodecVorbis,
	".oga":  CodecVorbis,
}

// Supported reports whether Open recognises the extension of path.
func Supported(path string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Open a file for decoding, choosing the codec by file extension.
// Each call to Next yields up to blockFrames frames.
func Open(path string, blockFrames int) (Decoder, error) {
	if blockFrames <= 0 {
		blockFrames = DefaultBlockFrames
	}

	codec, ok := extensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, newDecodeError("open", path, ErrUnsupportedFormat,
			fmt.Errorf("unrecognised extension %q", filepath.Ext(path)))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, newDecodeError("open", path, ErrIO, err)
	}

	var d Decoder
	switch codec {
	case CodecWAV:
		d, err = newWavDecoder(f, path, blockFrames)
	case CodecMP3:
		d, err = newMp3Decoder(f, path, blockFrames)
	case CodecFLAC, CodecVorbis:
		d, err = newBeepDecoder(f, path, codec, blockFrames)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func clampFrame(target, total int64) int64 {
	return max(0, min(target, total))
}
