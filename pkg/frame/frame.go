// Package frame defines the units of audio passed between the stages of the playback pipeline.
package frame

// PCMFrame holds interleaved floating-point samples.
//
// Samples are nominally in [-1, 1], but no stage other than the output encoder
// is required to clip them.
type PCMFrame []float32

// Frames returns the number of sample frames (one sample per channel) in the PCMFrame.
// Trailing samples that do not make up a full frame are not counted.
func (f PCMFrame) Frames(numChannels int) int {
	if numChannels <= 0 {
		return 0
	}
	return len(f) / numChannels
}

// A Block is a run of PCM data tagged with its place in the stream.
//
// Offset is the index of the first sample frame of the block, counted from the start of
// the stream the block belongs to. Generation identifies the pipeline that produced the
// block, so consumers can discard data left over from a torn down pipeline.
type Block struct {
	Samples    PCMFrame
	Offset     int64
	Generation uint64
}

// Frames returns the number of sample frames in the block.
func (b Block) Frames(numChannels int) int {
	return b.Samples.Frames(numChannels)
}
