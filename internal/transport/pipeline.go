package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/decoder"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/playlist"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice/device"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
	"github.com/google/uuid"
)

// One decoder and converter feeding the ring buffer, from one start position of one track.
// Pipelines are never reused: a seek or track change starts a new one.
type pipeline struct {
	logger *slog.Logger
	id     uuid.UUID

	generation uint64
	track      playlist.Track
	info       decoder.StreamInfo

	cancel context.CancelFunc
	done   chan struct{}

	// Set by the controller once the producer reported end of stream
	exhausted bool
}

type producerResult struct {
	generation uint64
	err        error // nil at end of stream
}

// Open the track, seek to startFrame (in source frames) and start producing.
func (c *Controller) startPipeline(index int, startFrame int64) error {
	track, _ := c.opts.Playlist.At(index)

	dec, err := c.opts.Open(track.Path, c.opts.BlockFrames)
	if err != nil {
		return c.pipelineFailed(index, track, err)
	}
	info := dec.Info()

	if startFrame > 0 {
		startFrame, err = dec.Seek(startFrame)
		if err != nil {
			dec.Close()
			return c.pipelineFailed(index, track, err)
		}
	}

	converter, err := device.NewAudioFormatConverter(info.Properties, c.opts.Output, c.opts.ResampleQuality)
	if err != nil {
		dec.Close()
		return c.pipelineFailed(index, track, err)
	}

	c.generation++
	id := uuid.New()
	p := &pipeline{
		logger: c.logger.With(
			"pipeline uuid", id,
			"generation", c.generation,
		),
		id:         id,
		generation: c.generation,
		track:      track,
		info:       info,
		done:       make(chan struct{}),
	}
	base := info.Properties.DurationOf(startFrame)

	c.opts.Ring.Flush()
	if c.opts.Visualizer != nil {
		c.opts.Visualizer.Reset(p.generation, base)
	}

	ctx, cancel := context.WithCancel(c.runCtx)
	p.cancel = cancel
	c.pipe = p
	go c.produce(ctx, p, dec, converter)

	c.trackIndex = index
	c.state = Playing
	c.publish(func(v *published) {
		v.state = Playing
		v.trackIndex = index
		v.track = track
		v.info = info
		v.base = base
		v.stoppedAt = 0
		v.generation = p.generation
	})

	c.opts.Driver.SetPaused(false)
	c.opts.Driver.SetActive(true)
	if c.opts.Visualizer != nil {
		c.opts.Visualizer.SetActive(true)
	}

	p.logger.Info("pipeline started",
		"track", track.Path,
		"codec", info.Codec,
		"sourceSampleRate", info.Properties.SampleRate,
		"sourceChannels", info.Properties.NumChannels,
		"start", base,
		"resampling", !converter.IsIdentity(),
	)
	return nil
}

func (c *Controller) pipelineFailed(index int, track playlist.Track, err error) error {
	c.logger.Error("could not start track", "track", track.Path, "err", err)
	c.trackIndex = index
	c.publish(func(v *published) {
		v.trackIndex = index
		v.track = track
		v.info = decoder.StreamInfo{}
		v.lastError = err
	})
	return err
}

// Stop the current pipeline and empty the ring buffer.
//
// The producer is cancelled and waited on for at most TeardownTimeout. A producer that
// outlives the wait can no longer write: RingBuffer.Push checks for cancellation under
// the buffer lock, and anything it sends the fan out carries a stale generation.
func (c *Controller) teardown() {
	c.opts.Driver.SetActive(false)
	if c.opts.Visualizer != nil {
		c.opts.Visualizer.SetActive(false)
	}

	if p := c.pipe; p != nil {
		c.pipe = nil
		p.cancel()
		select {
		case <-p.done:
			p.logger.Debug("pipeline stopped")
		case <-time.After(c.opts.TeardownTimeout):
			p.logger.Warn("timeout waiting for pipeline to stop")
		}
	}
	c.opts.Ring.Flush()
}

// The producer loop: decode, convert, copy to the fan out, then push to the ring buffer.
// Cancellation is checked at every block.
func (c *Controller) produce(ctx context.Context, p *pipeline, dec decoder.Decoder, converter *device.AudioFormatConverter) {
	defer close(p.done)
	defer func() {
		if err := dec.Close(); err != nil {
			p.logger.Warn("error closing decoder", "err", err)
		}
	}()

	channels := c.opts.Output.NumChannels
	var offset int64
	err := func() error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			block, err := dec.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}

			out := converter.Convert(block.Samples)
			if len(out) == 0 {
				continue
			}

			c.opts.FanOut.Write(frame.Block{
				Samples:    out,
				Offset:     offset,
				Generation: p.generation,
			})
			if err := c.opts.Ring.Push(ctx, out); err != nil {
				return err
			}
			offset += int64(out.Frames(channels))
		}
	}()

	if err == nil {
		p.logger.Debug("producer finished", "frames", offset)
	}
	select {
	case c.producerDone <- producerResult{generation: p.generation, err: err}:
	case <-ctx.Done():
	}
}
