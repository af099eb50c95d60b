// Package transport owns playback state and turns user commands into pipeline changes.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/decoder"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/output"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/playlist"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/ringbuffer"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/audiodevice/device"
)

const (
	COMMAND_QUEUE_SIZE = 64

	DefaultTeardownTimeout  = 1 * time.Second
	DefaultEndCheckInterval = 10 * time.Millisecond
)

var (
	// A seek target outside the track; it is clamped, never fatal
	ErrInvalidSeekTarget = errors.New("invalid seek target")

	ErrNoTrack      = errors.New("no such track")
	ErrQueueFull    = errors.New("command queue full")
	ErrClosed       = errors.New("controller closed")
	ErrDeviceFailed = errors.New("output device has failed")
)

type OpenFunc func(path string, blockFrames int) (decoder.Decoder, error)

// The parts of the spectrum analyzer the controller drives.
type Visualizer interface {
	Reset(generation uint64, base time.Duration)
	SetActive(active bool)
}

type Options struct {
	Playlist *playlist.Playlist
	Ring     *ringbuffer.RingBuffer
	Driver   *output.Driver
	FanOut   *device.FanOutDevice

	// Optional
	Visualizer Visualizer

	// Format the converted audio must have; matches the ring buffer and the sink
	Output audiodevice.DeviceProperties

	// Device failures, usually AudioSinkDevice.Failures()
	Failures <-chan error

	BlockFrames     int
	ResampleQuality int

	// Defaults to decoder.Open
	Open OpenFunc

	TeardownTimeout  time.Duration
	EndCheckInterval time.Duration
}

// The Controller is the only writer of playback state.
//
// A single goroutine (Run) applies commands in the order they were sent, together with
// producer completions, device failures and end of track checks, so no two pipeline
// changes ever overlap.
type Controller struct {
	logger *slog.Logger
	opts   Options

	commands     chan Command
	producerDone chan producerResult
	done         chan struct{}

	// Owned by the Run goroutine
	runCtx       context.Context
	pending      *Command
	pipe         *pipeline
	generation   uint64
	state        State
	trackIndex   int
	deviceFailed error

	view atomic.Pointer[published]
}

func New(opts Options) (*Controller, error) {
	if opts.Playlist == nil || opts.Ring == nil || opts.Driver == nil || opts.FanOut == nil {
		return nil, errors.New("playlist, ring buffer, driver and fan out are required")
	}
	if opts.Output.NumChannels != opts.Ring.Channels() {
		return nil, fmt.Errorf("output has %d channels, ring buffer has %d", opts.Output.NumChannels, opts.Ring.Channels())
	}
	if opts.Output.SampleRate <= 0 {
		return nil, errors.New("non-positive output sample rate")
	}
	if opts.BlockFrames <= 0 {
		opts.BlockFrames = decoder.DefaultBlockFrames
	}
	if opts.ResampleQuality <= 0 {
		opts.ResampleQuality = device.DefaultResampleQuality
	}
	if opts.Open == nil {
		opts.Open = decoder.Open
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = DefaultTeardownTimeout
	}
	if opts.EndCheckInterval <= 0 {
		opts.EndCheckInterval = DefaultEndCheckInterval
	}

	c := &Controller{
		logger:       slog.Default().With("component", "transport"),
		opts:         opts,
		commands:     make(chan Command, COMMAND_QUEUE_SIZE),
		producerDone: make(chan producerResult, 4),
		done:         make(chan struct{}),
		trackIndex:   -1,
	}
	c.view.Store(&published{trackIndex: -1})
	return c, nil
}

// --------------------------------------------------------------------------------
// Command sink

// Send queues a command without waiting for it to be applied.
func (c *Controller) Send(cmd Command) error {
	cmd.reply = nil
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.commands <- cmd:
		return nil
	default:
		c.logger.Warn("dropping command, queue full", "command", cmd)
		return ErrQueueFull
	}
}

// Execute queues a command and waits until it has been applied.
// The returned error is the command's own failure, e.g. ErrNoTrack.
func (c *Controller) Execute(ctx context.Context, cmd Command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.commands <- cmd:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// --------------------------------------------------------------------------------
// View

func (c *Controller) View() PlaybackStateView {
	p := c.view.Load()
	v := PlaybackStateView{
		State:      p.state,
		TrackIndex: p.trackIndex,
		Track:      p.track,
		Info:       p.info,
		Duration:   p.info.Duration(),
		SeekTarget: p.seekTarget,
		Volume:     c.opts.Driver.Volume(),
		Underruns:  c.opts.Driver.Underruns(),
		LastError:  p.lastError,
		Generation: p.generation,
	}

	switch p.state {
	case Playing, Paused:
		v.Position = p.base + c.opts.Output.DurationOf(c.opts.Ring.Consumed())
		v.Position = min(v.Position, v.Duration)
	case Seeking:
		v.Position = p.seekTarget
	default:
		v.Position = p.stoppedAt
	}
	return v
}

// Publish a copy of the current view with f applied.
func (c *Controller) publish(f func(p *published)) {
	next := *c.view.Load()
	f(&next)
	c.view.Store(&next)
}

// --------------------------------------------------------------------------------
// Run loop

// Run processes commands until ctx is done. Any pipeline is torn down before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.runCtx = ctx

	ticker := time.NewTicker(c.opts.EndCheckInterval)
	defer ticker.Stop()

	failures := c.opts.Failures
	for {
		if c.pending != nil {
			cmd := *c.pending
			c.pending = nil
			c.handle(cmd)
			continue
		}

		select {
		case <-ctx.Done():
			c.teardown()
			c.drainCommands()
			c.logger.Debug("controller stopped")
			return nil
		case cmd := <-c.commands:
			c.handle(cmd)
		case res := <-c.producerDone:
			c.onProducerDone(res)
		case err, ok := <-failures:
			if !ok {
				failures = nil
				continue
			}
			failures = nil
			c.onOutputFailure(err)
		case <-ticker.C:
			c.checkTrackEnd()
		}
	}
}

func (c *Controller) drainCommands() {
	for {
		select {
		case cmd := <-c.commands:
			cmd.respond(ErrClosed)
		default:
			return
		}
	}
}

// Take the next queued command without waiting.
func (c *Controller) tryNext() (Command, bool) {
	select {
	case cmd := <-c.commands:
		return cmd, true
	default:
		return Command{}, false
	}
}

func (c *Controller) handle(cmd Command) {
	c.logger.Debug("handling command", "command", cmd, "state", c.state)

	var err error
	switch cmd.Kind {
	case CommandPlay:
		err = c.play()
	case CommandPause:
		c.pause()
	case CommandTogglePause:
		if c.state == Playing {
			c.pause()
		} else {
			err = c.play()
		}
	case CommandStop:
		c.stop(0)
	case CommandSeek, CommandSeekRelative:
		cmd, err = c.seek(cmd)
	case CommandLoadTrack:
		err = c.loadTrack(cmd.Index)
	case CommandNext:
		err = c.next()
	case CommandPrevious:
		err = c.previous()
	case CommandSetVolume:
		volume := c.opts.Driver.SetVolume(cmd.Volume)
		c.logger.Debug("volume set", "volume", volume)
	default:
		err = fmt.Errorf("unknown command %v", cmd.Kind)
	}

	if err != nil {
		c.logger.Debug("command failed", "command", cmd, "err", err)
	}
	cmd.respond(err)
}

// --------------------------------------------------------------------------------
// Transitions

func (c *Controller) setState(state State) {
	c.state = state
	c.publish(func(p *published) {
		p.state = state
	})
}

func (c *Controller) recordError(err error) {
	c.publish(func(p *published) {
		p.lastError = err
	})
}

func (c *Controller) play() error {
	switch c.state {
	case Playing:
		return nil
	case Paused:
		c.opts.Driver.SetPaused(false)
		if c.opts.Visualizer != nil {
			c.opts.Visualizer.SetActive(true)
		}
		c.setState(Playing)
		return nil
	}
	return c.loadTrack(max(0, c.trackIndex))
}

func (c *Controller) pause() {
	if c.state != Playing {
		return
	}
	c.opts.Driver.SetPaused(true)
	if c.opts.Visualizer != nil {
		c.opts.Visualizer.SetActive(false)
	}
	c.setState(Paused)
}

// Tear down playback and report position at as the stopped position.
func (c *Controller) stop(at time.Duration) {
	c.teardown()
	c.opts.Driver.SetPaused(false)
	c.state = Stopped
	c.publish(func(p *published) {
		p.state = Stopped
		p.stoppedAt = at
	})
}

func (c *Controller) loadTrack(index int) error {
	if _, ok := c.opts.Playlist.At(index); !ok {
		return fmt.Errorf("%w: index %d", ErrNoTrack, index)
	}
	if c.deviceFailed != nil {
		return c.deviceFailed
	}

	c.teardown()
	if err := c.startPipeline(index, 0); err != nil {
		c.advancePast(index)
		return err
	}
	return nil
}

// Next on the last track stops with the position reset; there is no wrap.
func (c *Controller) next() error {
	index, ok := c.opts.Playlist.Next(c.trackIndex)
	if !ok {
		c.stop(0)
		return nil
	}
	return c.loadTrack(index)
}

// Previous on the first track restarts it.
func (c *Controller) previous() error {
	index, ok := c.opts.Playlist.Previous(c.trackIndex)
	if !ok {
		index = 0
	}
	return c.loadTrack(index)
}

// Apply a seek, folding in any seeks queued directly behind it.
// Returns the last command folded in, which is the one answered by handle.
func (c *Controller) seek(cmd Command) (Command, error) {
	if c.trackIndex < 0 {
		return cmd, ErrNoTrack
	}
	if c.deviceFailed != nil {
		return cmd, c.deviceFailed
	}

	current := c.View().Position
	target := c.resolveSeek(cmd, current)
	for {
		queued, ok := c.tryNext()
		if !ok {
			break
		}
		if !queued.isSeek() {
			c.pending = &queued
			break
		}
		c.logger.Debug("coalescing seek", "superseded", cmd, "by", queued)
		cmd.respond(nil)
		cmd = queued
		target = c.resolveSeek(cmd, target)
	}

	info := c.view.Load().info
	duration := info.Duration()
	if target < 0 || target > duration {
		c.logger.Warn("clamping seek target",
			"err", ErrInvalidSeekTarget,
			"target", target,
			"duration", duration,
		)
		target = max(0, min(target, duration))
	}

	c.state = Seeking
	c.publish(func(p *published) {
		p.state = Seeking
		p.seekTarget = target
	})
	c.teardown()

	frame := int64(target) * int64(info.Properties.SampleRate) / int64(time.Second)
	if err := c.startPipeline(c.trackIndex, frame); err != nil {
		c.stop(0)
		return cmd, err
	}
	return cmd, nil
}

func (c *Controller) resolveSeek(cmd Command, from time.Duration) time.Duration {
	if cmd.Kind == CommandSeekRelative {
		return from + cmd.Delta
	}
	return cmd.Position
}

// After a track is abandoned, play the first following track that opens, else stop.
func (c *Controller) advancePast(index int) {
	for next, ok := c.opts.Playlist.Next(index); ok; next, ok = c.opts.Playlist.Next(next) {
		if err := c.startPipeline(next, 0); err == nil {
			return
		}
	}
	c.stop(0)
}

// --------------------------------------------------------------------------------
// Pipeline events

func (c *Controller) onProducerDone(res producerResult) {
	if c.pipe == nil || res.generation != c.pipe.generation {
		return
	}
	if res.err == nil {
		c.logger.Debug("decoder exhausted", "pipeline", c.pipe.id)
		c.pipe.exhausted = true
		c.opts.Ring.CloseWrite()
		return
	}
	if errors.Is(res.err, context.Canceled) {
		return
	}

	c.logger.Error("abandoning track", "track", c.pipe.track.Path, "err", res.err)
	c.recordError(res.err)
	index := c.trackIndex
	c.teardown()
	c.advancePast(index)
}

func (c *Controller) onOutputFailure(err error) {
	err = output.Failure(err)
	c.logger.Error("output device failed, stopping playback", "err", err)
	c.deviceFailed = fmt.Errorf("%w: %w", ErrDeviceFailed, err)
	c.recordError(err)
	c.stop(0)
}

// When the current track has been played out, move to the next or stop at its end.
func (c *Controller) checkTrackEnd() {
	if c.state != Playing || c.pipe == nil || !c.pipe.exhausted || !c.opts.Ring.Drained() {
		return
	}

	duration := c.pipe.info.Duration()
	c.logger.Info("track finished", "track", c.pipe.track.Path)
	if next, ok := c.opts.Playlist.Next(c.trackIndex); ok {
		c.teardown()
		if err := c.startPipeline(next, 0); err != nil {
			c.advancePast(next)
		}
		return
	}
	c.stop(duration)
}
