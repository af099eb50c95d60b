// Package spectrum turns the audio being played into a fixed number of display bars.
package spectrum

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/cmplx"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/pkg/frame"
	"github.com/madelynnblue/go-dsp/fft"
	"github.com/madelynnblue/go-dsp/window"
)

const (
	DefaultFFTSize         = 2048
	DefaultBars            = 32
	DefaultRefreshInterval = 50 * time.Millisecond

	// Bars span this range of frequencies, log spaced
	minFrequency = 20.0
	maxFrequency = 20000.0

	// Levels below -dynamicRange dBFS display as empty
	dynamicRange = 60.0

	// Weight of the previous level in each smoothed bar
	smoothing = 0.7

	beatThreshold  = 0.3
	beatRefractory = 200 * time.Millisecond
	beatDecay      = 0.95
)

type Config struct {
	FFTSize         int
	Bars            int
	RefreshInterval time.Duration

	// Format of the blocks arriving on the stream
	SampleRate  int
	NumChannels int

	// Frames of history kept. Must cover how far the producer runs ahead of the
	// output, plus one FFT window.
	HistoryFrames int
}

// Where the output actually is, in frames since the pipeline started.
type Playhead interface {
	Consumed() int64
}

// A Snapshot is one published analysis. Snapshots are never modified once published.
type Snapshot struct {
	// One level in [0, 1] per bar, lowest frequency first
	Bins []float64

	// Playback position the analysis window ends at
	Position time.Duration
	Frame    int64

	// Bass driven pulse in [0, 1], decaying between beats
	Beat float64

	Generation uint64
}

// The Analyzer reads a tap of the converted audio and publishes the spectrum of the
// window ending at the playhead, every refresh interval.
//
// It only ever reads its own stream: it never touches the ring buffer the output drains,
// and publishing is a single atomic pointer swap, so neither playback nor the display
// can be held up by analysis.
type Analyzer struct {
	logger *slog.Logger
	cfg    Config

	stream   <-chan frame.Block
	playhead Playhead

	latest atomic.Pointer[Snapshot]
	zero   *Snapshot
	active atomic.Bool

	// Held while checking active and storing latest, so a snapshot taken before a
	// pause cannot land after the zeroed one.
	publishMu sync.Mutex

	// Guards everything below. Shared between Run and Reset.
	mu         sync.Mutex
	generation uint64
	base       time.Duration
	history    []float64 // mono, indexed by output frame modulo len
	written    int64     // one past the newest frame in history

	window   []float64
	scale    float64 // a full scale sine peaks at 1
	windowed []float64
	smoothed []float64
	edges    []int

	beat          float64
	lastBeatFrame int64
}

func New(cfg Config, stream <-chan frame.Block, playhead Playhead) (*Analyzer, error) {
	if cfg.FFTSize <= 0 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		return nil, errors.New("fft size must be a positive power of two")
	}
	if cfg.Bars <= 0 || cfg.Bars > cfg.FFTSize/2 {
		return nil, errors.New("bar count must be between 1 and half the fft size")
	}
	if cfg.RefreshInterval <= 0 {
		return nil, errors.New("non-positive refresh interval")
	}
	if cfg.SampleRate <= 0 || cfg.NumChannels <= 0 {
		return nil, errors.New("invalid stream format")
	}
	cfg.HistoryFrames = max(cfg.HistoryFrames, 2*cfg.FFTSize)

	a := &Analyzer{
		logger:   slog.Default().With("component", "spectrum analyzer"),
		cfg:      cfg,
		stream:   stream,
		playhead: playhead,
		zero: &Snapshot{
			Bins: make([]float64, cfg.Bars),
		},
		history:       make([]float64, cfg.HistoryFrames),
		window:        window.Hann(cfg.FFTSize),
		windowed:      make([]float64, cfg.FFTSize),
		smoothed:      make([]float64, cfg.Bars),
		edges:         bandEdges(cfg.Bars, cfg.FFTSize, cfg.SampleRate),
		lastBeatFrame: math.MinInt64 / 2,
	}
	var windowSum float64
	for _, w := range a.window {
		windowSum += w
	}
	a.scale = 2 / windowSum

	a.latest.Store(a.zero)
	return a, nil
}

// Compute the FFT bin index where each bar starts; the last entry ends the final bar.
// Every bar covers at least one bin.
func bandEdges(bars, fftSize, sampleRate int) []int {
	binHz := float64(sampleRate) / float64(fftSize)
	lastBin := fftSize / 2

	lo := max(minFrequency, binHz)
	hi := min(maxFrequency, float64(sampleRate)/2)
	if hi <= lo {
		hi = float64(sampleRate) / 2
	}

	edges := make([]int, bars+1)
	for i := range edges {
		f := lo * math.Pow(hi/lo, float64(i)/float64(bars))
		edges[i] = int(f / binHz)
	}

	// Force strictly increasing edges within [1, lastBin]
	edges[0] = max(1, edges[0])
	for i := 1; i <= bars; i++ {
		edges[i] = max(edges[i], edges[i-1]+1)
	}
	for i := bars; i >= 0; i-- {
		limit := lastBin - (bars - i)
		edges[i] = min(edges[i], limit)
	}
	return edges
}

// Run the analysis loop until ctx is done or the stream is closed.
func (a *Analyzer) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case block, ok := <-a.stream:
			if !ok {
				a.logger.Debug("stream closed")
				return nil
			}
			a.ingest(block)
		case <-ticker.C:
			a.analyze()
		}
	}
}

// Latest published snapshot. The caller owns the returned Bins.
func (a *Analyzer) Snapshot() Snapshot {
	snap := *a.latest.Load()
	snap.Bins = slices.Clone(snap.Bins)
	return snap
}

// Number of bars in every snapshot.
func (a *Analyzer) Bars() int {
	return a.cfg.Bars
}

// Start tracking a new pipeline. Blocks from any other generation are discarded,
// and base is the track position of the pipeline's first frame.
func (a *Analyzer) Reset(generation uint64, base time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.generation = generation
	a.base = base
	a.written = 0
	clear(a.history)
	clear(a.smoothed)
	a.beat = 0
	a.lastBeatFrame = math.MinInt64 / 2
	a.latest.Store(a.zero)
}

// While inactive (paused or stopped) the analyzer publishes a zeroed snapshot.
func (a *Analyzer) SetActive(active bool) {
	a.publishMu.Lock()
	defer a.publishMu.Unlock()
	a.active.Store(active)
	if !active {
		a.latest.Store(a.zero)
	}
}

// Add a block to the mono history.
func (a *Analyzer) ingest(block frame.Block) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if block.Generation != a.generation {
		return
	}

	channels := a.cfg.NumChannels
	size := int64(len(a.history))

	// Blocks the fan out dropped leave a gap; it reads as silence
	for f := a.written; f < block.Offset && f < a.written+size; f++ {
		a.history[f%size] = 0
	}

	frames := block.Frames(channels)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(block.Samples[i*channels+c])
		}
		a.history[(block.Offset+int64(i))%size] = sum / float64(channels)
	}
	a.written = max(a.written, block.Offset+int64(frames))
}

// Analyze the window ending at the playhead and publish the result.
func (a *Analyzer) analyze() {
	if !a.active.Load() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	end := a.playhead.Consumed()
	size := int64(len(a.history))
	start := end - int64(a.cfg.FFTSize)
	oldest := max(0, a.written-size)

	for i := range a.cfg.FFTSize {
		f := start + int64(i)
		var v float64
		if f >= oldest && f >= 0 && f < a.written {
			v = a.history[f%size]
		}
		a.windowed[i] = v * a.window[i]
	}

	spectrum := fft.FFTReal(a.windowed)

	bins := make([]float64, a.cfg.Bars)
	for b := range a.cfg.Bars {
		var peak float64
		for k := a.edges[b]; k < a.edges[b+1]; k++ {
			peak = max(peak, cmplx.Abs(spectrum[k]))
		}
		magnitude := peak * a.scale

		level := 0.0
		if magnitude > 0 {
			level = (20*math.Log10(magnitude) + dynamicRange) / dynamicRange
		}
		level = max(0, min(1, level))

		a.smoothed[b] = a.smoothed[b]*smoothing + level*(1-smoothing)
		bins[b] = a.smoothed[b]
	}

	a.detectBeat(spectrum, end)

	a.publishMu.Lock()
	defer a.publishMu.Unlock()
	if !a.active.Load() {
		return
	}
	a.latest.Store(&Snapshot{
		Bins:       bins,
		Position:   a.base + time.Duration(end*int64(time.Second)/int64(a.cfg.SampleRate)),
		Frame:      end,
		Beat:       a.beat,
		Generation: a.generation,
	})
}

// A beat is a jump in bass energy, the root of the summed magnitudes of the lowest eighth
// of the spectrum relative to its peak. Beats are at least beatRefractory apart.
func (a *Analyzer) detectBeat(spectrum []complex128, playhead int64) {
	half := a.cfg.FFTSize / 2
	var peak float64
	for k := 1; k < half; k++ {
		peak = max(peak, cmplx.Abs(spectrum[k]))
	}

	var energy float64
	if peak > 0 {
		for k := range half / 8 {
			energy += cmplx.Abs(spectrum[k]) / peak
		}
		energy = math.Sqrt(energy)
	}

	refractory := int64(beatRefractory) * int64(a.cfg.SampleRate) / int64(time.Second)
	if energy > beatThreshold && playhead-a.lastBeatFrame > refractory {
		a.beat = min(1, energy-beatThreshold)
		a.lastBeatFrame = playhead
	} else {
		a.beat *= beatDecay
	}
}
