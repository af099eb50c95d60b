package transport

import (
	"fmt"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/decoder"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/playlist"
)

type State int

const (
	Stopped State = iota
	Playing
	Paused
	Seeking
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	case Seeking:
		return "Seeking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// --------------------------------------------------------------------------------
// Commands

type CommandKind int

const (
	CommandPlay CommandKind = iota
	CommandPause
	CommandTogglePause
	CommandStop
	CommandSeek
	CommandSeekRelative
	CommandLoadTrack
	CommandNext
	CommandPrevious
	CommandSetVolume
)

func (k CommandKind) String() string {
	switch k {
	case CommandPlay:
		return "Play"
	case CommandPause:
		return "Pause"
	case CommandTogglePause:
		return "TogglePause"
	case CommandStop:
		return "Stop"
	case CommandSeek:
		return "Seek"
	case CommandSeekRelative:
		return "SeekRelative"
	case CommandLoadTrack:
		return "LoadTrack"
	case CommandNext:
		return "Next"
	case CommandPrevious:
		return "Previous"
	case CommandSetVolume:
		return "SetVolume"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// A Command is a request to change playback. Build one with the constructors below.
type Command struct {
	Kind CommandKind

	// Seek target
	Position time.Duration
	// SeekRelative offset from the current position
	Delta time.Duration
	// LoadTrack playlist index
	Index int
	// SetVolume magnitude, 1.0 is unity gain
	Volume float32

	reply chan error
}

func Play() Command        { return Command{Kind: CommandPlay} }
func Pause() Command       { return Command{Kind: CommandPause} }
func TogglePause() Command { return Command{Kind: CommandTogglePause} }
func Stop() Command        { return Command{Kind: CommandStop} }
func Next() Command        { return Command{Kind: CommandNext} }
func Previous() Command    { return Command{Kind: CommandPrevious} }

func Seek(position time.Duration) Command {
	return Command{Kind: CommandSeek, Position: position}
}

func SeekRelative(delta time.Duration) Command {
	return Command{Kind: CommandSeekRelative, Delta: delta}
}

func LoadTrack(index int) Command {
	return Command{Kind: CommandLoadTrack, Index: index}
}

func SetVolume(volume float32) Command {
	return Command{Kind: CommandSetVolume, Volume: volume}
}

func (c Command) isSeek() bool {
	return c.Kind == CommandSeek || c.Kind == CommandSeekRelative
}

func (c Command) String() string {
	switch c.Kind {
	case CommandSeek:
		return fmt.Sprintf("Seek(%v)", c.Position)
	case CommandSeekRelative:
		return fmt.Sprintf("SeekRelative(%v)", c.Delta)
	case CommandLoadTrack:
		return fmt.Sprintf("LoadTrack(%d)", c.Index)
	case CommandSetVolume:
		return fmt.Sprintf("SetVolume(%.2f)", c.Volume)
	default:
		return c.Kind.String()
	}
}

func (c Command) respond(err error) {
	if c.reply != nil {
		c.reply <- err
	}
}

// --------------------------------------------------------------------------------
// Views

// A read only snapshot of playback, for display.
type PlaybackStateView struct {
	State State

	// -1 when no track has been loaded
	TrackIndex int
	Track      playlist.Track
	Info       decoder.StreamInfo

	Position time.Duration
	Duration time.Duration

	// Only meaningful while Seeking
	SeekTarget time.Duration

	Volume    float32
	Underruns int64

	// Most recent error that abandoned a track or stopped playback
	LastError error

	Generation uint64
}

// The part of the view written by the controller loop.
// Position is derived on read from the ring buffer's consumed counter.
type published struct {
	state      State
	trackIndex int
	track      playlist.Track
	info       decoder.StreamInfo
	base       time.Duration // track position of the pipeline's first frame
	stoppedAt  time.Duration // position reported while Stopped
	seekTarget time.Duration
	lastError  error
	generation uint64
}
