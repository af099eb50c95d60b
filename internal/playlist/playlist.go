// Package playlist holds the ordered list of tracks the player moves through.
package playlist

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/decoder"
)

var ErrEmpty = errors.New("no playable files")

// A playable file and the names shown for it.
type Track struct {
	Path   string
	Title  string
	Artist string
}

const artistSeparator = " - "

// Name a track after its file. "Artist - Title.ext" fills both fields; any other
// name becomes the title.
func TrackFromPath(path string) Track {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	track := Track{Path: path, Title: name}
	if artist, title, ok := strings.Cut(name, artistSeparator); ok {
		track.Artist = strings.TrimSpace(artist)
		track.Title = strings.TrimSpace(title)
	}
	return track
}

func (t Track) DisplayName() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + artistSeparator + t.Title
}

// A Playlist is an ordered, immutable list of tracks.
// Being immutable it is safe to share between goroutines.
type Playlist struct {
	tracks []Track
}

func New(tracks ...Track) *Playlist {
	return &Playlist{tracks: slices.Clone(tracks)}
}

// FromPaths builds a playlist from files and directories.
//
// Directories are walked recursively and their playable files added in lexical order.
// Files named explicitly are kept in the order given, unless their extension is not playable.
func FromPaths(paths []string) (*Playlist, error) {
	var tracks []Track
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if decoder.Supported(path) {
				tracks = append(tracks, TrackFromPath(path))
			}
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && decoder.Supported(p) {
				tracks = append(tracks, TrackFromPath(p))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if len(tracks) == 0 {
		return nil, ErrEmpty
	}
	return &Playlist{tracks: tracks}, nil
}

// Len returns the number of tracks.
func (p *Playlist) Len() int { return len(p.tracks) }

// At returns the track at index i.
func (p *Playlist) At(i int) (Track, bool) {
	if i < 0 || i >= len(p.tracks) {
		return Track{}, false
	}
	return p.tracks[i], true
}

// Tracks returns a copy of all tracks in the playlist.
func (p *Playlist) Tracks() []Track { return slices.Clone(p.tracks) }

// Next returns the index after i. There is no wrap: false on the last track.
func (p *Playlist) Next(i int) (int, bool) {
	if i+1 >= len(p.tracks) || i < -1 {
		return -1, false
	}
	return i + 1, true
}

// Previous returns the index before i; the first track is its own predecessor.
func (p *Playlist) Previous(i int) (int, bool) {
	if len(p.tracks) == 0 || i < 0 || i >= len(p.tracks) {
		return -1, false
	}
	return max(0, i-1), true
}
