package playlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Track
	}{
		{"/music/Band - Song.mp3", Track{Path: "/music/Band - Song.mp3", Artist: "Band", Title: "Song"}},
		{"/music/song.flac", Track{Path: "/music/song.flac", Title: "song"}},
		{"a - b - c.wav", Track{Path: "a - b - c.wav", Artist: "a", Title: "b - c"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, TrackFromPath(tt.path))
		})
	}
	assert.Equal(t, "Band - Song", TrackFromPath("Band - Song.mp3").DisplayName())
	assert.Equal(t, "song", TrackFromPath("song.mp3").DisplayName())
}

func TestNavigationDoesNotWrap(t *testing.T) {
	p := New(Track{Title: "a"}, Track{Title: "b"}, Track{Title: "c"})

	next, ok := p.Next(0)
	assert.True(t, ok)
	assert.Equal(t, 1, next)

	_, ok = p.Next(2)
	assert.False(t, ok, "no track after the last")

	prev, ok := p.Previous(2)
	assert.True(t, ok)
	assert.Equal(t, 1, prev)

	prev, ok = p.Previous(0)
	assert.True(t, ok)
	assert.Equal(t, 0, prev, "the first track restarts")

	_, ok = p.Previous(-1)
	assert.False(t, ok)

	_, ok = p.At(3)
	assert.False(t, ok)
}

func TestFromPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp3", "a.wav", "notes.txt", filepath.Join("sub", "c.flac")} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}
	single := filepath.Join(t.TempDir(), "z.ogg")
	require.NoError(t, os.WriteFile(single, nil, 0o644))

	p, err := FromPaths([]string{single, dir})
	require.NoError(t, err)

	var names []string
	for _, track := range p.Tracks() {
		names = append(names, filepath.Base(track.Path))
	}
	assert.Equal(t, []string{"z.ogg", "a.wav", "b.mp3", "c.flac"}, names)
}

func TestFromPathsErrors(t *testing.T) {
	_, err := FromPaths([]string{filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), nil, 0o644))
	_, err = FromPaths([]string{dir})
	assert.ErrorIs(t, err, ErrEmpty)
}
