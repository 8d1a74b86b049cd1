package library

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndLookup(t *testing.T) {
	s := openTestStore(t)

	tr := Track{
		Path:        "/music/artist/album/song.flac",
		Title:       "Song",
		Artist:      "Artist",
		Album:       "Album",
		DurationSec: 181.5,
	}
	require.NoError(t, s.Upsert(tr, 1000))

	got, ok, err := s.ByPath(tr.Path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tr, got)

	// Refresh replaces, not duplicates.
	tr.Title = "Song (Remaster)"
	require.NoError(t, s.Upsert(tr, 2000))
	got, ok, err = s.ByPath(tr.Path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Song (Remaster)", got.Title)

	mtime, ok, err := s.Mtime(tr.Path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2000), mtime)

	_, ok, err = s.ByPath("/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func seedTracks(t *testing.T, s *Store) {
	t.Helper()
	tracks := []Track{
		{Path: "/m/miles/kob/1.flac", Title: "So What", Artist: "Miles Davis", Album: "Kind of Blue", DurationSec: 545},
		{Path: "/m/miles/kob/2.flac", Title: "Blue in Green", Artist: "Miles Davis", Album: "Kind of Blue", DurationSec: 327},
		{Path: "/m/coltrane/gs/1.flac", Title: "Giant Steps", Artist: "John Coltrane", Album: "Giant Steps", DurationSec: 287},
		{Path: "/m/eno/ambient1/1.mp3", Title: "1/1", Artist: "Brian Eno", Album: "Ambient 1", DurationSec: 1057},
	}
	for _, tr := range tracks {
		require.NoError(t, s.Upsert(tr, 1))
	}
}

func TestSearch(t *testing.T) {
	s := openTestStore(t)
	seedTracks(t, s)

	got, err := s.Search("miles", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by artist, album, title.
	assert.Equal(t, "Blue in Green", got[0].Title)
	assert.Equal(t, "So What", got[1].Title)

	// Path matches too.
	got, err = s.Search("ambient1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Brian Eno", got[0].Artist)

	// Limit applies.
	got, err = s.Search("", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Search("no such thing", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBrowse(t *testing.T) {
	s := openTestStore(t)
	seedTracks(t, s)

	byArtist, err := s.ByArtist("Miles Davis")
	require.NoError(t, err)
	assert.Len(t, byArtist, 2)

	byAlbum, err := s.ByAlbum("Giant Steps")
	require.NoError(t, err)
	require.Len(t, byAlbum, 1)
	assert.Equal(t, "John Coltrane", byAlbum[0].Artist)

	artists, err := s.Artists()
	require.NoError(t, err)
	assert.Equal(t, []string{"Brian Eno", "John Coltrane", "Miles Davis"}, artists)

	albums, err := s.Albums()
	require.NoError(t, err)
	assert.Len(t, albums, 3)

	page, err := s.Tracks(2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	rest, err := s.Tracks(10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	seedTracks(t, s)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, st.Tracks)
	assert.Equal(t, 3, st.Artists)
	assert.Equal(t, 3, st.Albums)
	assert.InDelta(t, 545+327+287+1057, st.DurationSec, 0.01)
}

// writeWAV writes a minimal 16-bit mono WAV for scan tests.
func writeWAV(t *testing.T, path string, sampleRate, nsamples int) {
	t.Helper()
	var buf bytes.Buffer
	dataLen := uint32(nsamples * 2)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(make([]byte, dataLen))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Some Artist", "Some Album")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeWAV(t, filepath.Join(dir, "Some Artist - First.wav"), 8000, 8000)
	writeWAV(t, filepath.Join(dir, "Second.wav"), 8000, 4000)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("x"), 0o644))

	s := openTestStore(t)
	n, err := s.Scan(root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Untagged WAV falls back to path-derived metadata.
	tr, ok, err := s.ByPath(filepath.Join(dir, "Some Artist - First.wav"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "First", tr.Title)
	assert.Equal(t, "Some Artist", tr.Artist)
	assert.Equal(t, "Some Album", tr.Album)
	assert.InDelta(t, 1.0, tr.DurationSec, 0.1)

	tr, ok, err = s.ByPath(filepath.Join(dir, "Second.wav"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Second", tr.Title)
	assert.Equal(t, "Some Artist", tr.Artist)

	// Unchanged files are skipped on rescan.
	n, err = s.Scan(root)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Deleted files are pruned.
	require.NoError(t, os.Remove(filepath.Join(dir, "Second.wav")))
	_, err = s.Scan(root)
	require.NoError(t, err)
	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Tracks)
}

func TestResolveInRoot(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "albums")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	file := filepath.Join(sub, "track.flac")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	outside := filepath.Join(t.TempDir(), "secret.flac")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	// Relative and absolute in-root paths resolve.
	got, err := ResolveInRoot(root, filepath.Join("albums", "track.flac"))
	require.NoError(t, err)
	real, _ := filepath.EvalSymlinks(file)
	assert.Equal(t, real, got)

	got, err = ResolveInRoot(root, file)
	require.NoError(t, err)
	assert.Equal(t, real, got)

	// Traversal is rejected.
	_, err = ResolveInRoot(root, filepath.Join("albums", "..", "..", "secret.flac"))
	assert.Error(t, err)

	_, err = ResolveInRoot(root, outside)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutsideRoot)

	// A symlink pointing out of the root is rejected.
	if runtime.GOOS != "windows" {
		link := filepath.Join(sub, "escape.flac")
		require.NoError(t, os.Symlink(outside, link))
		_, err = ResolveInRoot(root, link)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOutsideRoot)
	}

	// Missing files fail resolution.
	_, err = ResolveInRoot(root, "albums/missing.flac")
	assert.Error(t, err)
}
