// Package library indexes the media root in SQLite and answers the
// search, browse, and lookup queries behind the control protocol.
package library

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Track is one indexed media file. Copied by value into session queues.
type Track struct {
	Path        string  `json:"path"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album"`
	DurationSec float64 `json:"duration_sec"`
}

// Stats summarizes the index.
type Stats struct {
	Tracks      int     `json:"tracks"`
	Artists     int     `json:"artists"`
	Albums      int     `json:"albums"`
	DurationSec float64 `json:"duration_sec"`
}

// Store is the SQLite-backed track index.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	path         TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	artist       TEXT NOT NULL DEFAULT '',
	album        TEXT NOT NULL DEFAULT '',
	duration_sec REAL NOT NULL DEFAULT 0,
	mtime        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist);
CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album);
`

// Open opens (and if needed creates) the index database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open library db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("library db pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create library schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Upsert inserts or refreshes one track row.
func (s *Store) Upsert(t Track, mtime int64) error {
	_, err := s.db.Exec(`
		INSERT INTO tracks (path, title, artist, album, duration_sec, mtime)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			duration_sec = excluded.duration_sec,
			mtime = excluded.mtime`,
		t.Path, t.Title, t.Artist, t.Album, t.DurationSec, mtime)
	if err != nil {
		return fmt.Errorf("upsert track %s: %w", t.Path, err)
	}
	return nil
}

// Mtime returns the stored modification time for a path, or ok=false
// when the path is not indexed.
func (s *Store) Mtime(path string) (int64, bool, error) {
	var mtime int64
	err := s.db.QueryRow(`SELECT mtime FROM tracks WHERE path = ?`, path).Scan(&mtime)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query mtime: %w", err)
	}
	return mtime, true, nil
}

// Delete removes one track row.
func (s *Store) Delete(path string) error {
	if _, err := s.db.Exec(`DELETE FROM tracks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete track %s: %w", path, err)
	}
	return nil
}

// Paths returns every indexed path. Used to prune files deleted from
// the media root.
func (s *Store) Paths() ([]string, error) {
	rows, err := s.db.Query(`SELECT path FROM tracks`)
	if err != nil {
		return nil, fmt.Errorf("query paths: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ByPath looks up a single track.
func (s *Store) ByPath(path string) (Track, bool, error) {
	var t Track
	err := s.db.QueryRow(`
		SELECT path, title, artist, album, duration_sec
		FROM tracks WHERE path = ?`, path).
		Scan(&t.Path, &t.Title, &t.Artist, &t.Album, &t.DurationSec)
	if err == sql.ErrNoRows {
		return Track{}, false, nil
	}
	if err != nil {
		return Track{}, false, fmt.Errorf("query track %s: %w", path, err)
	}
	return t, true, nil
}

// Search matches the query against title, artist, album, and path.
func (s *Store) Search(query string, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"
	return s.queryTracks(`
		SELECT path, title, artist, album, duration_sec
		FROM tracks
		WHERE title LIKE ? OR artist LIKE ? OR album LIKE ? OR path LIKE ?
		ORDER BY artist, album, title
		LIMIT ?`, pattern, pattern, pattern, pattern, limit)
}

// ByArtist returns all tracks by an artist in album order.
func (s *Store) ByArtist(artist string) ([]Track, error) {
	return s.queryTracks(`
		SELECT path, title, artist, album, duration_sec
		FROM tracks WHERE artist = ?
		ORDER BY album, title`, artist)
}

// ByAlbum returns one album's tracks.
func (s *Store) ByAlbum(album string) ([]Track, error) {
	return s.queryTracks(`
		SELECT path, title, artist, album, duration_sec
		FROM tracks WHERE album = ?
		ORDER BY title`, album)
}

// Tracks returns a page of the whole index.
func (s *Store) Tracks(limit, offset int) ([]Track, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryTracks(`
		SELECT path, title, artist, album, duration_sec
		FROM tracks
		ORDER BY artist, album, title
		LIMIT ? OFFSET ?`, limit, offset)
}

// Artists returns the distinct artist names.
func (s *Store) Artists() ([]string, error) {
	return s.queryStrings(`
		SELECT DISTINCT artist FROM tracks
		WHERE artist != '' ORDER BY artist`)
}

// Albums returns the distinct album names.
func (s *Store) Albums() ([]string, error) {
	return s.queryStrings(`
		SELECT DISTINCT album FROM tracks
		WHERE album != '' ORDER BY album`)
}

// Stats summarizes the index.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COUNT(DISTINCT artist),
		       COUNT(DISTINCT album),
		       COALESCE(SUM(duration_sec), 0)
		FROM tracks`).
		Scan(&st.Tracks, &st.Artists, &st.Albums, &st.DurationSec)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

func (s *Store) queryTracks(q string, args ...any) ([]Track, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()
	var out []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.Path, &t.Title, &t.Artist, &t.Album, &t.DurationSec); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) queryStrings(q string, args ...any) ([]string, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query strings: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
