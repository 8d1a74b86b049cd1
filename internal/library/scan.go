package library

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"github.com/cadenza-audio/cadenza/internal/decode"
)

// Scan walks the media root and refreshes the index: new and modified
// files are (re)tagged and upserted, files that vanished are pruned.
// Returns the number of files indexed or refreshed.
func (s *Store) Scan(root string) (int, error) {
	seen := make(map[string]bool)
	updated := 0

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Printf("library: skip %s: %v", path, err)
			return nil
		}
		if info.IsDir() || !decode.Supported(path) {
			return nil
		}
		seen[path] = true

		mtime := info.ModTime().Unix()
		if stored, ok, err := s.Mtime(path); err != nil {
			return err
		} else if ok && stored == mtime {
			return nil
		}

		t := extractMetadata(path)
		if err := s.Upsert(t, mtime); err != nil {
			return err
		}
		updated++
		return nil
	})
	if err != nil {
		return updated, err
	}

	// Prune rows whose files are gone.
	paths, err := s.Paths()
	if err != nil {
		return updated, err
	}
	for _, p := range paths {
		if !seen[p] {
			if err := s.Delete(p); err != nil {
				return updated, err
			}
		}
	}
	return updated, nil
}

// extractMetadata reads embedded tags, falling back to path-derived
// fields when the file has none.
func extractMetadata(path string) Track {
	t := Track{Path: path}

	if f, err := os.Open(path); err == nil {
		if m, err := tag.ReadFrom(f); err == nil {
			t.Title = m.Title()
			t.Artist = m.Artist()
			t.Album = m.Album()
		}
		f.Close()
	}

	if t.Title == "" || t.Artist == "" {
		fallbackFromPath(&t)
	}

	if info, err := decode.Probe(path); err == nil {
		t.DurationSec = info.Duration()
	}
	return t
}

// fallbackFromPath fills missing fields from the filename and directory
// layout: "Artist - Title.ext" filenames, else artist/album from the
// two enclosing directories.
func fallbackFromPath(t *Track) {
	base := strings.TrimSuffix(filepath.Base(t.Path), filepath.Ext(t.Path))
	if t.Title == "" {
		t.Title = base
	}
	if t.Artist == "" {
		if artist, title, ok := strings.Cut(base, " - "); ok {
			t.Artist = strings.TrimSpace(artist)
			if t.Title == base {
				t.Title = strings.TrimSpace(title)
			}
		}
	}
	dir := filepath.Dir(t.Path)
	if t.Album == "" {
		t.Album = filepath.Base(dir)
	}
	if t.Artist == "" {
		t.Artist = filepath.Base(filepath.Dir(dir))
	}
}
