package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/cadenza-audio/cadenza/internal/codec"
	"github.com/cadenza-audio/cadenza/internal/decode"
	"github.com/cadenza-audio/cadenza/internal/library"
	"github.com/cadenza-audio/cadenza/internal/session"
)

// handleMessage is the read pump's dispatcher. Runs on the read pump
// goroutine only.
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(CodeInvalidRequest, "malformed message")
		return
	}
	switch msg.Type {
	case "subscribe":
		c.handleSubscribe(msg.Payload)
	case "unsubscribe":
		c.handleUnsubscribe()
	case "control":
		c.handleControl(msg.Payload)
	case "search":
		c.handleSearch(msg.Payload)
	case "queue":
		c.handleQueue(msg.Payload)
	case "library":
		c.handleLibrary(msg.Payload)
	default:
		c.sendError(CodeInvalidRequest, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// handleSubscribe creates (or reuses) the client's playback session and
// applies an optional quality override.
func (c *Client) handleSubscribe(payload json.RawMessage) {
	var req subscribeRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			c.sendError(CodeInvalidRequest, "malformed subscribe payload")
			return
		}
	}

	quality := c.server.opts.Quality
	mode := c.server.opts.Mode
	if req.Quality != "" {
		q, err := codec.ParseQuality(req.Quality)
		if err != nil {
			c.sendError(CodeInvalidRequest, err.Error())
			return
		}
		quality = q
	}
	if req.BitrateMode != "" {
		m, err := codec.ParseBitrateMode(req.BitrateMode)
		if err != nil {
			c.sendError(CodeInvalidRequest, err.Error())
			return
		}
		mode = m
	}

	cs := c.server.ensureSession(c)
	cs.sess.SetQuality(quality, mode)
	c.sendJSON("music_state", cs.sess.Snapshot())
}

func (c *Client) handleUnsubscribe() {
	if c.cs == nil {
		return
	}
	c.server.teardownSession(c.cs)
	c.cs = nil
}

func (c *Client) handleControl(payload json.RawMessage) {
	if c.cs == nil {
		c.sendError(CodeInvalidRequest, "subscribe first")
		return
	}
	var req controlRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(CodeInvalidRequest, "malformed control payload")
		return
	}
	sess := c.cs.sess

	switch req.Action {
	case "play":
		c.handlePlay(sess, req)
	case "pause":
		c.reportErr(sess.Pause())
	case "stop":
		c.reportErr(sess.Stop())
	case "next":
		c.reportErr(sess.Next())
	case "previous":
		c.reportErr(sess.Previous())
	case "seek":
		c.reportErr(sess.Seek(req.PositionSec))
	case "play_index":
		if req.Index == nil {
			c.sendError(CodeInvalidRequest, "play_index needs an index")
			return
		}
		c.reportErr(sess.PlayIndex(*req.Index))
	case "add_to_queue":
		t, ok := c.resolveTrack(req.Path)
		if !ok {
			return
		}
		c.reportErr(sess.Add(t))
	case "remove_from_queue":
		if req.Index == nil {
			c.sendError(CodeInvalidRequest, "remove_from_queue needs an index")
			return
		}
		c.reportErr(sess.Remove(*req.Index))
	case "clear_queue":
		c.reportErr(sess.Clear())
	case "add_artist":
		c.handleAddGroup(sess, "artist", req.Artist)
	case "add_album":
		c.handleAddGroup(sess, "album", req.Album)
	default:
		c.sendError(CodeUnknownAction, fmt.Sprintf("unknown control action %q", req.Action))
	}
}

// handlePlay covers the three play forms: resume, play a path, and
// play-by-search.
func (c *Client) handlePlay(sess *session.Session, req controlRequest) {
	switch {
	case req.Path != "":
		t, ok := c.resolveTrack(req.Path)
		if !ok {
			return
		}
		c.reportErr(sess.PlayTrack(t))
	case req.Query != "":
		tracks, err := c.server.store.Search(req.Query, 0)
		if err != nil {
			c.sendError(CodePlayback, "library search failed")
			log.Printf("server: search %q: %v", req.Query, err)
			return
		}
		if len(tracks) == 0 {
			c.sendError(CodeNotFound, fmt.Sprintf("no tracks match %q", req.Query))
			return
		}
		c.reportErr(sess.PlayTracks(tracks))
	default:
		c.reportErr(sess.PlayResume())
	}
}

func (c *Client) handleAddGroup(sess *session.Session, kind, name string) {
	if name == "" {
		c.sendError(CodeInvalidRequest, "add_"+kind+" needs a name")
		return
	}
	var (
		tracks []library.Track
		err    error
	)
	if kind == "artist" {
		tracks, err = c.server.store.ByArtist(name)
	} else {
		tracks, err = c.server.store.ByAlbum(name)
	}
	if err != nil {
		c.sendError(CodePlayback, "library lookup failed")
		log.Printf("server: lookup %s %q: %v", kind, name, err)
		return
	}
	if len(tracks) == 0 {
		c.sendError(CodeNotFound, fmt.Sprintf("no tracks for %s %q", kind, name))
		return
	}
	added := sess.AddAll(tracks)
	if added < len(tracks) {
		c.sendError(CodeInvalidRequest,
			fmt.Sprintf("queue full, added %d of %d tracks", added, len(tracks)))
	}
}

func (c *Client) handleSearch(payload json.RawMessage) {
	var req searchRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.Query == "" {
		c.sendError(CodeInvalidRequest, "search needs a query")
		return
	}
	tracks, err := c.server.store.Search(req.Query, req.Limit)
	if err != nil {
		c.sendError(CodePlayback, "library search failed")
		log.Printf("server: search %q: %v", req.Query, err)
		return
	}
	c.sendJSON("music_search_response", map[string]any{
		"query":   req.Query,
		"results": tracks,
	})
}

func (c *Client) handleQueue(payload json.RawMessage) {
	if c.cs == nil {
		c.sendError(CodeInvalidRequest, "subscribe first")
		return
	}
	var req queueRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(CodeInvalidRequest, "malformed queue payload")
		return
	}
	sess := c.cs.sess

	switch req.Action {
	case "", "list":
	case "add":
		t, ok := c.resolveTrack(req.Path)
		if !ok {
			return
		}
		if !c.reportErr(sess.Add(t)) {
			return
		}
	case "remove":
		if req.Index == nil {
			c.sendError(CodeInvalidRequest, "remove needs an index")
			return
		}
		if !c.reportErr(sess.Remove(*req.Index)) {
			return
		}
	case "clear":
		if !c.reportErr(sess.Clear()) {
			return
		}
	default:
		c.sendError(CodeUnknownAction, fmt.Sprintf("unknown queue action %q", req.Action))
		return
	}

	st := sess.Snapshot()
	c.sendJSON("music_queue_response", map[string]any{
		"queue": sess.Queue(),
		"index": st.QueueIndex,
	})
}

func (c *Client) handleLibrary(payload json.RawMessage) {
	var req libraryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(CodeInvalidRequest, "malformed library payload")
		return
	}

	var (
		result any
		err    error
	)
	switch req.Type {
	case "stats":
		result, err = c.server.store.Stats()
	case "tracks":
		result, err = c.server.store.Tracks(req.Limit, req.Offset)
	case "artists":
		result, err = c.server.store.Artists()
	case "albums":
		result, err = c.server.store.Albums()
	case "tracks_by_artist":
		if req.Artist == "" {
			c.sendError(CodeInvalidRequest, "tracks_by_artist needs an artist")
			return
		}
		result, err = c.server.store.ByArtist(req.Artist)
	case "tracks_by_album":
		if req.Album == "" {
			c.sendError(CodeInvalidRequest, "tracks_by_album needs an album")
			return
		}
		result, err = c.server.store.ByAlbum(req.Album)
	default:
		c.sendError(CodeInvalidRequest, fmt.Sprintf("unknown library request %q", req.Type))
		return
	}
	if err != nil {
		c.sendError(CodePlayback, "library query failed")
		log.Printf("server: library %s: %v", req.Type, err)
		return
	}
	c.sendJSON("music_library_response", map[string]any{
		"type":   req.Type,
		"result": result,
	})
}

// resolveTrack validates a client-supplied path against the media root
// and returns its library entry, synthesizing one for unindexed files.
func (c *Client) resolveTrack(path string) (library.Track, bool) {
	if path == "" {
		c.sendError(CodeInvalidRequest, "missing track path")
		return library.Track{}, false
	}
	resolved, err := library.ResolveInRoot(c.server.opts.MediaRoot, path)
	if err != nil {
		if errors.Is(err, library.ErrOutsideRoot) {
			c.sendError(CodeInvalidPath, "path escapes the media root")
		} else {
			c.sendError(CodeInvalidPath, "path not found")
		}
		return library.Track{}, false
	}
	if !decode.Supported(resolved) {
		c.sendError(CodeUnavailable,
			fmt.Sprintf("unsupported format %s", filepath.Ext(resolved)))
		return library.Track{}, false
	}
	if t, ok, err := c.server.store.ByPath(resolved); err == nil && ok {
		return t, true
	}
	name := filepath.Base(resolved)
	return library.Track{
		Path:  resolved,
		Title: strings.TrimSuffix(name, filepath.Ext(name)),
	}, true
}

// reportErr maps session errors onto protocol error codes. Returns
// true when err was nil.
func (c *Client) reportErr(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, session.ErrQueueEmpty),
		errors.Is(err, session.ErrQueueFull),
		errors.Is(err, session.ErrNotPlaying):
		c.sendError(CodeInvalidRequest, err.Error())
	case errors.Is(err, session.ErrInvalidIndex):
		c.sendError(CodeInvalidIndex, err.Error())
	case errors.Is(err, session.ErrEncoderInit):
		c.sendError(CodeInit, err.Error())
	case errors.Is(err, decode.ErrUnsupported):
		c.sendError(CodeUnavailable, err.Error())
	default:
		c.sendError(CodePlayback, err.Error())
	}
	return false
}
