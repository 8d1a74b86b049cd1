// Package session implements per-client music playback: a queue of
// tracks, the decode/resample/encode worker that turns them into paced
// Opus frames, and the control operations the protocol exposes.
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cadenza-audio/cadenza/internal/audio"
	"github.com/cadenza-audio/cadenza/internal/codec"
	"github.com/cadenza-audio/cadenza/internal/decode"
	"github.com/cadenza-audio/cadenza/internal/library"
)

// DefaultQueueMax bounds the per-session queue.
const DefaultQueueMax = 100

var (
	ErrQueueEmpty   = errors.New("queue is empty")
	ErrQueueFull    = errors.New("queue is full")
	ErrInvalidIndex = errors.New("queue index out of range")
	ErrNotPlaying   = errors.New("nothing is playing")
	ErrEncoderInit  = errors.New("encoder initialization failed")
)

// Error codes carried by Notifier.StreamError pushes.
const (
	CodeDecodeError   = "DECODE_ERROR"
	CodePlaybackError = "PLAYBACK_ERROR"
)

// FrameSink receives encoded Opus frames. Implementations must not
// block; slow consumers drop.
type FrameSink interface {
	Deliver(frame []byte)
}

// Notifier receives state pushes from the session. Implementations
// must not block and must not call back into the Session.
type Notifier interface {
	StateChanged(State)
	Position(sec float64)
	StreamError(code, msg string)
}

// State is the playback snapshot sent to clients.
type State struct {
	Playing      bool           `json:"playing"`
	Paused       bool           `json:"paused"`
	Track        *library.Track `json:"track,omitempty"`
	PositionSec  float64        `json:"position_sec"`
	QueueLength  int            `json:"queue_length"`
	QueueIndex   int            `json:"queue_index"`
	SourceFormat string         `json:"source_format,omitempty"`
	SourceRate   int            `json:"source_rate,omitempty"`
	Quality      string         `json:"quality"`
	Bitrate      int            `json:"bitrate"`
	BitrateMode  string         `json:"bitrate_mode"`
}

// Options wires a Session to its collaborators.
type Options struct {
	QueueMax    int
	Sink        FrameSink
	Notifier    Notifier
	NewEncoder  func(codec.Quality, codec.BitrateMode) (codec.Encoder, error)
	OpenDecoder func(path string) (decode.Decoder, error)
	Quality     codec.Quality
	Mode        codec.BitrateMode
}

// Session owns one client's playback pipeline. All mutating methods
// are safe for concurrent use; the worker goroutine is stopped and
// joined before any structural change to the decoder or queue, and a
// control mutex keeps concurrent structural calls from interleaving
// around that stop/restart.
type Session struct {
	opts Options

	// ctl serializes structural operations (stop worker, mutate
	// decoder/queue, restart). Without it two callers could both join
	// the old worker and then race a restarted worker's unlocked
	// decode against the other's mutation.
	ctl sync.Mutex

	mu      sync.Mutex
	queue   []library.Track
	index   int
	playing bool
	paused  bool

	dec       decode.Decoder
	res       *audio.Resampler
	enc       codec.Encoder
	accum     accumBuffer
	srcInfo   decode.Info
	srcFrames int64 // per-channel samples consumed at the source rate

	quality codec.Quality
	mode    codec.BitrateMode

	// Encoder reconfiguration requested while the worker runs; applied
	// between frames, never mid-frame.
	reconfig       atomic.Bool
	pendingQuality codec.Quality
	pendingMode    codec.BitrateMode

	// Decoder-busy gate: the worker decodes outside the session lock,
	// so teardown paths wait on idleCh before touching the decoder.
	busy   bool
	idleCh chan struct{}

	stopFlag atomic.Bool
	done     chan struct{}
	running  bool

	pace pacer
}

// New creates an idle session.
func New(opts Options) *Session {
	if opts.QueueMax <= 0 {
		opts.QueueMax = DefaultQueueMax
	}
	return &Session{
		opts:    opts,
		quality: opts.Quality,
		mode:    opts.Mode,
	}
}

// --- worker lifecycle ---

func (s *Session) startWorkerLocked() {
	if s.running {
		return
	}
	s.stopFlag.Store(false)
	s.done = make(chan struct{})
	s.running = true
	go s.run(s.done)
}

// stopWorker requests a stop, waits out any in-flight decode, and
// joins the worker goroutine. Every structural mutation goes through
// here first.
func (s *Session) stopWorker() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	done := s.done
	s.mu.Unlock()

	s.stopFlag.Store(true)
	s.waitDecoderIdle(time.Second)
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// waitDecoderIdle blocks until the worker's current decode call
// finishes. On timeout it logs the anomaly and proceeds; the join on
// the done channel still guarantees the worker is gone.
func (s *Session) waitDecoderIdle(timeout time.Duration) {
	s.mu.Lock()
	if !s.busy {
		s.mu.Unlock()
		return
	}
	idle := s.idleCh
	s.mu.Unlock()

	select {
	case <-idle:
	case <-time.After(timeout):
		log.Printf("music: decoder still busy after %v, proceeding", timeout)
	}
}

// --- track plumbing (lock held) ---

func (s *Session) openTrackLocked() error {
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	t := s.queue[s.index]
	dec, err := s.opts.OpenDecoder(t.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.Path, err)
	}
	s.dec = dec
	s.srcInfo = dec.Info()
	s.res = audio.NewResampler(s.srcInfo.SampleRate, s.srcInfo.Channels)
	s.srcFrames = 0
	s.accum.reset()
	s.pace.reset()
	return nil
}

func (s *Session) ensureEncoderLocked() error {
	if s.enc != nil {
		return nil
	}
	enc, err := s.opts.NewEncoder(s.quality, s.mode)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncoderInit, err)
	}
	s.enc = enc
	return nil
}

func (s *Session) closeTrackLocked() {
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	s.srcInfo = decode.Info{}
	s.srcFrames = 0
	s.accum.reset()
	s.pace.reset()
	if s.res != nil {
		s.res.Reset()
	}
}

func (s *Session) snapshotLocked() State {
	st := State{
		Playing:     s.playing,
		Paused:      s.paused,
		QueueLength: len(s.queue),
		QueueIndex:  s.index,
		Quality:     s.quality.String(),
		Bitrate:     s.quality.Bitrate(),
		BitrateMode: s.mode.String(),
	}
	if s.index >= 0 && s.index < len(s.queue) {
		t := s.queue[s.index]
		st.Track = &t
	}
	if s.srcInfo.SampleRate > 0 {
		st.PositionSec = float64(s.srcFrames) / float64(s.srcInfo.SampleRate)
		st.SourceFormat = s.srcInfo.Format
		st.SourceRate = s.srcInfo.SampleRate
	}
	return st
}

func (s *Session) notifyStateLocked() {
	if s.opts.Notifier != nil {
		s.opts.Notifier.StateChanged(s.snapshotLocked())
	}
}

// --- control operations ---

// PlayResume resumes a paused stream or starts playback at the current
// queue position.
func (s *Session) PlayResume() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return ErrQueueEmpty
	}
	if s.playing && s.paused {
		// Resume in place; the worker keeps running through a pause.
		s.paused = false
		s.pace.reset()
		s.notifyStateLocked()
		s.mu.Unlock()
		return nil
	}
	if s.playing {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.stopWorker()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dec == nil {
		if err := s.openTrackLocked(); err != nil {
			return err
		}
	}
	if err := s.ensureEncoderLocked(); err != nil {
		return err
	}
	s.playing, s.paused = true, false
	s.pace.reset()
	s.startWorkerLocked()
	s.notifyStateLocked()
	return nil
}

// PlayTracks replaces the queue and starts playback from its head.
func (s *Session) PlayTracks(tracks []library.Track) error {
	if len(tracks) == 0 {
		return ErrQueueEmpty
	}
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopWorker()
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tracks) > s.opts.QueueMax {
		tracks = tracks[:s.opts.QueueMax]
	}
	s.queue = append(s.queue[:0:0], tracks...)
	s.index = 0
	if err := s.openTrackLocked(); err != nil {
		s.playing, s.paused = false, false
		s.notifyStateLocked()
		return err
	}
	if err := s.ensureEncoderLocked(); err != nil {
		return err
	}
	s.playing, s.paused = true, false
	s.startWorkerLocked()
	s.notifyStateLocked()
	return nil
}

// PlayTrack replaces the queue with a single track.
func (s *Session) PlayTrack(t library.Track) error {
	return s.PlayTracks([]library.Track{t})
}

// PlayIndex jumps to a queue position and starts it from the top.
func (s *Session) PlayIndex(i int) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopWorker()
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.queue) {
		s.restartIfPlayingLocked()
		return ErrInvalidIndex
	}
	s.index = i
	if err := s.openTrackLocked(); err != nil {
		s.playing, s.paused = false, false
		s.notifyStateLocked()
		return err
	}
	if err := s.ensureEncoderLocked(); err != nil {
		return err
	}
	s.playing, s.paused = true, false
	s.startWorkerLocked()
	s.notifyStateLocked()
	return nil
}

// Pause suspends delivery without tearing anything down.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing || s.paused {
		return nil
	}
	s.paused = true
	s.notifyStateLocked()
	return nil
}

// Stop halts playback and releases the decoder. The queue and current
// index survive, so a later play restarts the current track.
func (s *Session) Stop() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopWorker()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing, s.paused = false, false
	s.closeTrackLocked()
	s.notifyStateLocked()
	return nil
}

// Next advances one queue position, clamped at the tail.
func (s *Session) Next() error { return s.jump(1) }

// Previous steps one queue position back, clamped at the head.
func (s *Session) Previous() error { return s.jump(-1) }

func (s *Session) jump(delta int) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopWorker()
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return ErrQueueEmpty
	}
	i := s.index + delta
	if i < 0 {
		i = 0
	}
	if i >= len(s.queue) {
		i = len(s.queue) - 1
	}
	s.index = i
	if err := s.openTrackLocked(); err != nil {
		s.playing, s.paused = false, false
		s.notifyStateLocked()
		return err
	}
	if s.playing {
		s.paused = false
		if err := s.ensureEncoderLocked(); err != nil {
			return err
		}
		s.startWorkerLocked()
	}
	s.notifyStateLocked()
	return nil
}

// Seek repositions the current track. Out-of-range targets clamp.
func (s *Session) Seek(sec float64) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopWorker()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dec == nil {
		s.restartIfPlayingLocked()
		return ErrNotPlaying
	}
	if sec < 0 {
		sec = 0
	}
	if dur := s.srcInfo.Duration(); dur > 0 && sec > dur {
		sec = dur
	}
	frame := int64(sec * float64(s.srcInfo.SampleRate))
	if err := s.dec.Seek(frame); err != nil {
		s.restartIfPlayingLocked()
		return fmt.Errorf("seek to %.1fs: %w", sec, err)
	}
	s.srcFrames = frame
	s.res.Reset()
	s.accum.reset()
	s.pace.reset()
	s.restartIfPlayingLocked()
	s.notifyStateLocked()
	return nil
}

func (s *Session) restartIfPlayingLocked() {
	if s.playing {
		s.startWorkerLocked()
	}
}

// --- queue operations ---

// Add appends a track to the queue.
func (s *Session) Add(t library.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= s.opts.QueueMax {
		return ErrQueueFull
	}
	s.queue = append(s.queue, t)
	s.notifyStateLocked()
	return nil
}

// AddAll appends tracks until the queue is full. Returns how many
// were added.
func (s *Session) AddAll(tracks []library.Track) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, t := range tracks {
		if len(s.queue) >= s.opts.QueueMax {
			break
		}
		s.queue = append(s.queue, t)
		added++
	}
	if added > 0 {
		s.notifyStateLocked()
	}
	return added
}

// Remove deletes one queue entry. Removing the playing entry is a
// structural change: the next track (now at the same index) starts, or
// playback stops when the queue runs out.
func (s *Session) Remove(i int) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopWorker()
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.queue) {
		s.restartIfPlayingLocked()
		return ErrInvalidIndex
	}
	current := i == s.index
	s.queue = append(s.queue[:i], s.queue[i+1:]...)
	switch {
	case i < s.index:
		s.index--
	case current:
		s.closeTrackLocked()
		if s.index >= len(s.queue) {
			s.index = len(s.queue) - 1
			if s.index < 0 {
				s.index = 0
			}
			s.playing, s.paused = false, false
		} else if s.playing {
			if err := s.openTrackLocked(); err != nil {
				s.playing, s.paused = false, false
				s.notifyStateLocked()
				return err
			}
		}
	}
	s.restartIfPlayingLocked()
	s.notifyStateLocked()
	return nil
}

// Clear empties the queue and stops playback.
func (s *Session) Clear() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopWorker()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.index = 0
	s.playing, s.paused = false, false
	s.closeTrackLocked()
	s.notifyStateLocked()
	return nil
}

// Queue returns a copy of the current queue.
func (s *Session) Queue() []library.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]library.Track(nil), s.queue...)
}

// --- quality ---

// SetQuality requests an encoder preset change. While the worker runs
// the change is applied between frames; otherwise it takes effect
// immediately.
func (s *Session) SetQuality(q codec.Quality, mode codec.BitrateMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q == s.quality && mode == s.mode && !s.reconfig.Load() {
		return
	}
	s.pendingQuality, s.pendingMode = q, mode
	if s.running {
		s.reconfig.Store(true)
		return
	}
	s.quality, s.mode = q, mode
	if s.enc != nil {
		if err := s.enc.Configure(q, mode); err != nil {
			log.Printf("music: encoder reconfigure: %v", err)
		}
	}
	s.notifyStateLocked()
}

// Snapshot returns the current playback state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close stops the worker and releases all media resources.
func (s *Session) Close() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stopWorker()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing, s.paused = false, false
	s.closeTrackLocked()
	s.enc = nil
}
