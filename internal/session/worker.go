package session

import (
	"io"
	"log"
	"time"

	"github.com/cadenza-audio/cadenza/internal/audio"
)

// maxOpusFrame bounds one encoded frame; Opus never comes close at
// music bitrates.
const maxOpusFrame = 4000

const (
	idleSleep        = 50 * time.Millisecond
	positionInterval = time.Second
)

// run is the per-session streaming worker: decode a chunk outside the
// lock, resample to the transport format, accumulate, then cut, encode,
// deliver, and pace full 20ms frames. The loop never exits on media
// errors; only the stop flag ends it.
func (s *Session) run(done chan struct{}) {
	defer close(done)

	var (
		readBuf  []int16
		stereo   []int16
		frame    = make([]int16, audio.FrameSamples)
		opusBuf  = make([]byte, maxOpusFrame)
		lastPos  time.Time
		sink     = s.opts.Sink
		notifier = s.opts.Notifier
	)

	for !s.stopFlag.Load() {
		if s.reconfig.CompareAndSwap(true, false) {
			s.applyPendingConfig()
		}

		s.mu.Lock()
		if !s.playing || s.paused || s.dec == nil {
			s.mu.Unlock()
			time.Sleep(idleSleep)
			continue
		}

		dec := s.dec
		res := s.res
		channels := s.srcInfo.Channels

		// Mark the decoder busy and decode outside the lock so control
		// operations stay responsive during slow reads.
		s.busy = true
		s.idleCh = make(chan struct{})
		idle := s.idleCh
		s.mu.Unlock()

		// One ~20ms chunk at the source rate.
		chunk := s.srcInfo.SampleRate / 50 * channels
		if cap(readBuf) < chunk {
			readBuf = make([]int16, chunk)
		}
		n, err := dec.Read(readBuf[:chunk])

		var pcm []int16
		if n > 0 {
			pcm = res.Process(readBuf[:n])
			if channels == 1 && len(pcm) > 0 {
				if cap(stereo) < len(pcm)*2 {
					stereo = make([]int16, len(pcm)*2)
				}
				pcm = audio.MonoToStereo(pcm, stereo)
			}
		}

		s.mu.Lock()
		s.busy = false
		close(idle)
		if s.stopFlag.Load() {
			// A structural operation is waiting on us; drop the chunk.
			s.mu.Unlock()
			return
		}

		switch {
		case err == io.EOF || (n == 0 && err == nil):
			s.advanceLocked()
			s.mu.Unlock()
			continue
		case err != nil:
			log.Printf("music: decode error: %v", err)
			if notifier != nil {
				notifier.StreamError(CodeDecodeError, err.Error())
			}
			s.advanceLocked()
			s.mu.Unlock()
			continue
		}

		s.srcFrames += int64(n / channels)
		if dropped := s.accum.appendSamples(pcm); dropped > 0 {
			log.Printf("music: accumulation buffer overflow, dropped %d samples (total %d)",
				dropped, s.accum.dropped)
		}

		var posUpdate float64 = -1
		if time.Since(lastPos) >= positionInterval {
			lastPos = time.Now()
			posUpdate = float64(s.srcFrames) / float64(s.srcInfo.SampleRate)
		}
		s.mu.Unlock()

		if posUpdate >= 0 && notifier != nil {
			notifier.Position(posUpdate)
		}

		// Cut, encode, and pace full frames.
		for {
			s.mu.Lock()
			if s.stopFlag.Load() || !s.accum.consumeFrame(frame) {
				s.mu.Unlock()
				break
			}
			enc := s.enc
			sleep := s.pace.next(time.Now())
			s.mu.Unlock()

			nb, err := enc.Encode(frame, opusBuf)
			if err != nil {
				log.Printf("music: opus encode: %v", err)
				continue
			}
			payload := make([]byte, nb)
			copy(payload, opusBuf[:nb])
			sink.Deliver(payload)

			if sleep > 0 {
				time.Sleep(sleep)
			}
		}
	}
}

// applyPendingConfig commits a requested quality change between frames.
func (s *Session) applyPendingConfig() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quality, s.mode = s.pendingQuality, s.pendingMode
	if s.enc != nil {
		if err := s.enc.Configure(s.quality, s.mode); err != nil {
			log.Printf("music: encoder reconfigure: %v", err)
			return
		}
	}
	log.Printf("music: quality changed to %s (%d bps, %s)",
		s.quality, s.quality.Bitrate(), s.mode)
	s.notifyStateLocked()
}

// advanceLocked moves to the next queue entry at end of track, or
// stops when the queue is exhausted or the next file will not open.
func (s *Session) advanceLocked() {
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	s.index++
	if s.index >= len(s.queue) {
		s.index = len(s.queue) - 1
		if s.index < 0 {
			s.index = 0
		}
		s.playing, s.paused = false, false
		s.closeTrackLocked()
		s.notifyStateLocked()
		return
	}
	if err := s.openTrackLocked(); err != nil {
		log.Printf("music: next track: %v", err)
		if s.opts.Notifier != nil {
			s.opts.Notifier.StreamError(CodePlaybackError, err.Error())
		}
		s.playing, s.paused = false, false
		s.notifyStateLocked()
		return
	}
	s.notifyStateLocked()
}
