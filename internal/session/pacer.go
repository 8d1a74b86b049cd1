package session

import (
	"time"

	"github.com/cadenza-audio/cadenza/internal/audio"
)

// pacer computes how long to sleep after each delivered frame so the
// stream runs at real-time rate. The schedule is anchored at the first
// frame; corrections outside the sanity window are skipped rather than
// slept, so a clock anomaly never stalls the worker.
type pacer struct {
	start  time.Time
	frames int64
}

func (p *pacer) reset() {
	p.start = time.Time{}
	p.frames = 0
}

// next records one sent frame and returns the sleep needed to stay on
// schedule.
func (p *pacer) next(now time.Time) time.Duration {
	if p.start.IsZero() {
		p.start = now
		p.frames = 0
	}
	p.frames++
	expected := p.start.Add(time.Duration(p.frames) * audio.FrameDuration)
	return paceSleep(expected.Sub(now))
}

// paceSleep clamps a schedule correction to the 1ms-100ms sanity
// window; anything outside it means we are behind or the clock jumped.
func paceSleep(d time.Duration) time.Duration {
	if d > time.Millisecond && d < 100*time.Millisecond {
		return d
	}
	return 0
}
