package session

import "github.com/cadenza-audio/cadenza/internal/audio"

// accumCapacity is 100ms of transport-format audio. Decoded chunks
// land here until full 20ms frames can be cut for the encoder.
const accumCapacity = audio.FrameSamples * 5

// accumBuffer is a fixed-capacity sample accumulator. It never
// allocates after construction; overflow drops the excess.
type accumBuffer struct {
	buf     [accumCapacity]int16
	n       int
	dropped uint64
}

// appendSamples copies as much of samples as fits and returns how many
// samples were dropped.
func (b *accumBuffer) appendSamples(samples []int16) int {
	take := len(samples)
	if free := accumCapacity - b.n; take > free {
		take = free
	}
	copy(b.buf[b.n:], samples[:take])
	b.n += take
	d := len(samples) - take
	b.dropped += uint64(d)
	return d
}

func (b *accumBuffer) fullFrame() bool {
	return b.n >= audio.FrameSamples
}

// consumeFrame copies one frame into dst and shifts the remainder to
// the front. Returns false when no full frame is buffered.
func (b *accumBuffer) consumeFrame(dst []int16) bool {
	if b.n < audio.FrameSamples {
		return false
	}
	copy(dst, b.buf[:audio.FrameSamples])
	copy(b.buf[:], b.buf[audio.FrameSamples:b.n])
	b.n -= audio.FrameSamples
	return true
}

func (b *accumBuffer) reset() { b.n = 0 }
