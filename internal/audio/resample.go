package audio

// Resampler converts interleaved int16 PCM from an arbitrary source rate
// to the transport rate using linear interpolation. It is streaming: the
// fractional read position and the last source frame are carried across
// Process calls so chunk boundaries introduce no discontinuity.
type Resampler struct {
	srcRate  int
	channels int
	step     float64 // source frames advanced per output frame

	phase float64 // fractional position into carry+input, in source frames
	carry []int16 // last source frame of the previous chunk
	have  bool

	src []int16 // scratch: carry + input
	out []int16 // scratch: reused output buffer
}

// NewResampler creates a resampler from srcRate to the transport
// SampleRate, preserving the channel count.
func NewResampler(srcRate, channels int) *Resampler {
	return &Resampler{
		srcRate:  srcRate,
		channels: channels,
		step:     float64(srcRate) / float64(SampleRate),
		carry:    make([]int16, channels),
	}
}

// Passthrough reports whether no rate conversion is needed.
func (r *Resampler) Passthrough() bool {
	return r.srcRate == SampleRate
}

// Process resamples one chunk. The returned slice is valid until the
// next call.
func (r *Resampler) Process(in []int16) []int16 {
	if r.srcRate == SampleRate {
		return in
	}
	ch := r.channels

	// Prepend the carried frame so interpolation can reach back across
	// the chunk boundary.
	need := len(in)
	if r.have {
		need += ch
	}
	if cap(r.src) < need {
		r.src = make([]int16, need)
	}
	r.src = r.src[:0]
	if r.have {
		r.src = append(r.src, r.carry...)
	}
	r.src = append(r.src, in...)

	srcFrames := len(r.src) / ch
	if srcFrames < 2 {
		// Not enough to interpolate yet; hold everything as carry.
		if srcFrames == 1 {
			copy(r.carry, r.src[:ch])
			r.have = true
		}
		return nil
	}

	maxOut := int(float64(srcFrames)/r.step) + 2
	if cap(r.out) < maxOut*ch {
		r.out = make([]int16, maxOut*ch)
	}
	out := r.out[:0]

	pos := r.phase
	for pos <= float64(srcFrames-1) {
		i := int(pos)
		frac := pos - float64(i)
		if i >= srcFrames-1 {
			// Exactly on the final frame: no right neighbor yet.
			if frac > 0 {
				break
			}
			i = srcFrames - 2
			frac = 1
		}
		base := i * ch
		for c := 0; c < ch; c++ {
			a := float64(r.src[base+c])
			b := float64(r.src[base+ch+c])
			out = append(out, int16(a+(b-a)*frac))
		}
		pos += r.step
	}

	// Carry the final source frame; rebase phase onto it.
	copy(r.carry, r.src[(srcFrames-1)*ch:])
	r.have = true
	r.phase = pos - float64(srcFrames-1)

	return out
}

// Reset drops carried state. Call after a seek or track change.
func (r *Resampler) Reset() {
	r.phase = 0
	r.have = false
}
