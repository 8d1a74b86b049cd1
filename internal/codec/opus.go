package codec

import (
	"fmt"

	"github.com/cadenza-audio/cadenza/internal/audio"
	"gopkg.in/hraban/opus.v2"
)

// Encoder compresses one transport-format PCM frame at a time.
type Encoder interface {
	// Encode compresses exactly one 20ms frame of interleaved stereo
	// PCM into buf and returns the number of bytes written.
	Encode(pcm []int16, buf []byte) (int, error)

	// Configure applies a quality preset. Safe between frames only.
	Configure(q Quality, mode BitrateMode) error
}

type opusEncoder struct {
	enc *opus.Encoder
}

// NewOpusEncoder creates an Opus encoder at the transport format,
// configured for the given preset.
func NewOpusEncoder(q Quality, mode BitrateMode) (Encoder, error) {
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	e := &opusEncoder{enc: enc}
	if err := e.Configure(q, mode); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *opusEncoder) Encode(pcm []int16, buf []byte) (int, error) {
	return e.enc.Encode(pcm, buf)
}

func (e *opusEncoder) Configure(q Quality, mode BitrateMode) error {
	if err := e.enc.SetBitrate(q.Bitrate()); err != nil {
		return fmt.Errorf("set bitrate %d: %w", q.Bitrate(), err)
	}
	if err := e.enc.SetComplexity(q.Complexity()); err != nil {
		return fmt.Errorf("set complexity %d: %w", q.Complexity(), err)
	}
	return nil
}
