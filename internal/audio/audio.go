// Package audio defines the fixed transport format every session streams
// in (48kHz stereo s16le, 20ms frames) and the sample-level conversions
// between source audio and that format.
package audio

import (
	"encoding/binary"
	"time"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples converts little-endian PCM bytes to int16 samples.
// An odd trailing byte is ignored.
func BytesToSamples(buf []byte) []int16 {
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}
	return samples
}

// MonoToStereo duplicates each mono sample into both channels, writing
// into dst. dst must have room for 2*len(src) samples; the interleaved
// stereo slice is returned.
func MonoToStereo(src []int16, dst []int16) []int16 {
	out := dst[:len(src)*2]
	for i, s := range src {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}
