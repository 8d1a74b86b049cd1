// Package stream delivers encoded audio frames to clients: the binary
// wire envelope, the single-slot handoff between the session worker and
// a dedicated WebSocket, the control-channel fallback, and a WebRTC
// mirror path.
package stream

import "errors"

// FrameTypeAudio marks a binary message carrying one Opus frame.
const FrameTypeAudio byte = 0x21

// frame envelope overhead: type byte + 16-bit little-endian length.
const frameHeaderLen = 3

var ErrBadFrame = errors.New("malformed audio frame")

// EncodeFrame wraps an Opus payload as [type][len lo][len hi][payload].
func EncodeFrame(payload []byte) []byte {
	buf := make([]byte, frameHeaderLen+len(payload))
	buf[0] = FrameTypeAudio
	buf[1] = byte(len(payload))
	buf[2] = byte(len(payload) >> 8)
	copy(buf[frameHeaderLen:], payload)
	return buf
}

// DecodeFrame splits an envelope back into type and payload.
func DecodeFrame(buf []byte) (byte, []byte, error) {
	if len(buf) < frameHeaderLen {
		return 0, nil, ErrBadFrame
	}
	n := int(buf[1]) | int(buf[2])<<8
	if len(buf) != frameHeaderLen+n {
		return 0, nil, ErrBadFrame
	}
	return buf[0], buf[frameHeaderLen:], nil
}
