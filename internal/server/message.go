// Package server is the control plane: a WebSocket endpoint speaking a
// JSON message protocol for playback control, search, queue editing,
// and library browsing, with one playback session per client.
package server

import (
	"encoding/json"

	"github.com/cadenza-audio/cadenza/internal/session"
)

// Message is the control-channel envelope.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Error codes carried in music_error payloads. The streaming worker
// pushes its own codes through the Notifier; those are defined in the
// session package and re-exported here so the protocol surface is in
// one place.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidPath    = "INVALID_PATH"
	CodeInvalidIndex   = "INVALID_INDEX"
	CodeUnavailable    = "UNAVAILABLE"
	CodePlayback       = session.CodePlaybackError
	CodeDecode         = session.CodeDecodeError
	CodeNotFound       = "NOT_FOUND"
	CodeUnknownAction  = "UNKNOWN_ACTION"
	CodeInit           = "INIT_ERROR"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sessionPayload struct {
	Token      string `json:"token"`
	StreamPort int    `json:"stream_port"`
}

type positionPayload struct {
	PositionSec float64 `json:"position_sec"`
}

type controlRequest struct {
	Action      string  `json:"action"`
	Path        string  `json:"path,omitempty"`
	Query       string  `json:"query,omitempty"`
	PositionSec float64 `json:"position_sec,omitempty"` // seek target
	Index       *int    `json:"index,omitempty"`
	Artist      string  `json:"artist,omitempty"`
	Album       string  `json:"album,omitempty"`
}

type subscribeRequest struct {
	Quality     string `json:"quality,omitempty"`
	BitrateMode string `json:"bitrate_mode,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type queueRequest struct {
	Action string `json:"action"`
	Path   string `json:"path,omitempty"`
	Index  *int   `json:"index,omitempty"`
}

type libraryRequest struct {
	Type   string `json:"type"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}
