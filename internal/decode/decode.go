// Package decode opens media files as streams of interleaved int16 PCM.
// FLAC and WAV are decoded natively; everything else goes through an
// ffmpeg child process that converts straight to the transport format.
package decode

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupported = errors.New("unsupported audio format")
	ErrClosed      = errors.New("decoder is closed")
)

// Info describes the source stream a Decoder produces.
type Info struct {
	SampleRate   int
	Channels     int
	BitDepth     int
	TotalSamples int64  // per-channel samples; 0 when unknown
	Format       string // human-readable source format name
}

// Duration returns the stream length in seconds, or 0 when unknown.
func (i Info) Duration() float64 {
	if i.TotalSamples == 0 || i.SampleRate == 0 {
		return 0
	}
	return float64(i.TotalSamples) / float64(i.SampleRate)
}

// Decoder is a positioned PCM stream over a media file.
type Decoder interface {
	Info() Info

	// Read fills buf with interleaved int16 samples at the source rate
	// and channel count. Returns the number of samples written; io.EOF
	// once the stream is exhausted.
	Read(buf []int16) (int, error)

	// Seek repositions the stream to the given per-channel sample
	// offset at the source rate.
	Seek(frame int64) error

	Close() error
}

// Options configures Open.
type Options struct {
	FFmpegPath string // ffmpeg binary for the fallback decoder
}

var formatNames = map[string]string{
	".flac": "FLAC",
	".wav":  "WAV",
	".mp3":  "MP3",
	".ogg":  "Ogg Vorbis",
	".oga":  "Ogg Vorbis",
	".opus": "Opus",
	".m4a":  "AAC",
	".aac":  "AAC",
	".wma":  "WMA",
}

// FormatName maps a file path to a display name for its container
// format, or "Unknown".
func FormatName(path string) string {
	if name, ok := formatNames[strings.ToLower(filepath.Ext(path))]; ok {
		return name
	}
	return "Unknown"
}

// Supported reports whether Open can handle the file's extension.
func Supported(path string) bool {
	_, ok := formatNames[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Open dispatches on the file extension to the right decoder.
func Open(path string, opts Options) (Decoder, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".flac":
		return openFLAC(path)
	case ".wav":
		return openWAV(path)
	case ".mp3", ".ogg", ".oga", ".opus", ".m4a", ".aac", ".wma":
		return openFFmpeg(path, opts.FFmpegPath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

// Probe reads stream parameters without decoding audio. Only native
// formats can be probed; ffmpeg-backed formats report ErrUnsupported.
func Probe(path string) (Info, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return probeFLAC(path)
	case ".wav":
		return probeWAV(path)
	default:
		return Info{}, ErrUnsupported
	}
}
