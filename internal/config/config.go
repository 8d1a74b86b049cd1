package config

import (
	"os"
	"strconv"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Library
	MediaRoot string
	DBPath    string

	// Server
	Port       int
	StreamPort int // dedicated audio stream port; defaults to Port+1

	// Playback defaults
	Quality     string
	BitrateMode string
	QueueMax    int

	// External tools
	FFmpegPath string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	port := envInt("CADENZA_PORT", 8080)
	return Config{
		MediaRoot: envStr("CADENZA_MEDIA_ROOT", "/media/music"),
		DBPath:    envStr("CADENZA_DB_PATH", "cadenza.db"),

		Port:       port,
		StreamPort: envInt("CADENZA_STREAM_PORT", port+1),

		Quality:     envStr("CADENZA_QUALITY", "standard"),
		BitrateMode: envStr("CADENZA_BITRATE_MODE", "vbr"),
		QueueMax:    envInt("CADENZA_QUEUE_MAX", 100),

		FFmpegPath: envStr("CADENZA_FFMPEG", "ffmpeg"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
