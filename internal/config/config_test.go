package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	envVars := []string{
		"CADENZA_MEDIA_ROOT", "CADENZA_DB_PATH",
		"CADENZA_PORT", "CADENZA_STREAM_PORT",
		"CADENZA_QUALITY", "CADENZA_BITRATE_MODE", "CADENZA_QUEUE_MAX",
		"CADENZA_FFMPEG",
	}
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.MediaRoot != "/media/music" {
		t.Errorf("MediaRoot = %q, want default", cfg.MediaRoot)
	}
	if cfg.DBPath != "cadenza.db" {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.StreamPort != 8081 {
		t.Errorf("StreamPort = %d, want 8081", cfg.StreamPort)
	}
	if cfg.Quality != "standard" {
		t.Errorf("Quality = %q, want 'standard'", cfg.Quality)
	}
	if cfg.BitrateMode != "vbr" {
		t.Errorf("BitrateMode = %q, want 'vbr'", cfg.BitrateMode)
	}
	if cfg.QueueMax != 100 {
		t.Errorf("QueueMax = %d, want 100", cfg.QueueMax)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("FFmpegPath = %q, want 'ffmpeg'", cfg.FFmpegPath)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CADENZA_MEDIA_ROOT", "/srv/music")
	t.Setenv("CADENZA_DB_PATH", "/var/lib/cadenza/index.db")
	t.Setenv("CADENZA_PORT", "3000")
	t.Setenv("CADENZA_STREAM_PORT", "3100")
	t.Setenv("CADENZA_QUALITY", "hifi")
	t.Setenv("CADENZA_BITRATE_MODE", "cbr")
	t.Setenv("CADENZA_QUEUE_MAX", "25")
	t.Setenv("CADENZA_FFMPEG", "/opt/ffmpeg/bin/ffmpeg")

	cfg := Load()

	if cfg.MediaRoot != "/srv/music" {
		t.Errorf("MediaRoot = %q, want env override", cfg.MediaRoot)
	}
	if cfg.DBPath != "/var/lib/cadenza/index.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.StreamPort != 3100 {
		t.Errorf("StreamPort = %d, want 3100", cfg.StreamPort)
	}
	if cfg.Quality != "hifi" {
		t.Errorf("Quality = %q, want 'hifi'", cfg.Quality)
	}
	if cfg.BitrateMode != "cbr" {
		t.Errorf("BitrateMode = %q, want 'cbr'", cfg.BitrateMode)
	}
	if cfg.QueueMax != 25 {
		t.Errorf("QueueMax = %d, want 25", cfg.QueueMax)
	}
	if cfg.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("FFmpegPath = %q, want env override", cfg.FFmpegPath)
	}
}

func TestStreamPortFollowsPort(t *testing.T) {
	t.Setenv("CADENZA_PORT", "9000")
	os.Unsetenv("CADENZA_STREAM_PORT")
	cfg := Load()
	if cfg.StreamPort != 9001 {
		t.Errorf("StreamPort = %d, want port+1 = 9001", cfg.StreamPort)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("CADENZA_PORT", "not-a-number")
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Port)
	}
}

func TestEnvStrEmpty(t *testing.T) {
	// Empty string should use fallback
	os.Unsetenv("CADENZA_MEDIA_ROOT")
	cfg := Load()
	if cfg.MediaRoot != "/media/music" {
		t.Errorf("Unset env should use fallback: got %q", cfg.MediaRoot)
	}
}
