package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/music/a.flac", "FLAC"},
		{"/music/a.FLAC", "FLAC"},
		{"/music/a.mp3", "MP3"},
		{"/music/a.ogg", "Ogg Vorbis"},
		{"/music/a.opus", "Opus"},
		{"/music/a.wav", "WAV"},
		{"/music/a.m4a", "AAC"},
		{"/music/a.txt", "Unknown"},
		{"/music/noext", "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatName(tt.path), tt.path)
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("x.flac"))
	assert.True(t, Supported("x.Mp3"))
	assert.False(t, Supported("x.pdf"))
	assert.False(t, Supported("x"))
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open("/tmp/file.xyz", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

// writeTestWAV writes a 16-bit mono WAV with the given samples.
func writeTestWAV(t *testing.T, path string, sampleRate int, samples []int16) {
	t.Helper()
	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}
	dataLen := uint32(data.Len())

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(data.Bytes())

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestWAVDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ramp.wav")
	samples := make([]int16, 512)
	for i := range samples {
		samples[i] = int16(i * 10)
	}
	writeTestWAV(t, path, 8000, samples)

	dec, err := Open(path, Options{})
	require.NoError(t, err)
	defer dec.Close()

	info := dec.Info()
	assert.Equal(t, 8000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.Equal(t, "WAV", info.Format)

	got := make([]int16, 0, len(samples))
	buf := make([]int16, 100)
	for {
		n, err := dec.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, len(samples), len(got))
	assert.Equal(t, samples, got)
}

func TestWAVSeek(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ramp.wav")
	samples := make([]int16, 400)
	for i := range samples {
		samples[i] = int16(i)
	}
	writeTestWAV(t, path, 8000, samples)

	dec, err := Open(path, Options{})
	require.NoError(t, err)
	defer dec.Close()

	require.NoError(t, dec.Seek(100))
	buf := make([]int16, 4)
	n, err := dec.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	assert.Equal(t, []int16{100, 101, 102, 103}, buf[:n])

	// Backward seek rewinds through a reopen.
	require.NoError(t, dec.Seek(10))
	n, err = dec.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	assert.Equal(t, []int16{10, 11, 12, 13}, buf[:n])
}

func TestWAVProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.wav")
	writeTestWAV(t, path, 16000, make([]int16, 1600))

	info, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, info.SampleRate)
	// Only the data chunk counts: exactly 1600 samples, header bytes
	// must not inflate the total.
	assert.Equal(t, int64(1600), info.TotalSamples)
	assert.InDelta(t, 0.1, info.Duration(), 1e-9)
}

func TestProbeUnsupported(t *testing.T) {
	_, err := Probe("/tmp/x.mp3")
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestDecoderClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.wav")
	writeTestWAV(t, path, 8000, make([]int16, 16))

	dec, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, dec.Close())
	require.NoError(t, dec.Close()) // idempotent

	_, err = dec.Read(make([]int16, 4))
	assert.Equal(t, ErrClosed, err)
	assert.Equal(t, ErrClosed, dec.Seek(0))
}
