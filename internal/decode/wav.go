package decode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type wavDecoder struct {
	path string
	file *os.File
	dec  *wav.Decoder
	info Info

	buf    *audio.IntBuffer
	pos    int64
	closed bool
}

func openWAV(path string) (Decoder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav %s: %w", path, err)
	}
	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("wav %s: not a valid WAV file", path)
	}
	if dec.BitDepth != 16 && dec.BitDepth != 24 && dec.BitDepth != 32 {
		file.Close()
		return nil, fmt.Errorf("wav %s: unsupported bit depth %d", path, dec.BitDepth)
	}
	if dec.NumChans != 1 && dec.NumChans != 2 {
		file.Close()
		return nil, fmt.Errorf("wav %s: unsupported channel count %d", path, dec.NumChans)
	}
	info, err := wavInfo(dec)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &wavDecoder{
		path: path,
		file: file,
		dec:  dec,
		info: info,
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				SampleRate:  int(dec.SampleRate),
				NumChannels: int(dec.NumChans),
			},
		},
	}, nil
}

// wavInfo forwards to the data chunk so TotalSamples counts PCM bytes
// only, not the RIFF/fmt headers.
func wavInfo(dec *wav.Decoder) (Info, error) {
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("wav: locate PCM data: %w", err)
	}
	bytesPer := int64(dec.BitDepth / 8)
	total := dec.PCMLen() / bytesPer / int64(dec.NumChans)
	return Info{
		SampleRate:   int(dec.SampleRate),
		Channels:     int(dec.NumChans),
		BitDepth:     int(dec.BitDepth),
		TotalSamples: total,
		Format:       "WAV",
	}, nil
}

func probeWAV(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer file.Close()
	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return Info{}, errors.New("not a valid WAV file")
	}
	return wavInfo(dec)
}

func (d *wavDecoder) Info() Info { return d.info }

func (d *wavDecoder) Read(buf []int16) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if cap(d.buf.Data) < len(buf) {
		d.buf.Data = make([]int, len(buf))
	}
	d.buf.Data = d.buf.Data[:len(buf)]

	n, err := d.dec.PCMBuffer(d.buf)
	if err != nil {
		return 0, fmt.Errorf("wav decode %s: %w", d.path, err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	shift := uint(0)
	if d.info.BitDepth > 16 {
		shift = uint(d.info.BitDepth - 16)
	}
	for i := 0; i < n; i++ {
		buf[i] = int16(d.buf.Data[i] >> shift)
	}
	d.pos += int64(n / d.info.Channels)
	return n, nil
}

func (d *wavDecoder) Seek(frame int64) error {
	if d.closed {
		return ErrClosed
	}
	if frame < d.pos {
		file, err := os.Open(d.path)
		if err != nil {
			return fmt.Errorf("reopen wav %s: %w", d.path, err)
		}
		dec := wav.NewDecoder(file)
		dec.ReadInfo()
		if !dec.IsValidFile() {
			file.Close()
			return fmt.Errorf("wav %s: not a valid WAV file", d.path)
		}
		d.file.Close()
		d.file = file
		d.dec = dec
		d.pos = 0
	}
	skip := make([]int16, 4096*d.info.Channels)
	for d.pos < frame {
		want := (frame - d.pos) * int64(d.info.Channels)
		if want > int64(len(skip)) {
			want = int64(len(skip))
		}
		if _, err := d.Read(skip[:want]); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}

func (d *wavDecoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.file.Close()
}
