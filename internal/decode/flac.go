package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/tphakala/flac"
)

type flacDecoder struct {
	path string
	file *os.File
	dec  *flac.Decoder
	info Info

	rem    []int16 // converted samples not yet handed to Read
	remOff int
	pos    int64 // per-channel samples consumed from the stream
	closed bool
}

func openFLAC(path string) (Decoder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open flac %s: %w", path, err)
	}
	dec, err := flac.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("parse flac %s: %w", path, err)
	}
	switch dec.BitsPerSample {
	case 16, 24, 32:
	default:
		file.Close()
		return nil, fmt.Errorf("flac %s: unsupported bit depth %d", path, dec.BitsPerSample)
	}
	return &flacDecoder{
		path: path,
		file: file,
		dec:  dec,
		info: Info{
			SampleRate:   dec.SampleRate,
			Channels:     dec.NChannels,
			BitDepth:     dec.BitsPerSample,
			TotalSamples: int64(dec.TotalSamples),
			Format:       "FLAC",
		},
	}, nil
}

func probeFLAC(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer file.Close()
	dec, err := flac.NewDecoder(file)
	if err != nil {
		return Info{}, fmt.Errorf("parse flac %s: %w", path, err)
	}
	return Info{
		SampleRate:   dec.SampleRate,
		Channels:     dec.NChannels,
		BitDepth:     dec.BitsPerSample,
		TotalSamples: int64(dec.TotalSamples),
		Format:       "FLAC",
	}, nil
}

func (d *flacDecoder) Info() Info { return d.info }

func (d *flacDecoder) Read(buf []int16) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	written := 0
	for written < len(buf) {
		if d.remOff >= len(d.rem) {
			frame, err := d.dec.Next()
			if err != nil {
				if written > 0 {
					return written, nil
				}
				if err == io.EOF {
					return 0, io.EOF
				}
				return 0, fmt.Errorf("flac decode %s: %w", d.path, err)
			}
			d.convertFrame(frame)
			continue
		}
		n := copy(buf[written:], d.rem[d.remOff:])
		written += n
		d.remOff += n
		d.pos += int64(n / d.info.Channels)
	}
	return written, nil
}

// convertFrame turns one raw FLAC frame into int16 samples, shifting
// wider depths down to 16 bits.
func (d *flacDecoder) convertFrame(frame []byte) {
	bytesPer := d.info.BitDepth / 8
	count := len(frame) / bytesPer
	if cap(d.rem) < count {
		d.rem = make([]int16, count)
	}
	d.rem = d.rem[:count]
	d.remOff = 0
	for i := 0; i < count; i++ {
		off := i * bytesPer
		switch d.info.BitDepth {
		case 16:
			d.rem[i] = int16(binary.LittleEndian.Uint16(frame[off:]))
		case 24:
			v := int32(frame[off]) | int32(frame[off+1])<<8 | int32(frame[off+2])<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xffffff) // sign extend
			}
			d.rem[i] = int16(v >> 8)
		case 32:
			d.rem[i] = int16(int32(binary.LittleEndian.Uint32(frame[off:])) >> 16)
		}
	}
}

func (d *flacDecoder) Seek(frame int64) error {
	if d.closed {
		return ErrClosed
	}
	// The frame decoder has no sample index; rewind and discard.
	if frame < d.pos {
		file, err := os.Open(d.path)
		if err != nil {
			return fmt.Errorf("reopen flac %s: %w", d.path, err)
		}
		dec, err := flac.NewDecoder(file)
		if err != nil {
			file.Close()
			return fmt.Errorf("reparse flac %s: %w", d.path, err)
		}
		d.file.Close()
		d.file = file
		d.dec = dec
		d.rem = d.rem[:0]
		d.remOff = 0
		d.pos = 0
	}
	return d.discardTo(frame)
}

func (d *flacDecoder) discardTo(frame int64) error {
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

func (d *flacDecoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.file.Close()
}
