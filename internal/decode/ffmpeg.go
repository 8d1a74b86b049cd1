package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/cadenza-audio/cadenza/internal/audio"
)

// ffmpegDecoder shells out to ffmpeg for formats without a native
// decoder. ffmpeg converts straight to the transport format, so the
// reported source rate and channel count are the transport's.
type ffmpegDecoder struct {
	path   string
	bin    string
	info   Info
	cmd    *exec.Cmd
	stdout io.ReadCloser
	raw    []byte
	pos    int64
	closed bool
}

func openFFmpeg(path, bin string) (Decoder, error) {
	if bin == "" {
		bin = "ffmpeg"
	}
	d := &ffmpegDecoder{
		path: path,
		bin:  bin,
		info: Info{
			SampleRate: audio.SampleRate,
			Channels:   audio.Channels,
			BitDepth:   audio.BitDepth,
			Format:     FormatName(path),
		},
	}
	if err := d.start(0); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *ffmpegDecoder) start(offsetSec float64) error {
	args := []string{}
	if offsetSec > 0 {
		args = append(args, "-ss", strconv.FormatFloat(offsetSec, 'f', 3, 64))
	}
	args = append(args,
		"-i", d.path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-loglevel", "error",
		"pipe:1",
	)
	cmd := exec.Command(d.bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg pipe %s: %w", d.path, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start %s: %w", d.path, err)
	}
	d.cmd = cmd
	d.stdout = stdout
	return nil
}

func (d *ffmpegDecoder) stop() {
	if d.cmd == nil {
		return
	}
	d.stdout.Close()
	d.cmd.Process.Kill()
	d.cmd.Wait()
	d.cmd = nil
	d.stdout = nil
}

func (d *ffmpegDecoder) Info() Info { return d.info }

func (d *ffmpegDecoder) Read(buf []int16) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	want := len(buf) * 2
	if cap(d.raw) < want {
		d.raw = make([]byte, want)
	}
	raw := d.raw[:want]

	n, err := io.ReadFull(d.stdout, raw)
	if n == 0 {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("ffmpeg read %s: %w", d.path, err)
	}
	n -= n % 2
	for i := 0; i < n/2; i++ {
		buf[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	samples := n / 2
	d.pos += int64(samples / d.info.Channels)
	return samples, nil
}

// Seek restarts ffmpeg with an input offset (-ss).
func (d *ffmpegDecoder) Seek(frame int64) error {
	if d.closed {
		return ErrClosed
	}
	d.stop()
	d.pos = frame
	return d.start(float64(frame) / float64(d.info.SampleRate))
}

func (d *ffmpegDecoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.stop()
	return nil
}
