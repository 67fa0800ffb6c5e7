// Package decoder turns media files into the raw buffers the hashers work
// on. Audio and video go through ffmpeg and ffprobe child processes; still
// images and plain 16-bit WAV files are decoded in-process.
package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mdobak/go-xerrors"
	"github.com/tidwall/gjson"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode marks a file that could not be opened or decoded.
	ErrDecode = errors.New("decode failed")
	// ErrShortRead marks a decode that produced less data than requested.
	ErrShortRead = errors.New("short read")
)

type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	// Timeout bounds each child process. Zero means no limit.
	Timeout time.Duration
}

func New(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

func (f *FFmpeg) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		return nil, xerrors.New(fmt.Errorf("%w: %s: %w: %s", ErrDecode, filepath.Base(name), err, msg))
	}
	return out.Bytes(), nil
}

func seconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// ---------------- Audio ----------------

// DecodePCM returns mono signed 16-bit samples at sampleRate starting at
// offset. A non-positive duration decodes to the end of the stream.
func (f *FFmpeg) DecodePCM(ctx context.Context, path string, offset, duration float64, sampleRate int) ([]int16, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if pcm, err := readWAV(path, offset, duration, sampleRate); err == nil {
			return pcm, nil
		}
	}

	args := []string{"-hide_banner", "-v", "error"}
	if offset > 0 {
		args = append(args, "-ss", seconds(offset))
	}
	args = append(args, "-i", path)
	if duration > 0 {
		args = append(args, "-t", seconds(duration))
	}
	args = append(args,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	raw, err := f.run(ctx, f.FFmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: %s: no audio samples", ErrDecode, path)
	}
	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return pcm, nil
}

// DecodeAudio is DecodePCM with samples widened to float64, keeping the
// 16-bit scale.
func (f *FFmpeg) DecodeAudio(ctx context.Context, path string, offset, duration float64, sampleRate int) ([]float64, error) {
	pcm, err := f.DecodePCM(ctx, path, offset, duration, sampleRate)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(pcm))
	for i, v := range pcm {
		out[i] = float64(v)
	}
	return out, nil
}

// ---------------- Video ----------------

// DecodeVideoFrame grabs the frame at offset scaled to width x height as
// packed RGB24.
func (f *FFmpeg) DecodeVideoFrame(ctx context.Context, path string, offset float64, width, height int) ([]byte, error) {
	args := []string{"-hide_banner", "-v", "error"}
	if offset > 0 {
		args = append(args, "-ss", seconds(offset))
	}
	args = append(args,
		"-i", path,
		"-an",
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-pix_fmt", "rgb24",
		"-f", "rawvideo",
		"pipe:1",
	)
	raw, err := f.run(ctx, f.FFmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if want := width * height * 3; len(raw) < want {
		return nil, fmt.Errorf("%w: %s at %ss: %d of %d bytes", ErrShortRead, path, seconds(offset), len(raw), want)
	}
	return raw[:width*height*3], nil
}

// ---------------- Images ----------------

func (f *FFmpeg) DecodeImage(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	return img, nil
}

// ---------------- Probe ----------------

// ProbeDuration returns the container duration in seconds, falling back to
// the longest stream when the container carries none.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := f.run(ctx, f.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return parseProbe(out, path)
}

func parseProbe(out []byte, path string) (float64, error) {
	if !gjson.ValidBytes(out) {
		return 0, fmt.Errorf("%w: %s: unreadable ffprobe output", ErrDecode, path)
	}
	res := gjson.ParseBytes(out)
	if res.Get("streams.#").Int() == 0 {
		return 0, fmt.Errorf("%w: %s: no streams", ErrDecode, path)
	}
	if d := res.Get("format.duration").Float(); d > 0 {
		return d, nil
	}
	var longest float64
	for _, d := range res.Get("streams.#.duration").Array() {
		longest = max(longest, d.Float())
	}
	if longest <= 0 {
		return 0, fmt.Errorf("%w: %s: unknown duration", ErrDecode, path)
	}
	return longest, nil
}
