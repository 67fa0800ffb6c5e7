package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestNewWavHeader(t *testing.T) {
	t.Parallel()

	h := NewWavHeader(1000, 16000, 16)
	if h.RiffChunkSize != 1044 || h.ByteRate != 32000 || h.BlockAlign != 2 || h.DataSize != 1000 {
		t.Fatalf("header %+v", h)
	}
	if h.Subchunk1Size != 16 || h.AudioFormat != 1 || h.NumChannels != 1 || h.BitsPerSample != 16 {
		t.Fatalf("header %+v", h)
	}
	if binary.Size(h) != WavHeaderSize {
		t.Fatalf("header encodes to %d bytes", binary.Size(h))
	}
}

func TestWriteWAV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	pcm := []int16{0, 1, -1, 32767, -32768}
	if err := WriteWAV(&buf, pcm, 8000); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	if len(b) != WavHeaderSize+len(pcm)*2 {
		t.Fatalf("wrote %d bytes", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q", b[:44])
	}
	if got := binary.LittleEndian.Uint32(b[4:]); got != uint32(len(pcm)*2+WavHeaderSize) {
		t.Fatalf("riff size %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(b[WavHeaderSize+6:])); got != 32767 {
		t.Fatalf("sample 3 = %d", got)
	}
}

func writeTestWAV(t *testing.T, path string, rate, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDecodePCMNativeWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	data := make([]int, 2*1000)
	for i := 0; i < 1000; i++ {
		data[2*i] = i
		data[2*i+1] = i + 2
	}
	writeTestWAV(t, path, 1000, 2, data)

	// the ffmpeg path is never reached for a native file
	dec := New("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	pcm, err := dec.DecodePCM(context.Background(), path, 0.5, 0.25, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm) != 250 {
		t.Fatalf("got %d samples, want 250", len(pcm))
	}
	if pcm[0] != 501 || pcm[249] != 750 {
		t.Fatalf("samples %d..%d", pcm[0], pcm[249])
	}

	all, err := dec.DecodeAudio(context.Background(), path, 0, 0, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1000 || all[10] != 11 {
		t.Fatalf("got %d samples, sample 10 = %v", len(all), all[10])
	}
}

func TestReadWAVClip(t *testing.T) {
	t.Parallel()

	const rate = 8000
	path := filepath.Join(t.TempDir(), "long.wav")
	data := make([]int, 60*rate)
	for i := range data {
		data[i] = i % 30000
	}
	writeTestWAV(t, path, rate, 1, data)

	// a clip running past the end is cut at the last frame
	pcm, err := readWAV(path, 50, 24, rate)
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm) != 10*rate {
		t.Fatalf("got %d samples, want %d", len(pcm), 10*rate)
	}
	if pcm[0] != 50*rate%30000 || pcm[len(pcm)-1] != int16((60*rate-1)%30000) {
		t.Fatalf("samples %d..%d", pcm[0], pcm[len(pcm)-1])
	}

	if _, err := readWAV(path, 61, 1, rate); !errors.Is(err, ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
	if _, err := readWAV(path, 0, 1, 44100); !errors.Is(err, errNotNative) {
		t.Fatalf("err = %v, want errNotNative", err)
	}
}

func TestDecodePCMFallsBackToFFmpeg(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	writeTestWAV(t, path, 8000, 1, make([]int, 800))

	// a different rate needs resampling, which only ffmpeg does
	dec := New("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	if _, err := dec.DecodePCM(context.Background(), path, 0, 0, 22050); !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestProbeDurationMissingBinary(t *testing.T) {
	t.Parallel()

	dec := New("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	if _, err := dec.ProbeDuration(context.Background(), "movie.mkv"); !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if _, err := dec.DecodeVideoFrame(context.Background(), "movie.mkv", 4, 8, 8); !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestParseProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		out     string
		want    float64
		wantErr bool
	}{
		{"format duration", `{"streams":[{"codec_type":"video"}],"format":{"duration":"93.120000"}}`, 93.12, false},
		{"stream fallback", `{"streams":[{"duration":"10.5"},{"duration":"12.25"}],"format":{}}`, 12.25, false},
		{"no streams", `{"streams":[],"format":{"duration":"5"}}`, 0, true},
		{"no duration", `{"streams":[{"codec_type":"audio"}],"format":{}}`, 0, true},
		{"garbage", `not json`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseProbe([]byte(tt.out), "x")
			if tt.wantErr {
				if !errors.Is(err, ErrDecode) {
					t.Fatalf("err = %v, want ErrDecode", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestDecodeImage(t *testing.T) {
	t.Parallel()

	dec := New("", "")
	if _, err := dec.DecodeImage(context.Background(), filepath.Join(t.TempDir(), "missing.png")); !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestTags(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(path, []byte("no tags here"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTags(path); err == nil {
		t.Fatal("expected an error for an untagged file")
	}

	tests := []struct {
		tags Tags
		want string
	}{
		{Tags{}, ""},
		{Tags{Title: "Song"}, "Song"},
		{Tags{Artist: "Band"}, "Band"},
		{Tags{Title: "Song", Artist: "Band"}, "Band - Song"},
	}
	for _, tt := range tests {
		if got := tt.tags.String(); got != tt.want {
			t.Errorf("%+v: got %q, want %q", tt.tags, got, tt.want)
		}
	}
}
