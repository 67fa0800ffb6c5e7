package decoder

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/mdobak/go-xerrors"
)

// WavHeaderSize is the size of a canonical PCM WAV header.
const WavHeaderSize = 44

// WavHeader is the canonical 44-byte RIFF/WAVE PCM header. RiffChunkSize
// counts the header itself, as the debug dumps always have.
type WavHeader struct {
	ChunkID       [4]byte
	RiffChunkSize uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	DataSize      uint32
}

// NewWavHeader describes dataLen bytes of mono PCM.
func NewWavHeader(dataLen, sampleRate, bits int) WavHeader {
	return WavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		RiffChunkSize: uint32(dataLen + WavHeaderSize),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * bits / 8),
		BlockAlign:    uint16(bits / 8),
		BitsPerSample: uint16(bits),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataLen),
	}
}

// WriteWAV writes pcm as a mono 16-bit WAV stream.
func WriteWAV(w io.Writer, pcm []int16, sampleRate int) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, NewWavHeader(len(pcm)*2, sampleRate, 16)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, pcm); err != nil {
		return err
	}
	return bw.Flush()
}

// ExtractToWAV decodes length seconds from offset and dumps them to out.
func (f *FFmpeg) ExtractToWAV(ctx context.Context, path string, offset, length float64, sampleRate int, out string) error {
	pcm, err := f.DecodePCM(ctx, path, offset, length, sampleRate)
	if err != nil {
		return err
	}
	file, err := os.Create(out)
	if err != nil {
		return xerrors.New(err)
	}
	if err := WriteWAV(file, pcm, sampleRate); err != nil {
		file.Close()
		return xerrors.New(fmt.Errorf("write %s: %w", out, err))
	}
	return file.Close()
}

var errNotNative = errors.New("wav needs resampling")

// readWAV reads 16-bit WAV files already at sampleRate without a child
// process, seeking straight to the requested frames. Anything else returns
// an error so the caller falls back to ffmpeg.
func readWAV(path string, offset, duration float64, sampleRate int) ([]int16, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// leaves the file positioned at the first PCM byte
	d := wav.NewDecoder(file)
	if err := d.FwdToPCM(); err != nil {
		return nil, errNotNative
	}
	dataStart, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if d.WavAudioFormat != 1 || d.NumChans < 1 || d.BitDepth != 16 || int(d.SampleRate) != sampleRate {
		return nil, errNotNative
	}

	channels := max(int(d.NumChans), 1)
	block := int64(channels) * 2
	frames := int64(d.PCMSize) / block
	start := min(int64(offset*float64(sampleRate)), frames)
	end := frames
	if duration > 0 {
		end = min(start+int64(duration*float64(sampleRate)), frames)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: %s: offset past end", ErrShortRead, path)
	}

	if _, err := file.Seek(dataStart+start*block, io.SeekStart); err != nil {
		return nil, err
	}
	raw := make([]int16, (end-start)*int64(channels))
	if err := binary.Read(bufio.NewReader(file), binary.LittleEndian, raw); err != nil {
		return nil, xerrors.New(fmt.Errorf("%w: %s: %w", ErrShortRead, path, err))
	}
	return downmix(raw, channels), nil
}

// downmix averages interleaved frames to mono.
func downmix(raw []int16, channels int) []int16 {
	if channels == 1 {
		return raw
	}
	out := make([]int16, len(raw)/channels)
	for i := range out {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(raw[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}
