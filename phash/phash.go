package phash

import (
	"errors"
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
)

// Hash is a 64-bit perceptual hash. Zero means the hash could not be
// computed.
type Hash uint64

const (
	// Side of the reduced image, one bit per pixel.
	Side = 8
	Bits = Side * Side

	RGBSize = Side * Side * 3
)

// Reduced audio clip geometry: 64 frames of 2048 samples taken every 2048
// samples at 5512 Hz, about 24 seconds.
const (
	AudioHashRate    = 5512
	AudioHashFrame   = 2048
	AudioHashOverlap = 2048
	AudioHashLength  = Bits
	AudioHashCount   = AudioHashOverlap*(AudioHashLength-1) + AudioHashFrame
)

var ErrBadImage = errors.New("phash: bad image buffer")

func (h Hash) String() string { return fmt.Sprintf("%016x", uint64(h)) }

// AverageHash hashes an 8x8 RGB24 buffer. Bit i is set when the luma of
// pixel i is at least the integer mean luma.
func AverageHash(rgb []byte) (Hash, error) {
	if len(rgb) != RGBSize {
		return 0, fmt.Errorf("%w: %d bytes, want %d", ErrBadImage, len(rgb), RGBSize)
	}
	var grays [Bits]int
	sum := 0
	for i := range grays {
		p := rgb[i*3 : i*3+3]
		grays[i] = (int(p[0])*30 + int(p[1])*59 + int(p[2])*11) / 100
		sum += grays[i]
	}
	avg := sum / Bits

	var h Hash
	for i, g := range grays {
		if g >= avg {
			h |= 1 << uint(i)
		}
	}
	return h, nil
}

// RGB resizes img to 8x8 and returns its RGB24 pixels, alpha dropped.
func RGB(img image.Image) []byte {
	if img == nil || img.Bounds().Empty() {
		return nil
	}
	thumb := imaging.Resize(img, Side, Side, imaging.Linear)
	out := make([]byte, 0, RGBSize)
	for y := 0; y < Side; y++ {
		row := thumb.Pix[y*thumb.Stride:]
		for x := 0; x < Side; x++ {
			out = append(out, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

// ImageHash is the average hash of img.
func ImageHash(img image.Image) Hash {
	h, _ := AverageHash(RGB(img))
	return h
}

// PerceptionHash is the DCT based hash of img, used when images are
// configured for the "phash" algorithm.
func PerceptionHash(img image.Image) (Hash, error) {
	ih, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, err
	}
	return Hash(ih.GetHash()), nil
}

// AudioHash reduces a clip of signed 16-bit samples to an average hash over
// the mean level of its 64 frames. Samples missing from a short clip count
// as silence. An empty clip has no hash.
func AudioHash(pcm []int16) Hash {
	if len(pcm) == 0 {
		return 0
	}
	var levels [AudioHashLength]float64
	var total float64
	for i := range levels {
		var sum float64
		for j := 0; j < AudioHashFrame; j++ {
			k := i*AudioHashOverlap + j
			v := 0.0
			if k < len(pcm) {
				v = float64(pcm[k])
			}
			sum += v + 32768
		}
		// 8-bit magnitude
		levels[i] = float64(uint8(sum / AudioHashFrame * 255 / 65535))
		total += levels[i]
	}
	avg := total / AudioHashLength

	var h Hash
	for i, l := range levels {
		if l >= avg {
			h |= 1 << uint(i)
		}
	}
	return h
}

// Kind tells apart hashes of the same file and offset computed by
// different algorithms.
type Kind uint8

const (
	KindImage Kind = iota
	KindPerception
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPerception:
		return "phash"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindImage, KindPerception, KindAudio} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}
