package phash

import (
	"math/bits"

	"github.com/naihe2010/fdupves/algorithm"
)

// Mask selects the bits that take part in a distance.
type Mask uint64

const (
	MaskNone   Mask = 0xFFFFFFFFFFFFFFFF
	MaskHigh   Mask = 0xFFFFFFFFFFFFFF00
	MaskLow    Mask = 0x00FFFFFFFFFFFFFF
	MaskCoarse Mask = 0xFCFCFCFCFCFCFCFC
	MaskFine   Mask = 0x3F3F3F3F3F3F3F3F
)

// MaskFor maps the compare area setting (0-4) to a mask. Unknown areas
// compare every bit.
func MaskFor(area int) Mask {
	switch area {
	case 1:
		return MaskHigh
	case 2:
		return MaskLow
	case 3:
		return MaskCoarse
	case 4:
		return MaskFine
	default:
		return MaskNone
	}
}

// Distance is the Hamming distance of a and b over the bits of m. A zero
// hash on either side yields the maximum distance.
func Distance(a, b Hash, m Mask) int {
	if a == 0 || b == 0 {
		return Bits
	}
	return bits.OnesCount64(uint64(a^b) & uint64(m))
}

var sameRates = [...]int{100, 90, 80, 50, 20, 10, 5, 2, 1, 0}

// MaxAudioDistance is the largest distance index accepted by SamePeakCount.
const MaxAudioDistance = len(sameRates) - 1

// SamePeakCount is the number of shared landmarks two sets of the given
// sizes need to be considered the same at a distance index in 0-9.
func SamePeakCount(lenA, lenB, distance int) int {
	distance = min(max(distance, 0), MaxAudioDistance)
	n := min(lenA, lenB) * sameRates[distance] / 100
	return max(n, 1)
}

// Overlap counts the landmarks of a whose hash also appears in b.
func Overlap(a, b algorithm.FingerprintSet) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inB := b.HashSet()
	n := 0
	for _, l := range a {
		if _, ok := inB[l.Hash]; ok {
			n++
		}
	}
	return n
}

// SameAudio reports whether two fingerprint sets share enough landmarks at
// the given distance index. Empty sets never match.
func SameAudio(a, b algorithm.FingerprintSet, distance int) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return Overlap(a, b) >= SamePeakCount(len(a), len(b), distance)
}
