package algorithm

import (
	"cmp"
	"crypto/sha1"
	"encoding/hex"
	"iter"
	"slices"
	"strconv"
)

const (
	DefaultFanValue     = 5
	DefaultMinTimeDelta = 0
	DefaultMaxTimeDelta = 200

	// hex characters kept from the SHA-1 digest
	HashLength = 10
)

type HashOptions struct {
	FanValue     int
	MinTimeDelta int
	MaxTimeDelta int
}

func DefaultHashOptions() HashOptions {
	return HashOptions{
		FanValue:     DefaultFanValue,
		MinTimeDelta: DefaultMinTimeDelta,
		MaxTimeDelta: DefaultMaxTimeDelta,
	}
}

// Landmark is a hashed pair of peaks anchored at the first peak's frame.
type Landmark struct {
	Hash   string `json:"hash"`
	Offset int    `json:"offset"`
}

// LandmarkHash returns the first 10 hex characters of SHA-1("f1|f2|dt").
func LandmarkHash(freq1, freq2, timeDelta int) string {
	key := strconv.Itoa(freq1) + "|" + strconv.Itoa(freq2) + "|" + strconv.Itoa(timeDelta)
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:HashLength]
}

// GenerateLandmarks pairs every peak with the next FanValue-1 peaks in
// (time, freq) order and yields the pairs whose time delta lies within
// [MinTimeDelta, MaxTimeDelta]. The returned sequence can be ranged over
// once; later iterations yield nothing.
func GenerateLandmarks(peaks []Peak, o HashOptions) iter.Seq[Landmark] {
	sorted := slices.Clone(peaks)
	slices.SortFunc(sorted, func(a, b Peak) int {
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.Freq, b.Freq)
	})

	consumed := false
	return func(yield func(Landmark) bool) {
		if consumed {
			return
		}
		consumed = true
		for i := range sorted {
			for j := 1; j < o.FanValue && i+j < len(sorted); j++ {
				p1, p2 := sorted[i], sorted[i+j]
				dt := p2.Time - p1.Time
				if dt < o.MinTimeDelta || dt > o.MaxTimeDelta {
					continue
				}
				if !yield(Landmark{Hash: LandmarkHash(p1.Freq, p2.Freq, dt), Offset: p1.Time}) {
					return
				}
			}
		}
	}
}

// FingerprintSet is the landmark sequence of one file at one amplitude floor.
type FingerprintSet []Landmark

func Collect(seq iter.Seq[Landmark]) FingerprintSet {
	return FingerprintSet(slices.Collect(seq))
}

func (fs FingerprintSet) HashSet() map[string]struct{} {
	set := make(map[string]struct{}, len(fs))
	for _, l := range fs {
		set[l.Hash] = struct{}{}
	}
	return set
}
