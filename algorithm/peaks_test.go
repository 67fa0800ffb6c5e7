package algorithm

import (
	"math/rand"
	"testing"
)

func TestStructuringElementIsDiamond(t *testing.T) {
	t.Parallel()

	for _, r := range []int{0, 1, 3, DefaultNeighborhood} {
		se := StructuringElement(r)
		if len(se) != 2*r+1 {
			t.Fatalf("radius %d: size %d", r, len(se))
		}
		for i := range se {
			for j := range se[i] {
				want := abs(i-r)+abs(j-r) <= r
				if se[i][j] != want {
					t.Fatalf("radius %d: cell (%d,%d) = %v, want %v", r, i, j, se[i][j], want)
				}
			}
		}
	}
}

func naiveDilate(src []float64, rows, cols, radius int) []float64 {
	se := StructuringElement(radius)
	out := make([]float64, len(src))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			best := src[i*cols+j]
			for di := -radius; di <= radius; di++ {
				for dj := -radius; dj <= radius; dj++ {
					ii, jj := i+di, j+dj
					if !se[di+radius][dj+radius] || ii < 0 || jj < 0 || ii >= rows || jj >= cols {
						continue
					}
					if v := src[ii*cols+jj]; v > best {
						best = v
					}
				}
			}
			out[i*cols+j] = best
		}
	}
	return out
}

func TestDilateMatchesStructuringElement(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	const rows, cols = 23, 31
	src := make([]float64, rows*cols)
	for i := range src {
		src[i] = rng.Float64() * 100
	}
	for _, r := range []int{1, 2, 5} {
		got := dilate(src, rows, cols, r)
		want := naiveDilate(src, rows, cols, r)
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("radius %d: cell %d = %v, want %v", r, i, got[i], want[i])
			}
		}
	}
}

func TestErodeTreatsBorderAsBackground(t *testing.T) {
	t.Parallel()

	const rows, cols = 5, 5
	mask := make([]bool, rows*cols)
	for i := range mask {
		mask[i] = true
	}
	mask[2*cols+2] = false
	got := erode(mask, rows, cols, 1)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			want := abs(i-2)+abs(j-2) > 1
			if got[i*cols+j] != want {
				t.Fatalf("cell (%d,%d) = %v, want %v", i, j, got[i*cols+j], want)
			}
		}
	}
}

func TestFindPeaks(t *testing.T) {
	t.Parallel()

	s := &Spectrogram{Bins: 50, Frames: 60, Data: make([]float64, 50*60)}
	for i := range s.Data {
		s.Data[i] = -80
	}
	s.Data[10*s.Frames+12] = 40
	s.Data[40*s.Frames+50] = 30
	// within radius of the stronger peak, so not a local maximum
	s.Data[12*s.Frames+15] = 35

	peaks := FindPeaks(s, 5, 20)
	if len(peaks) != 2 {
		t.Fatalf("got %d peaks, want 2: %+v", len(peaks), peaks)
	}
	if peaks[0] != (Peak{Freq: 10, Time: 12, Amplitude: 40}) {
		t.Errorf("first peak %+v", peaks[0])
	}
	if peaks[1] != (Peak{Freq: 40, Time: 50, Amplitude: 30}) {
		t.Errorf("second peak %+v", peaks[1])
	}

	if got := FindPeaks(s, 5, 30); len(got) != 1 {
		t.Errorf("amp floor 30 kept %d peaks, want 1", len(got))
	}
}

func TestLocalMaximaSkipsZeroBackground(t *testing.T) {
	t.Parallel()

	s := &Spectrogram{Bins: 20, Frames: 20, Data: make([]float64, 400)}
	if got := LocalMaxima(s, 3); len(got) != 0 {
		t.Fatalf("flat zero spectrogram produced %d peaks", len(got))
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
