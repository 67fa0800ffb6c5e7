package algorithm

const DefaultNeighborhood = 20

type Peak struct {
	Freq      int
	Time      int
	Amplitude float64
}

// StructuringElement returns the (2r+1)x(2r+1) mask obtained by dilating a
// single center pixel r times with a 3x3 cross. The result is a diamond of
// Manhattan radius r.
func StructuringElement(radius int) [][]bool {
	size := 2*radius + 1
	cur := make([][]bool, size)
	for i := range cur {
		cur[i] = make([]bool, size)
	}
	cur[radius][radius] = true
	for n := 0; n < radius; n++ {
		next := make([][]bool, size)
		for i := range next {
			next[i] = make([]bool, size)
			for j := range next[i] {
				next[i][j] = cur[i][j] ||
					(i > 0 && cur[i-1][j]) || (i < size-1 && cur[i+1][j]) ||
					(j > 0 && cur[i][j-1]) || (j < size-1 && cur[i][j+1])
			}
		}
		cur = next
	}
	return cur
}

// LocalMaxima returns every cell of s that equals the grayscale dilation of
// s by StructuringElement(radius) and is not inside the eroded zero-value
// background. No amplitude floor is applied.
func LocalMaxima(s *Spectrogram, radius int) []Peak {
	if s == nil || s.Frames == 0 || s.Bins == 0 {
		return nil
	}
	maxed := dilate(s.Data, s.Bins, s.Frames, radius)

	background := make([]bool, len(s.Data))
	for i, v := range s.Data {
		background[i] = v == 0
	}
	background = erode(background, s.Bins, s.Frames, radius)

	var peaks []Peak
	for f := 0; f < s.Bins; f++ {
		for t := 0; t < s.Frames; t++ {
			i := f*s.Frames + t
			if s.Data[i] == maxed[i] && !background[i] {
				peaks = append(peaks, Peak{Freq: f, Time: t, Amplitude: s.Data[i]})
			}
		}
	}
	return peaks
}

// FilterPeaks keeps the peaks whose amplitude is strictly above ampMin.
func FilterPeaks(peaks []Peak, ampMin float64) []Peak {
	out := make([]Peak, 0, len(peaks))
	for _, p := range peaks {
		if p.Amplitude > ampMin {
			out = append(out, p)
		}
	}
	return out
}

func FindPeaks(s *Spectrogram, radius int, ampMin float64) []Peak {
	return FilterPeaks(LocalMaxima(s, radius), ampMin)
}

// dilate applies radius passes of a 3x3 cross max-filter, which is the
// dilation by the diamond element. Cells outside the matrix are ignored.
func dilate(src []float64, rows, cols, radius int) []float64 {
	cur := make([]float64, len(src))
	copy(cur, src)
	next := make([]float64, len(src))
	for n := 0; n < radius; n++ {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				k := i*cols + j
				v := cur[k]
				if i > 0 && cur[k-cols] > v {
					v = cur[k-cols]
				}
				if i < rows-1 && cur[k+cols] > v {
					v = cur[k+cols]
				}
				if j > 0 && cur[k-1] > v {
					v = cur[k-1]
				}
				if j < cols-1 && cur[k+1] > v {
					v = cur[k+1]
				}
				next[k] = v
			}
		}
		cur, next = next, cur
	}
	return cur
}

// erode is the boolean counterpart of dilate. Cells outside the matrix
// count as set.
func erode(src []bool, rows, cols, radius int) []bool {
	cur := make([]bool, len(src))
	copy(cur, src)
	next := make([]bool, len(src))
	for n := 0; n < radius; n++ {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				k := i*cols + j
				next[k] = cur[k] &&
					(i == 0 || cur[k-cols]) && (i == rows-1 || cur[k+cols]) &&
					(j == 0 || cur[k-1]) && (j == cols-1 || cur[k+1])
			}
		}
		cur, next = next, cur
	}
	return cur
}
