package algorithm

import (
	"math"
	"testing"
)

func sine(n, rate int, freq, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestSpectrogramShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples int
		window  int
		frames  int
		bins    int
	}{
		{"exact three windows", 4096 * 3, 4096, 5, 2049},
		{"trailing partial block dropped", 4096*3 + 2047, 4096, 5, 2049},
		{"one window", 4096, 4096, 1, 2049},
		{"shorter than window", 4095, 4096, 0, 2049},
		{"odd window", 63, 9, 11, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewSpectrogram(make([]float64, tt.samples), AnalysisRate, tt.window, 0.5)
			if s.Frames != tt.frames || s.Bins != tt.bins {
				t.Fatalf("got %dx%d, want %dx%d", s.Bins, s.Frames, tt.bins, tt.frames)
			}
			if len(s.Data) != s.Bins*s.Frames {
				t.Fatalf("data length %d, want %d", len(s.Data), s.Bins*s.Frames)
			}
		})
	}
}

func TestSpectrogramSilenceIsClamped(t *testing.T) {
	t.Parallel()

	// a constant signal is removed entirely by the detrend step
	samples := make([]float64, 4096*2)
	for i := range samples {
		samples[i] = 1234
	}
	s := NewSpectrogram(samples, AnalysisRate, 4096, 0.5)
	want := 10 * math.Log10(minPower)
	for i, v := range s.Data {
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("cell %d = %v, want %v", i, v, want)
		}
	}
}

func TestSpectrogramSinePeakBin(t *testing.T) {
	t.Parallel()

	const bin = 100
	freq := float64(bin) * AnalysisRate / 4096
	s := NewSpectrogram(sine(4096*4, AnalysisRate, freq, 10000), AnalysisRate, 4096, 0.5)
	for frame := 0; frame < s.Frames; frame++ {
		best := 0
		for f := 1; f < s.Bins; f++ {
			if s.At(f, frame) > s.At(best, frame) {
				best = f
			}
		}
		if best != bin {
			t.Errorf("frame %d: loudest bin %d, want %d", frame, best, bin)
		}
	}
}

func TestSpectrogramOneSidedDoubling(t *testing.T) {
	t.Parallel()

	// with N=4 a DC-free alternating signal only has energy at Nyquist,
	// which must not be doubled
	samples := []float64{1, -1, 1, -1}
	s := NewSpectrogram(samples, 1, 4, 0.5)
	win := []float64{0, 0.75, 0.75, 0}
	var energy, x float64
	for i, w := range win {
		energy += w * w
		x += samples[i] * w * math.Cos(math.Pi*float64(i))
	}
	want := 10 * math.Log10(x*x/energy)
	if got := s.At(2, 0); math.Abs(got-want) > 1e-9 {
		t.Fatalf("nyquist bin = %v, want %v", got, want)
	}
}
