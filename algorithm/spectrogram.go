package algorithm

import (
	"math"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

const (
	DefaultWindowSize = 4096
	DefaultOverlap    = 0.5

	// power floor applied before the dB conversion
	minPower = 1e-8
)

// Spectrogram is a log-power matrix with Bins rows and Frames columns,
// stored row-major.
type Spectrogram struct {
	Bins   int
	Frames int
	Data   []float64
}

func (s *Spectrogram) At(bin, frame int) float64 {
	return s.Data[bin*s.Frames+frame]
}

// NewSpectrogram splits samples into overlapping blocks of windowSize
// samples and returns the one-sided power spectral density of each block
// in dB. A trailing partial block is dropped, so a buffer shorter than one
// window yields a spectrogram with zero frames.
func NewSpectrogram(samples []float64, sampleRate, windowSize int, overlap float64) *Spectrogram {
	if windowSize < 2 {
		windowSize = DefaultWindowSize
	}
	bins := windowSize/2 + 1
	noverlap := int(float64(windowSize) * overlap)
	stride := windowSize - noverlap
	if stride <= 0 || sampleRate <= 0 || len(samples) < windowSize {
		return &Spectrogram{Bins: bins}
	}
	frames := (len(samples)-windowSize)/stride + 1

	// global mean over every block, overlapping samples counted once per block
	var total float64
	for f := 0; f < frames; f++ {
		start := f * stride
		total += floats.Sum(samples[start : start+windowSize])
	}
	mean := total / float64(frames*windowSize)

	win := window.Hann(windowSize)
	scale := float64(sampleRate) * floats.Dot(win, win)
	fft := fourier.NewFFT(windowSize)

	spec := &Spectrogram{Bins: bins, Frames: frames, Data: make([]float64, bins*frames)}
	buf := make([]float64, windowSize)
	coeffs := make([]complex128, bins)
	for f := 0; f < frames; f++ {
		block := samples[f*stride : f*stride+windowSize]
		for i, v := range block {
			buf[i] = (v - mean) * win[i]
		}
		coeffs = fft.Coefficients(coeffs, buf)
		for k, c := range coeffs {
			p := real(c)*real(c) + imag(c)*imag(c)
			if k != 0 && !(windowSize%2 == 0 && k == bins-1) {
				p *= 2
			}
			p /= scale
			if p < minPower {
				p = minPower
			}
			spec.Data[k*frames+f] = 10 * math.Log10(p)
		}
	}
	return spec
}
