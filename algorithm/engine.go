package algorithm

// AnalysisRate is the sample rate every fingerprinted buffer must use.
const AnalysisRate = 22050

type Options struct {
	SampleRate   int
	WindowSize   int
	Overlap      float64
	Neighborhood int
	Hash         HashOptions
	// amplitude floors tried in order, in dB
	Floors []float64
}

func DefaultOptions() Options {
	return Options{
		SampleRate:   AnalysisRate,
		WindowSize:   DefaultWindowSize,
		Overlap:      DefaultOverlap,
		Neighborhood: DefaultNeighborhood,
		Hash:         DefaultHashOptions(),
		Floors:       AmplitudeFloors(),
	}
}

// AmplitudeFloors returns 50, 45, ..., 5.
func AmplitudeFloors() []float64 {
	floors := make([]float64, 0, 10)
	for amp := 50; amp >= 5; amp -= 5 {
		floors = append(floors, float64(amp))
	}
	return floors
}

// Engine turns a mono sample buffer into a FingerprintSet, lowering the
// peak amplitude floor until the set is dense enough for the duration.
type Engine struct {
	opts Options
}

// NewEngine fills every zero or out-of-range field of o from DefaultOptions.
func NewEngine(o Options) *Engine {
	d := DefaultOptions()
	if o.SampleRate <= 0 {
		o.SampleRate = d.SampleRate
	}
	if o.WindowSize <= 1 {
		o.WindowSize = d.WindowSize
	}
	if o.Overlap <= 0 || o.Overlap >= 1 {
		o.Overlap = d.Overlap
	}
	if o.Neighborhood <= 0 {
		o.Neighborhood = d.Neighborhood
	}
	if o.Hash.FanValue <= 0 {
		o.Hash = d.Hash
	}
	if len(o.Floors) == 0 {
		o.Floors = d.Floors
	}
	return &Engine{opts: o}
}

func (e *Engine) Options() Options { return e.opts }

// Fingerprint runs the adaptive loop over samples. A non-positive duration
// is derived from the buffer length. The set of the last floor tried is
// returned, which is empty for silence or buffers shorter than one window.
func (e *Engine) Fingerprint(samples []float64, durationSeconds float64) FingerprintSet {
	if durationSeconds <= 0 {
		durationSeconds = float64(len(samples)) / float64(e.opts.SampleRate)
	}
	target := int(durationSeconds) >> 2

	spec := NewSpectrogram(samples, e.opts.SampleRate, e.opts.WindowSize, e.opts.Overlap)
	if spec.Frames == 0 {
		return FingerprintSet{}
	}
	candidates := LocalMaxima(spec, e.opts.Neighborhood)

	var set FingerprintSet
	for _, floor := range e.opts.Floors {
		set = Collect(GenerateLandmarks(FilterPeaks(candidates, floor), e.opts.Hash))
		if len(set) > target {
			break
		}
	}
	return set
}
