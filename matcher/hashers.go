package matcher

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/naihe2010/fdupves/algorithm"
	"github.com/naihe2010/fdupves/config"
	"github.com/naihe2010/fdupves/phash"
)

// Hasher computes the signature of a file at an offset in seconds. Zero
// means it could not be computed.
type Hasher interface {
	Hash(ctx context.Context, path string, offset float64) phash.Hash
}

func (m *Matcher) cached(path string, offset float64, kind phash.Kind, compute func() phash.Hash) phash.Hash {
	if m.cache != nil {
		if h, ok := m.cache.Get(path, offset, kind); ok {
			return h
		}
	}
	h := compute()
	if m.cache != nil && h != 0 {
		m.cache.Set(path, offset, kind, h)
	}
	return h
}

func (m *Matcher) warn(err error, path string, offset float64, msg string) {
	m.log.WithError(err).WithFields(logrus.Fields{"file": path, "offset": offset}).Warn(msg)
}

// videoHasher hashes the 8x8 frame at an offset.
type videoHasher struct{ m *Matcher }

func (v videoHasher) Hash(ctx context.Context, path string, offset float64) phash.Hash {
	return v.m.cached(path, offset, phash.KindImage, func() phash.Hash {
		frame, err := v.m.dec.DecodeVideoFrame(ctx, path, offset, phash.Side, phash.Side)
		if err != nil {
			v.m.warn(err, path, offset, "video frame decode failed")
			return 0
		}
		h, err := phash.AverageHash(frame)
		if err != nil {
			v.m.warn(err, path, offset, "video frame hash failed")
			return 0
		}
		return h
	})
}

// audioClipHasher hashes the reduced audio clip starting at an offset.
type audioClipHasher struct{ m *Matcher }

func (a audioClipHasher) Hash(ctx context.Context, path string, offset float64) phash.Hash {
	return a.m.cached(path, offset, phash.KindAudio, func() phash.Hash {
		length := float64(phash.AudioHashCount) / phash.AudioHashRate
		samples, err := a.m.dec.DecodeAudio(ctx, path, offset, length, phash.AudioHashRate)
		if err != nil {
			a.m.warn(err, path, offset, "audio clip decode failed")
			return 0
		}
		n := min(len(samples), phash.AudioHashCount)
		pcm := make([]int16, n)
		for i := range pcm {
			pcm[i] = int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, samples[i])))
		}
		return phash.AudioHash(pcm)
	})
}

func (m *Matcher) imageHash(ctx context.Context, path string) phash.Hash {
	kind := phash.KindImage
	if m.cfg.ImageAlgorithm == config.ImageAlgorithmPerception {
		kind = phash.KindPerception
	}
	return m.cached(path, 0, kind, func() phash.Hash {
		img, err := m.dec.DecodeImage(ctx, path)
		if err != nil {
			m.warn(err, path, 0, "image decode failed")
			return 0
		}
		if kind == phash.KindPerception {
			h, err := phash.PerceptionHash(img)
			if err != nil {
				m.warn(err, path, 0, "image hash failed")
				return 0
			}
			return h
		}
		return phash.ImageHash(img)
	})
}

// landmarks fingerprints the whole file at the analysis rate.
func (m *Matcher) landmarks(ctx context.Context, path string, duration float64) algorithm.FingerprintSet {
	lc, _ := m.cache.(LandmarkCache)
	if lc != nil {
		if set, ok := lc.GetLandmarks(path); ok {
			return set
		}
	}
	samples, err := m.dec.DecodeAudio(ctx, path, 0, 0, m.engine.Options().SampleRate)
	if err != nil {
		m.warn(err, path, 0, "audio decode failed")
		return nil
	}
	set := m.engine.Fingerprint(samples, duration)
	if lc != nil && len(set) > 0 {
		lc.SetLandmarks(path, set)
	}
	return set
}
