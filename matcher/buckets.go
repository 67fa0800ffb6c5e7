package matcher

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/naihe2010/fdupves/algorithm"
	"github.com/naihe2010/fdupves/phash"
	"github.com/naihe2010/fdupves/scan"
)

type candidate struct {
	path     string
	duration float64

	headSeek float64
	tailSeek float64
	head     phash.Hash
	tail     phash.Hash

	landmarks algorithm.FingerprintSet
}

// prepare probes every path and groups the readable ones by bucket. Files
// that cannot be probed or fall outside every bucket are left out.
func (m *Matcher) prepare(ctx context.Context, class scan.Class, paths []string) [][]*candidate {
	durations := make([]float64, len(paths))
	var done int
	m.fill(ctx, len(paths), func(ctx context.Context, i int) {
		d, err := m.dec.ProbeDuration(ctx, paths[i])
		if err != nil {
			m.warn(err, paths[i], 0, "can't get duration")
			d = -1
		}
		durations[i] = d
		m.emitNext(&done, Step{Class: class, Doing: "Probe " + class.String() + " duration", Total: len(paths)})
	})

	groups := make([][]*candidate, len(m.cfg.Buckets))
	for i, d := range durations {
		if d <= 0 {
			continue
		}
		g := m.cfg.BucketFor(d)
		if g < 0 {
			m.log.WithFields(logrus.Fields{"file": paths[i], "duration": d}).Debug("outside every duration bucket")
			continue
		}
		groups[g] = append(groups[g], &candidate{path: paths[i], duration: d})
	}
	return groups
}

// durationsDiffer applies the length ratio pre-filter. rate is a percent of
// the longer duration; zero disables the filter.
func durationsDiffer(a, b float64, rate int) bool {
	if rate <= 0 {
		return false
	}
	return math.Abs(a-b)*100 > float64(rate)*math.Max(a, b)
}

type pair struct {
	a, b           *candidate
	headOK, tailOK bool
	kind           Kind
	found          bool
}

// findTimed matches videos, or audio in clip mode, by head and tail hashes
// taken at the bucket offset from either end.
func (m *Matcher) findTimed(ctx context.Context, class scan.Class, paths []string, hasher Hasher, headKind, tailKind Kind, threshold int) (int, error) {
	groups := m.prepare(ctx, class, paths)
	mask := m.cfg.Mask()
	rate := m.cfg.DurationRate()
	name := class.String()

	count := 0
	for g, members := range groups {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if len(members) < 2 {
			continue
		}
		bucket := m.cfg.Buckets[g]
		log := m.log.WithFields(logrus.Fields{"class": name, "bucket": g, "files": len(members)})
		log.Debug("hash phase")

		var done int
		m.fill(ctx, len(members), func(ctx context.Context, i int) {
			c := members[i]
			c.headSeek = bucket.OffsetSeconds
			c.tailSeek = math.Max(c.duration-bucket.OffsetSeconds, 0)
			c.head = hasher.Hash(ctx, c.path, c.headSeek)
			c.tail = hasher.Hash(ctx, c.path, c.tailSeek)
			m.emitNext(&done, Step{Class: class, Doing: "Generate " + name + " hash value", Total: len(members)})
		})

		log.Debug("compare phase")
		var pairs []*pair
		for i := 0; i < len(members)-1; i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := members[i], members[j]
				if durationsDiffer(a.duration, b.duration, rate) {
					continue
				}
				p := &pair{
					a:      a,
					b:      b,
					headOK: phash.Distance(a.head, b.head, mask) < threshold,
					tailOK: phash.Distance(a.tail, b.tail, mask) < threshold,
				}
				if p.headOK || p.tailOK {
					pairs = append(pairs, p)
				}
			}
			m.emit(Step{Class: class, Doing: "Compare " + name + " hash value", Now: i + 1, Total: len(members) - 1})
		}

		m.fill(ctx, len(pairs), func(ctx context.Context, i int) {
			p := pairs[i]
			switch {
			case p.headOK && m.confirm(ctx, hasher, p.a, p.b, false, mask, threshold):
				p.kind, p.found = headKind, true
			case p.tailOK && m.confirm(ctx, hasher, p.a, p.b, true, mask, threshold):
				p.kind, p.found = tailKind, true
			}
		})
		for _, p := range pairs {
			if p.found {
				count++
				m.found(class, Result{A: p.a.path, B: p.b.path, Kind: p.kind})
			}
		}
	}
	return count, nil
}

// confirm hashes ConfirmPoints extra offsets spread between the head (or
// tail) sample and the far end of the shorter file. Every one must match.
func (m *Matcher) confirm(ctx context.Context, hasher Hasher, a, b *candidate, tail bool, mask phash.Mask, threshold int) bool {
	n := m.cfg.ConfirmPoints
	if n <= 0 {
		return true
	}
	var step float64
	if tail {
		step = math.Min(a.tailSeek, b.tailSeek) / float64(n+1)
	} else {
		step = (math.Min(a.duration, b.duration) - a.headSeek) / float64(n+1)
	}
	for k := 1; k <= n; k++ {
		seekA, seekB := a.headSeek+float64(k)*step, b.headSeek+float64(k)*step
		if tail {
			seekA, seekB = a.tailSeek-float64(k)*step, b.tailSeek-float64(k)*step
		}
		if phash.Distance(hasher.Hash(ctx, a.path, seekA), hasher.Hash(ctx, b.path, seekB), mask) >= threshold {
			return false
		}
	}
	return true
}

func (m *Matcher) found(class scan.Class, r Result) {
	m.log.WithFields(logrus.Fields{"a": r.A, "b": r.B, "kind": r.Kind.String()}).Debug("match")
	m.emit(Step{Class: class, Doing: "Found same " + class.String(), Found: true, Result: r})
}

// findAudios matches audio files by the overlap of their landmark sets.
func (m *Matcher) findAudios(ctx context.Context, paths []string) (int, error) {
	groups := m.prepare(ctx, scan.Audio, paths)
	distance := m.cfg.AudioDistance()
	rate := m.cfg.DurationRate()

	count := 0
	for g, members := range groups {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if len(members) < 2 {
			continue
		}
		m.log.WithFields(logrus.Fields{"class": "audio", "bucket": g, "files": len(members)}).Debug("fingerprint phase")

		var done int
		m.fill(ctx, len(members), func(ctx context.Context, i int) {
			members[i].landmarks = m.landmarks(ctx, members[i].path, members[i].duration)
			m.emitNext(&done, Step{Class: scan.Audio, Doing: "Generate audio fingerprint", Total: len(members)})
		})

		for i := 0; i < len(members)-1; i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := members[i], members[j]
				if durationsDiffer(a.duration, b.duration, rate) {
					continue
				}
				if phash.SameAudio(a.landmarks, b.landmarks, distance) {
					count++
					m.found(scan.Audio, Result{A: a.path, B: b.path, Kind: SameAudio})
				}
			}
			m.emit(Step{Class: scan.Audio, Doing: "Compare audio fingerprint", Now: i + 1, Total: len(members) - 1})
		}

		// fingerprints are only needed within their bucket
		for _, c := range members {
			c.landmarks = nil
		}
	}
	return count, nil
}

// findImages compares every pair of images; they have no duration.
func (m *Matcher) findImages(ctx context.Context, paths []string) (int, error) {
	hashes := make([]phash.Hash, len(paths))
	var done int
	m.fill(ctx, len(paths), func(ctx context.Context, i int) {
		hashes[i] = m.imageHash(ctx, paths[i])
		m.emitNext(&done, Step{Class: scan.Image, Doing: "Generate image hash value", Total: len(paths)})
	})
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	mask := m.cfg.Mask()
	threshold := m.cfg.ImageDistance()
	count := 0
	for i := 0; i < len(paths)-1; i++ {
		for j := i + 1; j < len(paths); j++ {
			if phash.Distance(hashes[i], hashes[j], mask) < threshold {
				count++
				m.found(scan.Image, Result{A: paths[i], B: paths[j], Kind: SameImage})
			}
		}
		m.emit(Step{Class: scan.Image, Doing: "Compare image hash value", Now: i + 1, Total: len(paths) - 1})
	}
	return count, nil
}
