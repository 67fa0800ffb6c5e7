// Package matcher finds near-duplicate media among a set of candidate
// files. Signatures are computed by a bounded worker pool; comparisons run
// once every signature of a duration bucket is ready.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/naihe2010/fdupves/algorithm"
	"github.com/naihe2010/fdupves/config"
	"github.com/naihe2010/fdupves/logging"
	"github.com/naihe2010/fdupves/phash"
	"github.com/naihe2010/fdupves/scan"
)

// ErrResourceExhausted is returned, with a negative count, when no worker
// pool can be set up for a class.
var ErrResourceExhausted = errors.New("matcher: worker pool unavailable")

type Decoder interface {
	DecodeAudio(ctx context.Context, path string, offset, duration float64, sampleRate int) ([]float64, error)
	DecodeVideoFrame(ctx context.Context, path string, offset float64, width, height int) ([]byte, error)
	DecodeImage(ctx context.Context, path string) (image.Image, error)
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Cache memoizes hashes. Implementations must be safe for concurrent use.
type Cache interface {
	Get(path string, offset float64, kind phash.Kind) (phash.Hash, bool)
	Set(path string, offset float64, kind phash.Kind, h phash.Hash)
}

// LandmarkCache is implemented by caches that can also keep fingerprint
// sets.
type LandmarkCache interface {
	GetLandmarks(path string) (algorithm.FingerprintSet, bool)
	SetLandmarks(path string, set algorithm.FingerprintSet)
}

type Kind int

const (
	SameImage Kind = iota
	SameVideoHead
	SameVideoTail
	SameAudio
	SameAudioHead
	SameAudioTail
)

func (k Kind) String() string {
	switch k {
	case SameImage:
		return "image"
	case SameVideoHead:
		return "video-head"
	case SameVideoTail:
		return "video-tail"
	case SameAudio:
		return "audio"
	case SameAudioHead:
		return "audio-head"
	case SameAudioTail:
		return "audio-tail"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is one pair of files found to be the same.
type Result struct {
	A    string `json:"a"`
	B    string `json:"b"`
	Kind Kind   `json:"kind"`
}

// Step is a progress notification. When Found is set, Result holds the
// match just made.
type Step struct {
	Class  scan.Class
	Doing  string
	Now    int
	Total  int
	Found  bool
	Result Result
}

type Matcher struct {
	cfg      *config.Config
	dec      Decoder
	cache    Cache
	log      logrus.FieldLogger
	engine   *algorithm.Engine
	poolSize int

	mu       sync.Mutex
	observer func(Step)
}

type Option func(*Matcher)

// WithCache sets the lookaside cache. A nil cache disables caching.
func WithCache(c Cache) Option {
	return func(m *Matcher) { m.cache = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Matcher) { m.log = logging.OrDiscard(l) }
}

// WithObserver registers fn for progress and match steps. Calls are
// serialized.
func WithObserver(fn func(Step)) Option {
	return func(m *Matcher) { m.observer = fn }
}

// WithPoolSize overrides the configured worker count.
func WithPoolSize(n int) Option {
	return func(m *Matcher) { m.poolSize = n }
}

func WithEngine(e *algorithm.Engine) Option {
	return func(m *Matcher) { m.engine = e }
}

func New(cfg *config.Config, dec Decoder, opts ...Option) *Matcher {
	m := &Matcher{
		cfg:      cfg,
		dec:      dec,
		log:      logging.Discard(),
		engine:   algorithm.NewEngine(algorithm.DefaultOptions()),
		poolSize: cfg.PoolSize(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Matcher) emit(s Step) {
	if m.observer == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer(s)
}

// emitNext numbers s from the counter at *done under the observer lock, so
// steps of one phase reach the observer in count order.
func (m *Matcher) emitNext(done *int, s Step) {
	if m.observer == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	*done++
	s.Now = *done
	m.observer(s)
}

// Run compares paths of one class and returns the number of matches. On
// cancellation the matches counted so far are returned with ctx.Err().
func (m *Matcher) Run(ctx context.Context, class scan.Class, paths []string) (int, error) {
	log := m.log.WithField("class", class.String())
	if m.poolSize < 1 {
		log.WithField("workers", m.poolSize).Error("no worker pool")
		return -1, ErrResourceExhausted
	}
	if len(paths) < 2 {
		return 0, nil
	}

	log.WithField("files", len(paths)).Debug("matching")
	switch class {
	case scan.Image:
		return m.findImages(ctx, paths)
	case scan.Video:
		return m.findTimed(ctx, scan.Video, paths, videoHasher{m}, SameVideoHead, SameVideoTail, m.cfg.VideoDistance())
	case scan.Audio:
		if m.cfg.AudioMode == config.AudioModeClip {
			return m.findTimed(ctx, scan.Audio, paths, audioClipHasher{m}, SameAudioHead, SameAudioTail, m.cfg.ClipDistance())
		}
		return m.findAudios(ctx, paths)
	default:
		return 0, fmt.Errorf("matcher: unsupported class %v", class)
	}
}

// FindAll runs every enabled class. A class that fails counts as zero
// matches; only cancellation stops the remaining classes.
func (m *Matcher) FindAll(ctx context.Context, files scan.Files) (map[scan.Class]int, error) {
	counts := make(map[scan.Class]int)
	classes := []struct {
		class   scan.Class
		enabled bool
		paths   []string
	}{
		{scan.Image, m.cfg.ProcImage, files.Images},
		{scan.Video, m.cfg.ProcVideo, files.Videos},
		{scan.Audio, m.cfg.ProcAudio, files.Audios},
	}
	for _, c := range classes {
		if !c.enabled {
			continue
		}
		n, err := m.Run(ctx, c.class, c.paths)
		if n < 0 {
			n = 0
		}
		counts[c.class] = n
		if err != nil {
			if ctx.Err() != nil {
				return counts, ctx.Err()
			}
			m.log.WithError(err).WithField("class", c.class.String()).Error("matching failed")
			continue
		}
		m.log.WithFields(logrus.Fields{"class": c.class.String(), "matches": n}).Info("class done")
	}
	return counts, nil
}

// fill runs task(i) for i in [0, n) on the worker pool and returns once
// every task has finished. Tasks are not interrupted by cancellation of ctx.
func (m *Matcher) fill(ctx context.Context, n int, task func(ctx context.Context, i int)) {
	taskCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(m.poolSize)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					m.log.WithField("panic", r).Error("hash task crashed")
				}
			}()
			task(taskCtx, i)
			return nil
		})
	}
	_ = g.Wait()
}
