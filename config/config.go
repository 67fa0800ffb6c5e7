package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"

	"github.com/naihe2010/fdupves/phash"
)

// SameRateMax is the top of the 0-10 sensitivity scale. A distance
// threshold is SameRateMax minus the configured level.
const SameRateMax = 10

const (
	AudioModeLandmark = "landmark"
	AudioModeClip     = "clip"

	ImageAlgorithmAverage    = "ahash"
	ImageAlgorithmPerception = "phash"
)

var ErrInvalid = errors.New("invalid configuration")

var filterTimeRates = [...]int{0, 1, 2, 10, 20, 100}

// Bucket groups candidates with MinSeconds <= duration < MaxSeconds and
// samples them OffsetSeconds from either end. MaxSeconds 0 is open-ended.
type Bucket struct {
	MinSeconds    float64 `json:"min"`
	MaxSeconds    float64 `json:"max"`
	OffsetSeconds float64 `json:"offset"`
}

func (b Bucket) Contains(seconds float64) bool {
	return seconds >= b.MinSeconds && (b.MaxSeconds == 0 || seconds < b.MaxSeconds)
}

type Config struct {
	ProcImage bool     `json:"proc_image"`
	ProcVideo bool     `json:"proc_video"`
	ProcAudio bool     `json:"proc_audio"`
	ImageExt  []string `json:"image_ext"`
	VideoExt  []string `json:"video_ext"`
	AudioExt  []string `json:"audio_ext"`

	SameImageRate int `json:"same_image_rate"`
	SameVideoRate int `json:"same_video_rate"`
	SameAudioRate int `json:"same_audio_rate"`

	CompareArea    int `json:"compare_area"`
	FilterTimeRate int `json:"filter_time_rate"`
	ConfirmPoints  int `json:"confirm_points"`

	ImageAlgorithm string `json:"image_algorithm"`
	AudioMode      string `json:"audio_mode"`

	Buckets []Bucket `json:"buckets"`
	Workers int      `json:"workers"`

	CacheDir string `json:"cache_dir"`
	FFmpeg   string `json:"ffmpeg"`
	FFprobe  string `json:"ffprobe"`
}

func DefaultBuckets() []Bucket {
	return []Bucket{
		{MinSeconds: 10, MaxSeconds: 120, OffsetSeconds: 4},
		{MinSeconds: 120, MaxSeconds: 600, OffsetSeconds: 25},
		{MinSeconds: 600, MaxSeconds: 3000, OffsetSeconds: 120},
		{MinSeconds: 3000, MaxSeconds: 0, OffsetSeconds: 600},
	}
}

func Default() *Config {
	return &Config{
		ProcImage: false,
		ProcVideo: true,
		ProcAudio: true,
		ImageExt:  strings.Split("bmp,gif,jpeg,jpg,jpe,png,pcx,pnm,tif,tiff,tga,webp,ico", ","),
		VideoExt:  strings.Split("avi,mp4,mpg,rmvb,rm,mov,mkv,m4v,mpeg,vob,asf,wmv,3gp,flv,mod,swf,mts,m2ts,ts,webm", ","),
		AudioExt:  strings.Split("mp3,wma,wav,ogg,amr,m4a,mka,aac,flac,opus", ","),

		SameImageRate: SameRateMax - 6,
		SameVideoRate: SameRateMax - 8,
		SameAudioRate: SameRateMax - 2,

		ConfirmPoints:  2,
		ImageAlgorithm: ImageAlgorithmAverage,
		AudioMode:      AudioModeLandmark,
		Buckets:        DefaultBuckets(),

		FFmpeg:  "ffmpeg",
		FFprobe: "ffprobe",
	}
}

// Load reads a JSON config on top of the defaults, then applies a .env
// file from the working directory and FDUPVES_* environment overrides.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, xerrors.New(fmt.Errorf("read config %s: %w", path, err))
		default:
			if err := json.Unmarshal(b, cfg); err != nil {
				return nil, xerrors.New(fmt.Errorf("parse config %s: %w", path, err))
			}
		}
	}

	// .env is optional
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return xerrors.New(fmt.Errorf("write config %s: %w", path, err))
	}
	return nil
}

func (c *Config) applyEnv() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"FDUPVES_WORKERS", &c.Workers},
		{"FDUPVES_IMAGE_RATE", &c.SameImageRate},
		{"FDUPVES_VIDEO_RATE", &c.SameVideoRate},
		{"FDUPVES_AUDIO_RATE", &c.SameAudioRate},
		{"FDUPVES_COMPARE_AREA", &c.CompareArea},
		{"FDUPVES_FILTER_TIME_RATE", &c.FilterTimeRate},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, e.key, v)
		}
		*e.dst = n
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"FDUPVES_CACHE_DIR", &c.CacheDir},
		{"FDUPVES_FFMPEG", &c.FFmpeg},
		{"FDUPVES_FFPROBE", &c.FFprobe},
	}
	for _, e := range strs {
		if v := os.Getenv(e.key); v != "" {
			*e.dst = v
		}
	}
	return nil
}

func (c *Config) Validate() error {
	for name, level := range map[string]int{
		"same_image_rate": c.SameImageRate,
		"same_video_rate": c.SameVideoRate,
		"same_audio_rate": c.SameAudioRate,
	} {
		if level < 0 || level > SameRateMax {
			return fmt.Errorf("%w: %s %d out of 0..%d", ErrInvalid, name, level, SameRateMax)
		}
	}
	if c.CompareArea < 0 || c.CompareArea > 4 {
		return fmt.Errorf("%w: compare_area %d out of 0..4", ErrInvalid, c.CompareArea)
	}
	if c.FilterTimeRate < 0 || c.FilterTimeRate >= len(filterTimeRates) {
		return fmt.Errorf("%w: filter_time_rate %d out of 0..%d", ErrInvalid, c.FilterTimeRate, len(filterTimeRates)-1)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalid, c.Workers)
	}
	if c.ConfirmPoints < 0 {
		return fmt.Errorf("%w: confirm_points %d", ErrInvalid, c.ConfirmPoints)
	}
	switch c.AudioMode {
	case AudioModeLandmark, AudioModeClip:
	default:
		return fmt.Errorf("%w: audio_mode %q", ErrInvalid, c.AudioMode)
	}
	switch c.ImageAlgorithm {
	case ImageAlgorithmAverage, ImageAlgorithmPerception:
	default:
		return fmt.Errorf("%w: image_algorithm %q", ErrInvalid, c.ImageAlgorithm)
	}
	return validateBuckets(c.Buckets)
}

func validateBuckets(buckets []Bucket) error {
	if len(buckets) == 0 {
		return fmt.Errorf("%w: no duration buckets", ErrInvalid)
	}
	for i, b := range buckets {
		if b.MinSeconds < 0 || b.OffsetSeconds <= 0 {
			return fmt.Errorf("%w: bucket %d %+v", ErrInvalid, i, b)
		}
		if i > 0 && b.MinSeconds < buckets[i-1].MaxSeconds {
			return fmt.Errorf("%w: bucket %d overlaps bucket %d", ErrInvalid, i, i-1)
		}
		if b.MaxSeconds == 0 {
			if i != len(buckets)-1 {
				return fmt.Errorf("%w: only the last bucket may be open-ended", ErrInvalid)
			}
			continue
		}
		if b.MaxSeconds <= b.MinSeconds {
			return fmt.Errorf("%w: bucket %d has max <= min", ErrInvalid, i)
		}
	}
	return nil
}

func (c *Config) ImageDistance() int { return SameRateMax - c.SameImageRate }
func (c *Config) VideoDistance() int { return SameRateMax - c.SameVideoRate }

// AudioDistance is the landmark overlap index, clamped to 0-9.
func (c *Config) AudioDistance() int {
	return min(max(SameRateMax-c.SameAudioRate, 0), phash.MaxAudioDistance)
}

// ClipDistance is the Hamming threshold for audio in clip mode.
func (c *Config) ClipDistance() int { return SameRateMax - c.SameAudioRate }

func (c *Config) Mask() phash.Mask { return phash.MaskFor(c.CompareArea) }

// DurationRate is the largest accepted length difference between two
// candidates, in percent of the longer one. Zero disables the filter.
func (c *Config) DurationRate() int {
	if c.FilterTimeRate < 0 || c.FilterTimeRate >= len(filterTimeRates) {
		return 0
	}
	return filterTimeRates[c.FilterTimeRate]
}

// PoolSize resolves Workers, where 0 means NumCPU-1 with a minimum of 2.
func (c *Config) PoolSize() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return max(runtime.NumCPU()-1, 2)
}

// BucketFor returns the index of the bucket holding seconds, or -1.
func (c *Config) BucketFor(seconds float64) int {
	for i, b := range c.Buckets {
		if b.Contains(seconds) {
			return i
		}
	}
	return -1
}
