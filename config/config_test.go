package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/naihe2010/fdupves/phash"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.ImageDistance() != 6 || cfg.VideoDistance() != 8 || cfg.AudioDistance() != 2 {
		t.Fatalf("distances = %d/%d/%d, want 6/8/2", cfg.ImageDistance(), cfg.VideoDistance(), cfg.AudioDistance())
	}
	if cfg.Mask() != phash.MaskNone {
		t.Fatalf("mask = %x", cfg.Mask())
	}
	if cfg.DurationRate() != 0 {
		t.Fatalf("duration rate = %d", cfg.DurationRate())
	}
}

func TestBucketFor(t *testing.T) {
	t.Parallel()

	cfg := Default()
	tests := []struct {
		seconds float64
		want    int
	}{
		{5, -1},
		{10, 0},
		{119.9, 0},
		{120, 1},
		{2999, 2},
		{3000, 3},
		{100000, 3},
	}
	for _, tt := range tests {
		if got := cfg.BucketFor(tt.seconds); got != tt.want {
			t.Errorf("BucketFor(%v) = %d, want %d", tt.seconds, got, tt.want)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"image rate", func(c *Config) { c.SameImageRate = 11 }},
		{"audio rate", func(c *Config) { c.SameAudioRate = -1 }},
		{"compare area", func(c *Config) { c.CompareArea = 5 }},
		{"filter rate", func(c *Config) { c.FilterTimeRate = 6 }},
		{"workers", func(c *Config) { c.Workers = -2 }},
		{"audio mode", func(c *Config) { c.AudioMode = "loud" }},
		{"image algorithm", func(c *Config) { c.ImageAlgorithm = "dhash" }},
		{"no buckets", func(c *Config) { c.Buckets = nil }},
		{"overlap", func(c *Config) {
			c.Buckets = []Bucket{{10, 120, 4}, {60, 600, 25}}
		}},
		{"open-ended middle", func(c *Config) {
			c.Buckets = []Bucket{{10, 0, 4}, {60, 600, 25}}
		}},
		{"zero offset", func(c *Config) {
			c.Buckets = []Bucket{{10, 120, 0}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestDerivedValues(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.SameAudioRate = 0
	if got := cfg.AudioDistance(); got != phash.MaxAudioDistance {
		t.Errorf("audio distance = %d, want clamp to %d", got, phash.MaxAudioDistance)
	}
	cfg.FilterTimeRate = 4
	if got := cfg.DurationRate(); got != 20 {
		t.Errorf("duration rate = %d, want 20", got)
	}
	cfg.CompareArea = 3
	if got := cfg.Mask(); got != phash.MaskCoarse {
		t.Errorf("mask = %x", got)
	}
	cfg.Workers = 3
	if got := cfg.PoolSize(); got != 3 {
		t.Errorf("pool size = %d", got)
	}
	cfg.Workers = 0
	if got := cfg.PoolSize(); got < 2 {
		t.Errorf("auto pool size = %d", got)
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fdupves.json")

	cfg := Default()
	cfg.SameVideoRate = 5
	cfg.CompareArea = 2
	cfg.Buckets = []Bucket{{MinSeconds: 1, MaxSeconds: 0, OffsetSeconds: 0.5}}
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.SameVideoRate != 5 || got.CompareArea != 2 || len(got.Buckets) != 1 || got.Buckets[0].OffsetSeconds != 0.5 {
		t.Fatalf("loaded %+v", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if got.VideoDistance() != 8 {
		t.Fatalf("video distance = %d", got.VideoDistance())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FDUPVES_WORKERS", "7")
	t.Setenv("FDUPVES_VIDEO_RATE", "3")
	t.Setenv("FDUPVES_CACHE_DIR", "/tmp/fdupves-cache")

	got, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if got.Workers != 7 || got.VideoDistance() != 7 || got.CacheDir != "/tmp/fdupves-cache" {
		t.Fatalf("loaded %+v", got)
	}
}

func TestLoadEnvRejectsGarbage(t *testing.T) {
	t.Setenv("FDUPVES_COMPARE_AREA", "wide")
	if _, err := Load(""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}
