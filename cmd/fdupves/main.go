package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/naihe2010/fdupves/algorithm"
	"github.com/naihe2010/fdupves/config"
	"github.com/naihe2010/fdupves/decoder"
	"github.com/naihe2010/fdupves/indexer"
	"github.com/naihe2010/fdupves/logging"
	"github.com/naihe2010/fdupves/matcher"
	"github.com/naihe2010/fdupves/phash"
	"github.com/naihe2010/fdupves/report"
	"github.com/naihe2010/fdupves/scan"
)

const usage = `usage:
  fdupves -mode scan [-config f] [-workers n] [-cache dir] [-report json:F|sqlite:F|mongodb://...] [-v] DIR...
  fdupves -mode fingerprint -file F
  fdupves -mode hash -file F [-class image|video|audio] [-offset S]
  fdupves -mode wav -file F [-offset S] [-length L] [-rate R] -out O
  fdupves -mode cache -cache dir -file F [-kind image|phash|audio|landmarks] [-offset S]
`

// ---------------- Main ----------------

func main() {
	mode := flag.String("mode", "scan", "scan | fingerprint | hash | wav | cache")
	configPath := flag.String("config", "", "JSON config file; FDUPVES_* variables and .env override it")
	workers := flag.Int("workers", -1, "concurrent hash workers (0=auto)")
	cacheDir := flag.String("cache", "", "badger cache directory (empty keeps hashes in memory for this run)")
	reportTarget := flag.String("report", "", "also store matches: json:FILE, sqlite:FILE or a mongodb:// URI")
	verbose := flag.Bool("v", false, "debug logging")

	file := flag.String("file", "", "input file for fingerprint, hash, wav and cache modes")
	class := flag.String("class", "", "media class for hash mode (default: by extension)")
	kind := flag.String("kind", "image", "hash kind for cache mode")
	offset := flag.Float64("offset", 0, "offset in seconds")
	length := flag.Float64("length", 10, "length in seconds for wav mode")
	rate := flag.Int("rate", phash.AudioHashRate, "sample rate for wav mode")
	out := flag.String("out", "", "output file for wav mode")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logging.New(*verbose, os.Stderr)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}
	if *cacheDir != "" {
		cfg.CacheDir = *cacheDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	dec := decoder.New(cfg.FFmpeg, cfg.FFprobe)

	switch *mode {
	case "scan":
		if flag.NArg() == 0 {
			flag.Usage()
			os.Exit(2)
		}
		if err := runScan(ctx, cfg, dec, log, flag.Args(), *reportTarget); err != nil {
			log.Fatalf("scan error: %v", err)
		}

	case "fingerprint":
		if *file == "" {
			log.Fatal("missing -file")
		}
		if err := runFingerprint(ctx, dec, *file); err != nil {
			log.Fatalf("fingerprint error: %v", err)
		}

	case "hash":
		if *file == "" {
			log.Fatal("missing -file")
		}
		h, err := runHash(ctx, cfg, dec, *file, *class, *offset)
		if err != nil {
			log.Fatalf("hash error: %v", err)
		}
		fmt.Println(h)

	case "wav":
		if *file == "" || *out == "" {
			log.Fatal("missing -file or -out")
		}
		if err := dec.ExtractToWAV(ctx, *file, *offset, *length, *rate, *out); err != nil {
			log.Fatalf("wav error: %v", err)
		}
		fmt.Printf("wrote %s\n", *out)

	case "cache":
		if *file == "" || cfg.CacheDir == "" {
			log.Fatal("missing -file or -cache")
		}
		if err := runCache(cfg.CacheDir, log, *file, *kind, *offset); err != nil {
			log.Fatalf("cache error: %v", err)
		}

	default:
		flag.Usage()
		os.Exit(2)
	}
}

// ---------------- Scan ----------------

func runScan(ctx context.Context, cfg *config.Config, dec *decoder.FFmpeg, log *logrus.Logger, roots []string, target string) error {
	files, err := scan.Collect(roots, scan.NewClassifier(cfg), log)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"images": len(files.Images),
		"videos": len(files.Videos),
		"audios": len(files.Audios),
	}).Info("collected files")

	opts := []matcher.Option{matcher.WithLogger(log)}
	if cfg.CacheDir != "" {
		cache, err := indexer.OpenBadger(cfg.CacheDir, log)
		if err != nil {
			return err
		}
		defer cache.Close()
		opts = append(opts, matcher.WithCache(cache))
	} else {
		opts = append(opts, matcher.WithCache(indexer.NewMemory()))
	}

	var sink report.Sink
	if target != "" {
		sink, err = report.Open(ctx, target)
		if err != nil {
			return err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				log.WithError(err).Error("close report")
			}
		}()
	}

	prog := newProgress(os.Stderr)
	var found []matcher.Result
	opts = append(opts, matcher.WithObserver(func(s matcher.Step) {
		if !s.Found {
			prog.update(s)
			return
		}
		found = append(found, s.Result)
		if sink != nil {
			if err := sink.Write(context.WithoutCancel(ctx), s.Result); err != nil {
				log.WithError(err).Warn("report write failed")
			}
		}
	}))

	counts, err := matcher.New(cfg, dec, opts...).FindAll(ctx, files)
	prog.wait()
	printResults(found)
	for _, c := range []scan.Class{scan.Image, scan.Video, scan.Audio} {
		if n, ok := counts[c]; ok {
			fmt.Printf("%s: %d same\n", c, n)
		}
	}
	if err != nil {
		log.WithError(err).Warn("scan interrupted")
	}
	return nil
}

func printResults(results []matcher.Result) {
	kind := color.New(color.FgCyan, color.Bold)
	for _, r := range results {
		fmt.Printf("%s\n  %s%s\n  %s%s\n", kind.Sprintf("[%s]", r.Kind), r.A, tagSuffix(r.A, r.Kind), r.B, tagSuffix(r.B, r.Kind))
	}
}

// tagSuffix shows embedded metadata of audio matches.
func tagSuffix(path string, kind matcher.Kind) string {
	switch kind {
	case matcher.SameAudio, matcher.SameAudioHead, matcher.SameAudioTail:
	default:
		return ""
	}
	tags, err := decoder.ReadTags(path)
	if err != nil || tags.String() == "" {
		return ""
	}
	return color.YellowString("  (%s)", tags)
}

// ---------------- Single file tools ----------------

func runFingerprint(ctx context.Context, dec *decoder.FFmpeg, path string) error {
	engine := algorithm.NewEngine(algorithm.DefaultOptions())
	duration, err := dec.ProbeDuration(ctx, path)
	if err != nil {
		return err
	}
	samples, err := dec.DecodeAudio(ctx, path, 0, 0, engine.Options().SampleRate)
	if err != nil {
		return err
	}
	set := engine.Fingerprint(samples, duration)
	if set == nil {
		set = algorithm.FingerprintSet{}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(set)
}

func runHash(ctx context.Context, cfg *config.Config, dec *decoder.FFmpeg, path, class string, offset float64) (phash.Hash, error) {
	if class == "" {
		cfg.ProcImage, cfg.ProcVideo, cfg.ProcAudio = true, true, true
		class = scan.NewClassifier(cfg).Classify(path).String()
	}
	switch class {
	case "image":
		img, err := dec.DecodeImage(ctx, path)
		if err != nil {
			return 0, err
		}
		if cfg.ImageAlgorithm == config.ImageAlgorithmPerception {
			return phash.PerceptionHash(img)
		}
		return phash.ImageHash(img), nil
	case "video":
		frame, err := dec.DecodeVideoFrame(ctx, path, offset, phash.Side, phash.Side)
		if err != nil {
			return 0, err
		}
		return phash.AverageHash(frame)
	case "audio":
		pcm, err := dec.DecodePCM(ctx, path, offset, float64(phash.AudioHashCount)/phash.AudioHashRate, phash.AudioHashRate)
		if err != nil {
			return 0, err
		}
		return phash.AudioHash(pcm), nil
	default:
		return 0, fmt.Errorf("unknown class %q", class)
	}
}

func runCache(dir string, log logrus.FieldLogger, path, kind string, offset float64) error {
	cache, err := indexer.OpenBadger(dir, log)
	if err != nil {
		return err
	}
	defer cache.Close()

	if strings.EqualFold(kind, "landmarks") {
		set, ok := cache.GetLandmarks(path)
		if !ok {
			fmt.Println("not found")
			return nil
		}
		fmt.Printf("key found: %d landmarks\n", len(set))
		return nil
	}
	k, ok := phash.ParseKind(kind)
	if !ok {
		return fmt.Errorf("unknown kind %q", kind)
	}
	h, ok := cache.Get(path, offset, k)
	if !ok {
		fmt.Println("not found")
		return nil
	}
	fmt.Printf("key found: %s\n", h)
	return nil
}
