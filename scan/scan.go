// Package scan walks directories and sorts media files by class.
package scan

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mdobak/go-xerrors"
	"github.com/sirupsen/logrus"

	"github.com/naihe2010/fdupves/config"
	"github.com/naihe2010/fdupves/logging"
)

type Class int

const (
	Other Class = iota
	Image
	Video
	Audio
)

func (c Class) String() string {
	switch c {
	case Image:
		return "image"
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "other"
	}
}

// Files holds absolute paths per class, sorted and without duplicates.
type Files struct {
	Images []string
	Videos []string
	Audios []string
}

func (f Files) Len() int { return len(f.Images) + len(f.Videos) + len(f.Audios) }

type Classifier struct {
	exts map[string]Class
}

// NewClassifier maps the configured extensions of every enabled class.
func NewClassifier(cfg *config.Config) *Classifier {
	c := &Classifier{exts: make(map[string]Class)}
	add := func(enabled bool, exts []string, class Class) {
		if !enabled {
			return
		}
		for _, e := range exts {
			e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
			if e != "" {
				c.exts[e] = class
			}
		}
	}
	add(cfg.ProcImage, cfg.ImageExt, Image)
	add(cfg.ProcVideo, cfg.VideoExt, Video)
	add(cfg.ProcAudio, cfg.AudioExt, Audio)
	return c
}

func (c *Classifier) Classify(path string) Class {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return c.exts[ext]
}

// Collect walks every root. Unreadable entries are logged and skipped; a
// root that cannot be walked at all is an error.
func Collect(roots []string, c *Classifier, log logrus.FieldLogger) (Files, error) {
	log = logging.OrDiscard(log)
	seen := make(map[string]bool)
	var files Files
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return Files{}, xerrors.New(err)
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == abs {
					return err
				}
				log.WithError(err).WithField("path", path).Warn("skipping unreadable entry")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || seen[path] {
				return nil
			}
			seen[path] = true
			switch c.Classify(path) {
			case Image:
				files.Images = append(files.Images, path)
			case Video:
				files.Videos = append(files.Videos, path)
			case Audio:
				files.Audios = append(files.Audios, path)
			}
			return nil
		})
		if err != nil {
			return Files{}, xerrors.New(err)
		}
	}
	slices.Sort(files.Images)
	slices.Sort(files.Videos)
	slices.Sort(files.Audios)
	return files, nil
}
