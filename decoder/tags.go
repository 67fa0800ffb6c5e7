package decoder

import (
	"os"

	"github.com/dhowden/tag"
)

type Tags struct {
	Title  string
	Artist string
	Album  string
}

// ReadTags reads embedded ID3/MP4/FLAC/OGG metadata.
func ReadTags(path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, err
	}
	defer f.Close()
	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, err
	}
	return Tags{Title: m.Title(), Artist: m.Artist(), Album: m.Album()}, nil
}

func (t Tags) String() string {
	switch {
	case t.Title == "" && t.Artist == "":
		return ""
	case t.Artist == "":
		return t.Title
	case t.Title == "":
		return t.Artist
	default:
		return t.Artist + " - " + t.Title
	}
}
