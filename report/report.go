// Package report persists the pairs found by a run.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/naihe2010/fdupves/matcher"
)

// Record is one stored match.
type Record struct {
	A     string    `json:"a" bson:"a"`
	B     string    `json:"b" bson:"b"`
	Kind  string    `json:"kind" bson:"kind"`
	Found time.Time `json:"found" bson:"found"`
}

func NewRecord(r matcher.Result) Record {
	return Record{A: r.A, B: r.B, Kind: r.Kind.String(), Found: time.Now().UTC()}
}

type Sink interface {
	Write(ctx context.Context, r matcher.Result) error
	Close() error
}

// Open picks a sink from a target of the form json:FILE, sqlite:FILE or a
// mongodb:// URI.
func Open(ctx context.Context, target string) (Sink, error) {
	switch {
	case strings.HasPrefix(target, "json:"):
		return NewJSON(strings.TrimPrefix(target, "json:")), nil
	case strings.HasPrefix(target, "sqlite:"):
		return NewSQLite(strings.TrimPrefix(target, "sqlite:"))
	case strings.HasPrefix(target, "mongodb://"), strings.HasPrefix(target, "mongodb+srv://"):
		return NewMongo(ctx, target)
	default:
		return nil, fmt.Errorf("report: unknown target %q", target)
	}
}
