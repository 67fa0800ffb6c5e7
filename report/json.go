package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/mdobak/go-xerrors"

	"github.com/naihe2010/fdupves/matcher"
)

// JSON collects records in memory and writes them as one array on Close.
type JSON struct {
	path string

	mu      sync.Mutex
	records []Record
}

func NewJSON(path string) *JSON {
	return &JSON{path: path, records: []Record{}}
}

func (j *JSON) Write(_ context.Context, r matcher.Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, NewRecord(r))
	return nil
}

func (j *JSON) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	b, err := json.MarshalIndent(j.records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(j.path, b, 0644); err != nil {
		return xerrors.New(fmt.Errorf("write report %s: %w", j.path, err))
	}
	return nil
}
