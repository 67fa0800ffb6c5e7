package indexer

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/mdobak/go-xerrors"
	"github.com/sirupsen/logrus"

	"github.com/naihe2010/fdupves/algorithm"
	"github.com/naihe2010/fdupves/logging"
	"github.com/naihe2010/fdupves/phash"
)

// Badger is a persistent cache stored in a badger directory. Entries carry
// the size and modification time of their file and read as a miss once the
// file changes.
type Badger struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// storedSet is the gob payload of a cached fingerprint set.
type storedSet struct {
	Path      string
	Stamp     stamp
	Landmarks algorithm.FingerprintSet
}

func OpenBadger(dir string, log logrus.FieldLogger) (*Badger, error) {
	log = logging.OrDiscard(log)
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, xerrors.New(fmt.Errorf("open cache %s: %w", dir, err))
	}
	return &Badger{db: db, log: log.WithField("cache", dir)}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) lookup(key []byte, fn func(val []byte) error) bool {
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(fn)
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			b.log.WithError(err).Warn("cache read failed")
		}
		return false
	}
	return true
}

func (b *Badger) store(key, val []byte) {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		b.log.WithError(err).Warn("cache write failed")
	}
}

func (b *Badger) Get(path string, offset float64, kind phash.Kind) (phash.Hash, bool) {
	var (
		h  phash.Hash
		ok bool
	)
	st := stampOf(path)
	found := b.lookup(makeKey(byte(kind), path, offset), func(val []byte) error {
		h, ok = decodeHash(val, st, path)
		return nil
	})
	return h, found && ok
}

// Set stores h unless it is the zero "not computed" hash.
func (b *Badger) Set(path string, offset float64, kind phash.Kind, h phash.Hash) {
	if h == 0 {
		return
	}
	b.store(makeKey(byte(kind), path, offset), encodeHash(h, stampOf(path), path))
}

func (b *Badger) GetLandmarks(path string) (algorithm.FingerprintSet, bool) {
	var s storedSet
	found := b.lookup(makeKey(landmarkKind, path, 0), func(val []byte) error {
		return gob.NewDecoder(bytes.NewReader(val)).Decode(&s)
	})
	if !found || s.Path != path || s.Stamp != stampOf(path) {
		return nil, false
	}
	return s.Landmarks, true
}

func (b *Badger) SetLandmarks(path string, set algorithm.FingerprintSet) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(storedSet{Path: path, Stamp: stampOf(path), Landmarks: set}); err != nil {
		b.log.WithError(err).Warn("encode landmarks")
		return
	}
	b.store(makeKey(landmarkKind, path, 0), buf.Bytes())
}
