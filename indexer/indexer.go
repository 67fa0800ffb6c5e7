// Package indexer memoizes hash results across runs. Every cache is safe
// for concurrent use and never reports an error to its caller: a failed
// lookup is a miss and a failed store is logged and dropped.
package indexer

import (
	"encoding/binary"
	"math"
	"os"
	"sync"

	xxhash "github.com/OneOfOne/xxhash"

	"github.com/naihe2010/fdupves/algorithm"
	"github.com/naihe2010/fdupves/phash"
)

// kind byte of cached fingerprint sets, outside the phash.Kind range
const landmarkKind = 0xFF

// key layout: kind(1) | xxhash64(path)(8) | offset in ms(8)
func makeKey(kind byte, path string, offset float64) []byte {
	key := make([]byte, 17)
	key[0] = kind
	binary.BigEndian.PutUint64(key[1:], xxhash.Checksum64([]byte(path)))
	binary.BigEndian.PutUint64(key[9:], uint64(int64(math.Round(offset*1000))))
	return key
}

// stamp identifies one version of a file. A file that cannot be stat'ed
// has the zero stamp.
type stamp struct {
	Size    int64
	ModTime int64
}

func stampOf(path string) stamp {
	fi, err := os.Stat(path)
	if err != nil {
		return stamp{}
	}
	return stamp{Size: fi.Size(), ModTime: fi.ModTime().UnixNano()}
}

// value layout: hash(8) | size(8) | mtime(8) | path, so a key collision or
// an edited file reads as a miss
func encodeHash(h phash.Hash, st stamp, path string) []byte {
	val := make([]byte, 24+len(path))
	binary.BigEndian.PutUint64(val, uint64(h))
	binary.BigEndian.PutUint64(val[8:], uint64(st.Size))
	binary.BigEndian.PutUint64(val[16:], uint64(st.ModTime))
	copy(val[24:], path)
	return val
}

func decodeHash(val []byte, st stamp, path string) (phash.Hash, bool) {
	if len(val) < 24 || string(val[24:]) != path {
		return 0, false
	}
	if int64(binary.BigEndian.Uint64(val[8:])) != st.Size || int64(binary.BigEndian.Uint64(val[16:])) != st.ModTime {
		return 0, false
	}
	return phash.Hash(binary.BigEndian.Uint64(val)), true
}

type memoryKey struct {
	path   string
	offset float64
	kind   phash.Kind
}

// Memory is an in-process cache.
type Memory struct {
	mu        sync.RWMutex
	hashes    map[memoryKey]phash.Hash
	landmarks map[string]algorithm.FingerprintSet
}

func NewMemory() *Memory {
	return &Memory{
		hashes:    make(map[memoryKey]phash.Hash),
		landmarks: make(map[string]algorithm.FingerprintSet),
	}
}

func (m *Memory) Get(path string, offset float64, kind phash.Kind) (phash.Hash, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hashes[memoryKey{path, offset, kind}]
	return h, ok
}

func (m *Memory) Set(path string, offset float64, kind phash.Kind, h phash.Hash) {
	if h == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[memoryKey{path, offset, kind}] = h
}

func (m *Memory) GetLandmarks(path string) (algorithm.FingerprintSet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.landmarks[path]
	return set, ok
}

func (m *Memory) SetLandmarks(path string, set algorithm.FingerprintSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.landmarks[path] = set
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hashes) + len(m.landmarks)
}
