package hls

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// SegmentStore holds the fetched segments of one playlist, keyed by index.
// Implementations can be directory-backed or in-memory; the Assembler only
// relies on this interface.
type SegmentStore interface {
	// Put stores data for index. Distinct indices may be written concurrently.
	Put(index int, data []byte) error

	// GetInOrder checks that every index in [0, Len()) is present and returns a
	// lazy sequence yielding the segments by ascending index. If any index is
	// missing it returns an *IncompleteStoreError instead.
	GetInOrder() (iter.Seq2[[]byte, error], error)

	// Clear removes all stored segments. The store can be filled again afterwards.
	Clear() error

	// Len is the number of segments the store expects.
	Len() int
}

// DirStore keeps each segment in its own file inside a scratch directory that
// belongs to a single playlist run.
type DirStore struct {
	dir   string
	count int

	mu    sync.Mutex
	ready bool
}

// NewDirStore returns a store for count segments under dir. The directory is
// created on the first Put.
func NewDirStore(dir string, count int) *DirStore {
	return &DirStore{dir: dir, count: count}
}

// Dir returns the scratch directory.
func (s *DirStore) Dir() string { return s.dir }

// Len implements SegmentStore.Len.
func (s *DirStore) Len() int { return s.count }

func (s *DirStore) path(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%06d.seg", index))
}

func (s *DirStore) ensureDir() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	s.ready = true
	return nil
}

// Put implements SegmentStore.Put. Each file is written atomically, so a
// crash never leaves a truncated segment under its final name.
func (s *DirStore) Put(index int, data []byte) error {
	if index < 0 || index >= s.count {
		return fmt.Errorf("segment index %d out of range [0,%d)", index, s.count)
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := renameio.WriteFile(s.path(index), data, 0o644, renameio.WithTempDir(s.dir)); err != nil {
		return fmt.Errorf("write segment %d: %w", index, err)
	}
	return nil
}

// GetInOrder implements SegmentStore.GetInOrder.
func (s *DirStore) GetInOrder() (iter.Seq2[[]byte, error], error) {
	var missing []int
	for i := 0; i < s.count; i++ {
		if _, err := os.Stat(s.path(i)); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("stat segment %d: %w", i, err)
			}
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteStoreError{Expected: s.count, Missing: missing}
	}

	return func(yield func([]byte, error) bool) {
		for i := 0; i < s.count; i++ {
			data, err := os.ReadFile(s.path(i))
			if err != nil {
				yield(nil, fmt.Errorf("read segment %d: %w", i, err))
				return
			}
			if !yield(data, nil) {
				return
			}
		}
	}, nil
}

// Clear implements SegmentStore.Clear by removing the scratch directory.
func (s *DirStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	return nil
}

// MemStore is an in-memory SegmentStore.
type MemStore struct {
	count int

	mu       sync.RWMutex
	segments map[int][]byte
}

// NewMemStore returns an empty in-memory store for count segments.
func NewMemStore(count int) *MemStore {
	return &MemStore{count: count, segments: make(map[int][]byte, count)}
}

// Len implements SegmentStore.Len.
func (s *MemStore) Len() int { return s.count }

// Put implements SegmentStore.Put. The store keeps its own copy of data.
func (s *MemStore) Put(index int, data []byte) error {
	if index < 0 || index >= s.count {
		return fmt.Errorf("segment index %d out of range [0,%d)", index, s.count)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[index] = append([]byte(nil), data...)
	return nil
}

// GetInOrder implements SegmentStore.GetInOrder.
func (s *MemStore) GetInOrder() (iter.Seq2[[]byte, error], error) {
	s.mu.RLock()
	var missing []int
	for i := 0; i < s.count; i++ {
		if _, ok := s.segments[i]; !ok {
			missing = append(missing, i)
		}
	}
	s.mu.RUnlock()
	if len(missing) > 0 {
		return nil, &IncompleteStoreError{Expected: s.count, Missing: missing}
	}

	return func(yield func([]byte, error) bool) {
		for i := 0; i < s.count; i++ {
			s.mu.RLock()
			data, ok := s.segments[i]
			s.mu.RUnlock()
			if !ok {
				yield(nil, &IncompleteStoreError{Expected: s.count, Missing: []int{i}})
				return
			}
			if !yield(data, nil) {
				return
			}
		}
	}, nil
}

// Clear implements SegmentStore.Clear.
func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = make(map[int][]byte, s.count)
	return nil
}
