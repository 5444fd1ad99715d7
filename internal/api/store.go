package api

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/abipack/pkg/abi"
)

type binaryRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Data      []byte
	Packager  *abi.Packager
}

// BinaryStore holds uploaded pipeline binaries in memory. Each record owns
// its buffer; the packager reads from it.
type BinaryStore struct {
	mu       sync.Mutex
	binaries map[string]*binaryRecord
}

func NewBinaryStore() *BinaryStore {
	return &BinaryStore{
		binaries: make(map[string]*binaryRecord),
	}
}

// Create parses data and stores it under a new id.
func (s *BinaryStore) Create(name string, data []byte, now time.Time) (*binaryRecord, error) {
	buf := slices.Clone(data)
	p, err := abi.Load(buf)
	if err != nil {
		return nil, err
	}
	rec := &binaryRecord{
		ID:        newBinaryID(),
		Name:      name,
		CreatedAt: now,
		Data:      buf,
		Packager:  p,
	}
	s.mu.Lock()
	s.binaries[rec.ID] = rec
	s.mu.Unlock()
	return rec, nil
}

func (s *BinaryStore) Get(id string) (*binaryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.binaries[id]
	return rec, ok
}

func (s *BinaryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.binaries[id]; !ok {
		return false
	}
	delete(s.binaries, id)
	return true
}

// List returns records oldest first.
func (s *BinaryStore) List() []*binaryRecord {
	s.mu.Lock()
	out := make([]*binaryRecord, 0, len(s.binaries))
	for _, rec := range s.binaries {
		out = append(out, rec)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b *binaryRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func newBinaryID() string {
	return "bin_" + uuid.NewString()
}
