// Package index records which image files a render produced, per scan
// region, so a stack can be listed after the fact.
package index

import (
	"cmp"
	"slices"
	"sync"
)

// ImageRecord is one written image tile.
type ImageRecord struct {
	RegionID int
	// Channel names the modality that produced the image.
	Channel  string
	Path     string
	Slice    int
	TileX    int
	TileY    int
	Timestep int
}

type Store interface {
	Add(rec ImageRecord) error
	// Stack returns the region's images ordered by channel, timestep,
	// slice, then tile row and column.
	Stack(regionID int) ([]ImageRecord, error)
	// Reset forgets every image of the region.
	Reset(regionID int) error
	Close() error
}

// Paths extracts the file paths of recs.
func Paths(recs []ImageRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Path
	}
	return out
}

func compareRecords(a, b ImageRecord) int {
	return cmp.Or(
		cmp.Compare(a.Channel, b.Channel),
		cmp.Compare(a.Timestep, b.Timestep),
		cmp.Compare(a.Slice, b.Slice),
		cmp.Compare(a.TileY, b.TileY),
		cmp.Compare(a.TileX, b.TileX),
		cmp.Compare(a.Path, b.Path),
	)
}

type MemoryStore struct {
	mu      sync.Mutex
	regions map[int]map[string]ImageRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{regions: make(map[int]map[string]ImageRecord)}
}

// Add records rec. A second record with the same path replaces the first.
func (s *MemoryStore) Add(rec ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[rec.RegionID]
	if !ok {
		r = make(map[string]ImageRecord)
		s.regions[rec.RegionID] = r
	}
	r[rec.Path] = rec
	return nil
}

func (s *MemoryStore) Stack(regionID int) ([]ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ImageRecord, 0, len(s.regions[regionID]))
	for _, rec := range s.regions[regionID] {
		out = append(out, rec)
	}
	slices.SortFunc(out, compareRecords)
	return out, nil
}

func (s *MemoryStore) Reset(regionID int) error {
	s.mu.Lock()
	delete(s.regions, regionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
