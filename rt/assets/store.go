package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type AssetID string

var (
	ErrNotFound  = errors.New("assets: not found")
	ErrInvalidID = errors.New("assets: invalid id")
)

// Store persists named asset blobs.
type Store interface {
	ReadAsset(id AssetID) ([]byte, error)
	WriteAsset(id AssetID, data []byte) error
	AllocateAssetID() AssetID
}

func makeAssetID() AssetID {
	return AssetID(uuid.NewString())
}

// MemoryStore keeps blobs in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[AssetID][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[AssetID][]byte)}
}

func (s *MemoryStore) ReadAsset(id AssetID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

func (s *MemoryStore) WriteAsset(id AssetID, data []byte) error {
	if id == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	s.blobs[id] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AllocateAssetID() AssetID { return makeAssetID() }

// DirStore keeps one file per asset under a root directory.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset directory: %w", err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) path(id AssetID) (string, error) {
	name := string(id)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, name)
	}
	return filepath.Join(s.root, name), nil
}

func (s *DirStore) ReadAsset(id AssetID) ([]byte, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, err
}

// WriteAsset replaces the blob atomically through a temp file.
func (s *DirStore) WriteAsset(id AssetID, data []byte) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write asset %s: %w", id, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write asset %s: %w", id, err)
	}
	return nil
}

func (s *DirStore) AllocateAssetID() AssetID { return makeAssetID() }
