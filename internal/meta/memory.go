package meta

import (
	"bytes"
	"context"
	"dfs/internal/common"
	"dfs/internal/types"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"
)

// Memory keeps the namespace in one map behind one RWMutex.
type Memory struct {
	sync.RWMutex
	files map[types.Path]types.FileMetadata
}

func NewMemory() *Memory {
	return &Memory{
		files: make(map[types.Path]types.FileMetadata),
	}
}

func (m *Memory) Create(ctx context.Context, md types.FileMetadata) error {
	m.Lock()
	defer m.Unlock()
	if _, ok := m.files[md.Path]; ok {
		return fmt.Errorf("%w: %v", types.ErrAlreadyExists, md.Path)
	}
	m.files[md.Path] = md.Clone()
	return nil
}

func (m *Memory) Put(ctx context.Context, md types.FileMetadata) error {
	m.Lock()
	defer m.Unlock()
	m.files[md.Path] = md.Clone()
	return nil
}

func (m *Memory) Swap(ctx context.Context, fileID string, md types.FileMetadata) error {
	m.Lock()
	defer m.Unlock()
	cur, ok := m.files[md.Path]
	if !ok {
		return fmt.Errorf("%w: %v", types.ErrNotFound, md.Path)
	}
	if cur.FileID != fileID {
		return fmt.Errorf("%w: %v changed from %v to %v", types.ErrConflict, md.Path, fileID, cur.FileID)
	}
	m.files[md.Path] = md.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, path types.Path) (types.FileMetadata, error) {
	m.RLock()
	defer m.RUnlock()
	md, ok := m.files[path]
	if !ok {
		return types.FileMetadata{}, fmt.Errorf("%w: %v", types.ErrNotFound, path)
	}
	return md.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, path types.Path) (types.FileMetadata, error) {
	m.Lock()
	defer m.Unlock()
	md, ok := m.files[path]
	if !ok {
		return types.FileMetadata{}, fmt.Errorf("%w: %v", types.ErrNotFound, path)
	}
	delete(m.files, path)
	return md, nil
}

func (m *Memory) List(ctx context.Context, prefix types.Path) ([]types.Path, error) {
	m.RLock()
	defer m.RUnlock()
	paths := []types.Path{}
	for p := range m.files {
		if common.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths, nil
}

func (m *Memory) All(ctx context.Context) ([]types.FileMetadata, error) {
	m.RLock()
	defer m.RUnlock()
	all := make([]types.FileMetadata, 0, len(m.files))
	for _, md := range m.files {
		all = append(all, md.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })
	return all, nil
}

func (m *Memory) Close() error {
	return nil
}

// SavePersiteState encodes the namespace with gob.
func (m *Memory) SavePersiteState() ([]byte, error) {
	m.RLock()
	defer m.RUnlock()
	all := make([]types.FileMetadata, 0, len(m.files))
	for _, md := range m.files {
		all = append(all, md)
	}
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(all); err != nil {
		return nil, fmt.Errorf("gob encode namespace: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadPersiteState replaces the namespace with a SavePersiteState image.
func (m *Memory) ReadPersiteState(state []byte) error {
	all := []types.FileMetadata{}
	if err := gob.NewDecoder(bytes.NewReader(state)).Decode(&all); err != nil {
		return fmt.Errorf("gob decode namespace: %w", err)
	}
	files := make(map[types.Path]types.FileMetadata, len(all))
	for _, md := range all {
		files[md.Path] = md
	}
	m.Lock()
	defer m.Unlock()
	m.files = files
	return nil
}
