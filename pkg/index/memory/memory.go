// Package memory provides an in-memory Index used in tests and for
// ephemeral deployments.
package memory

import (
	"context"
	"sync"

	"github.com/poolfs/poolfs/pkg/index"
)

// MemoryIndex keeps all records in a map keyed by pathname hash.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]*index.Record
	nextID  uint64
}

// New creates an empty in-memory index.
func New() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]*index.Record)}
}

func (m *MemoryIndex) Get(ctx context.Context, pathnameHash string) (*index.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[pathnameHash]
	if !ok {
		return nil, nil
	}
	return cloneRecord(r), nil
}

func (m *MemoryIndex) GetByKey(ctx context.Context, key index.Key) (*index.Record, error) {
	return m.Get(ctx, key.PathnameHash())
}

func (m *MemoryIndex) Exists(ctx context.Context, pathnameHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[pathnameHash]
	return ok, nil
}

func (m *MemoryIndex) Insert(ctx context.Context, record *index.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.PathnameHash]; ok {
		return index.ErrDuplicate
	}
	m.nextID++
	record.ID = m.nextID
	m.records[record.PathnameHash] = cloneRecord(record)
	return nil
}

func (m *MemoryIndex) Update(ctx context.Context, record *index.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[record.PathnameHash]
	if !ok {
		return index.ErrNotFound
	}
	record.ID = existing.ID
	record.CreatedAt = existing.CreatedAt
	m.records[record.PathnameHash] = cloneRecord(record)
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, pathnameHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[pathnameHash]; !ok {
		return index.ErrNotFound
	}
	delete(m.records, pathnameHash)
	return nil
}

func (m *MemoryIndex) ListScope(ctx context.Context, sel index.Selector) ([]*index.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*index.Record
	for _, r := range m.records {
		if sel.Matches(r) {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

func (m *MemoryIndex) ListDirectory(ctx context.Context, scope index.Scope, dir string) ([]*index.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sel := scope.Selector()
	var out []*index.Record
	for _, r := range m.records {
		if !sel.Matches(r) {
			continue
		}
		if r.IsDirectory() {
			if index.IsDirectChild(dir, r.Path) {
				out = append(out, cloneRecord(r))
			}
			continue
		}
		if r.Path == dir {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

func (m *MemoryIndex) DeleteScope(ctx context.Context, sel index.Selector) ([]*index.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []*index.Record
	for hash, r := range m.records {
		if sel.Matches(r) {
			removed = append(removed, r)
			delete(m.records, hash)
		}
	}
	return removed, nil
}

func (m *MemoryIndex) CountContentRefs(ctx context.Context, contentHash string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, r := range m.records {
		if r.ContentHash == contentHash {
			count++
		}
	}
	return count, nil
}

func (m *MemoryIndex) ListContentHashes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var hashes []string
	for _, r := range m.records {
		if _, ok := seen[r.ContentHash]; ok {
			continue
		}
		seen[r.ContentHash] = struct{}{}
		hashes = append(hashes, r.ContentHash)
	}
	return hashes, nil
}

func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*index.Record)
	return nil
}

func cloneRecord(r *index.Record) *index.Record {
	c := *r
	return &c
}

var _ index.Index = (*MemoryIndex)(nil)
