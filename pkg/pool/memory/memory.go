// Package memory implements pool.Pool entirely in memory.
//
// The memory pool is ephemeral: all blobs are lost when the process exits.
// It exists for tests and for embedding scenarios that need a throwaway
// pool without touching the filesystem.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/poolfs/poolfs/pkg/pool"
)

// MemoryPool implements pool.Pool with two in-memory maps (active, trash).
//
// Thread Safety: all operations hold an RWMutex.
type MemoryPool struct {
	mu sync.RWMutex

	active map[string][]byte
	trash  map[string]trashedBlob
}

type trashedBlob struct {
	data      []byte
	trashedAt time.Time
}

// New creates an empty memory pool.
func New() *MemoryPool {
	return &MemoryPool{
		active: make(map[string][]byte),
		trash:  make(map[string]trashedBlob),
	}
}

func (p *MemoryPool) AddFromBytes(ctx context.Context, data []byte) (pool.AddResult, error) {
	if err := ctx.Err(); err != nil {
		return pool.AddResult{}, err
	}

	contentHash := pool.HashBytes(data)
	size := int64(len(data))

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.active[contentHash]; ok {
		if int64(len(existing)) != size {
			return pool.AddResult{}, fmt.Errorf(
				"blob %s: existing size %d, expected %d: %w",
				contentHash, len(existing), size, pool.ErrSizeMismatch)
		}
		return pool.AddResult{ContentHash: contentHash, Size: size, IsNew: false}, nil
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	p.active[contentHash] = stored

	return pool.AddResult{ContentHash: contentHash, Size: size, IsNew: true}, nil
}

func (p *MemoryPool) AddFromPath(ctx context.Context, localPath string, knownHash string) (pool.AddResult, error) {
	if err := ctx.Err(); err != nil {
		return pool.AddResult{}, err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return pool.AddResult{}, fmt.Errorf("failed to read source file: %w", err)
	}
	if knownHash != "" && !pool.ValidHash(knownHash) {
		return pool.AddResult{}, fmt.Errorf("hash %q: %w", knownHash, pool.ErrInvalidHash)
	}
	// Buffering whole files is acceptable here; this pool is for tests.
	res, err := p.AddFromBytes(ctx, data)
	if err != nil {
		return pool.AddResult{}, err
	}
	if knownHash != "" && knownHash != res.ContentHash {
		return pool.AddResult{}, fmt.Errorf(
			"blob %s: content hashes to %s: %w", knownHash, res.ContentHash, pool.ErrSizeMismatch)
	}
	return res, nil
}

func (p *MemoryPool) Read(ctx context.Context, contentHash string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	data, ok := p.active[contentHash]
	p.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("blob %s: %w", contentHash, pool.ErrBlobMissing)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *MemoryPool) Exists(ctx context.Context, contentHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.active[contentHash]
	return ok, nil
}

func (p *MemoryPool) Size(ctx context.Context, contentHash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	data, ok := p.active[contentHash]
	if !ok {
		return 0, fmt.Errorf("blob %s: %w", contentHash, pool.ErrBlobMissing)
	}
	return int64(len(data)), nil
}

func (p *MemoryPool) MoveToTrash(ctx context.Context, contentHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data, ok := p.active[contentHash]
	if !ok {
		// Idempotent: already trashed or never present.
		return nil
	}
	if _, dup := p.trash[contentHash]; !dup {
		p.trash[contentHash] = trashedBlob{data: data, trashedAt: time.Now()}
	}
	delete(p.active, contentHash)
	return nil
}

func (p *MemoryPool) Recover(ctx context.Context, contentHash string, expectedSize int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.active[contentHash]; ok {
		delete(p.trash, contentHash)
		return true, nil
	}

	blob, ok := p.trash[contentHash]
	if !ok {
		return false, nil
	}
	if int64(len(blob.data)) != expectedSize || pool.HashBytes(blob.data) != contentHash {
		return false, nil
	}

	p.active[contentHash] = blob.data
	delete(p.trash, contentHash)
	return true, nil
}

func (p *MemoryPool) ListTrash(ctx context.Context) ([]pool.TrashEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]pool.TrashEntry, 0, len(p.trash))
	for hash, blob := range p.trash {
		entries = append(entries, pool.TrashEntry{
			ContentHash: hash,
			Size:        int64(len(blob.data)),
			TrashedAt:   blob.trashedAt,
		})
	}
	return entries, nil
}

func (p *MemoryPool) PurgeTrash(ctx context.Context, contentHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.trash, contentHash)
	return nil
}

// ListActive implements pool.Enumerable.
func (p *MemoryPool) ListActive(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	hashes := make([]string, 0, len(p.active))
	for hash := range p.active {
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

func (p *MemoryPool) Close() error {
	return nil
}

// SetTrashedAt backdates a trash entry. Test helper for retention sweeps.
func (p *MemoryPool) SetTrashedAt(contentHash string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if blob, ok := p.trash[contentHash]; ok {
		blob.trashedAt = at
		p.trash[contentHash] = blob
	}
}

var (
	_ pool.Pool       = (*MemoryPool)(nil)
	_ pool.Enumerable = (*MemoryPool)(nil)
)
