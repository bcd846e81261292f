// Package pooltest provides a reusable conformance suite for pool.Pool
// implementations. It tests the interface contract, not implementation
// details, so the same suite runs against the filesystem and memory pools.
//
// Usage:
//
//	func TestFSPool(t *testing.T) {
//	    suite := &pooltest.Suite{
//	        NewPool: func(t *testing.T) pool.Pool {
//	            p, err := fs.New(context.Background(), fs.Config{Root: t.TempDir()})
//	            require.NoError(t, err)
//	            return p
//	        },
//	    }
//	    suite.Run(t)
//	}
package pooltest

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolfs/poolfs/pkg/pool"
)

// Suite is a conformance test suite for pool.Pool implementations.
type Suite struct {
	// NewPool creates a fresh, empty pool for each test.
	NewPool func(t *testing.T) pool.Pool
}

// Run executes all tests in the suite.
func (s *Suite) Run(t *testing.T) {
	t.Run("AddAndRead", s.testAddAndRead)
	t.Run("Deduplication", s.testDeduplication)
	t.Run("ReadMissing", s.testReadMissing)
	t.Run("TrashAndRecover", s.testTrashAndRecover)
	t.Run("TrashIdempotent", s.testTrashIdempotent)
	t.Run("RecoverRejectsWrongSize", s.testRecoverRejectsWrongSize)
	t.Run("RecoverMissing", s.testRecoverMissing)
	t.Run("PurgeTrash", s.testPurgeTrash)
	t.Run("EmptyBlob", s.testEmptyBlob)
}

func (s *Suite) testAddAndRead(t *testing.T) {
	ctx := context.Background()
	p := s.NewPool(t)
	defer p.Close()

	res, err := p.AddFromBytes(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.True(t, res.IsNew)
	assert.Equal(t, int64(5), res.Size)
	// sha1("hello")
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", res.ContentHash)

	rc, err := p.Read(ctx, res.ContentHash)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, []byte("hello"), data)

	size, err := p.Size(ctx, res.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}

func (s *Suite) testDeduplication(t *testing.T) {
	ctx := context.Background()
	p := s.NewPool(t)
	defer p.Close()

	first, err := p.AddFromBytes(ctx, []byte("same bytes"))
	require.NoError(t, err)
	assert.True(t, first.IsNew)

	second, err := p.AddFromBytes(ctx, []byte("same bytes"))
	require.NoError(t, err)
	assert.False(t, second.IsNew, "second add of identical bytes must be a no-op")
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, first.Size, second.Size)
}

func (s *Suite) testReadMissing(t *testing.T) {
	ctx := context.Background()
	p := s.NewPool(t)
	defer p.Close()

	missing := pool.HashBytes([]byte("never stored"))
	_, err := p.Read(ctx, missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, pool.ErrBlobMissing)

	ok, err := p.Exists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func (s *Suite) testTrashAndRecover(t *testing.T) {
	ctx := context.Background()
	p := s.NewPool(t)
	defer p.Close()

	res, err := p.AddFromBytes(ctx, []byte("precious"))
	require.NoError(t, err)

	require.NoError(t, p.MoveToTrash(ctx, res.ContentHash))

	ok, err := p.Exists(ctx, res.ContentHash)
	require.NoError(t, err)
	assert.False(t, ok, "trashed blob must leave the active pool")

	entries, err := p.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.ContentHash, entries[0].ContentHash)
	assert.Equal(t, res.Size, entries[0].Size)

	recovered, err := p.Recover(ctx, res.ContentHash, res.Size)
	require.NoError(t, err)
	assert.True(t, recovered)

	rc, err := p.Read(ctx, res.ContentHash)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, []byte("precious"), data)

	entries, err = p.ListTrash(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "recovery must consume the trash copy")
}

func (s *Suite) testTrashIdempotent(t *testing.T) {
	ctx := context.Background()
	p := s.NewPool(t)
	defer p.Close()

	res, err := p.AddFromBytes(ctx, []byte("twice deleted"))
	require.NoError(t, err)

	require.NoError(t, p.MoveToTrash(ctx, res.ContentHash))
	require.NoError(t, p.MoveToTrash(ctx, res.ContentHash), "second trash must be a no-op")

	never := pool.HashBytes([]byte("never existed"))
	require.NoError(t, p.MoveToTrash(ctx, never))
}

func (s *Suite) testRecoverRejectsWrongSize(t *testing.T) {
	ctx := context.Background()
	p := s.NewPool(t)
	defer p.Close()

	res, err := p.AddFromBytes(ctx, []byte("check me"))
	require.NoError(t, err)
	require.NoError(t, p.MoveToTrash(ctx, res.ContentHash))

	recovered, err := p.Recover(ctx, res.ContentHash, res.Size+1)
	require.NoError(t, err)
	assert.False(t, recovered, "size mismatch must not recover")

	// The trash copy must be untouched and still recoverable.
	recovered, err = p.Recover(ctx, res.ContentHash, res.Size)
	require.NoError(t, err)
	assert.True(t, recovered)
}

func (s *Suite) testRecoverMissing(t *testing.T) {
	ctx := context.Background()
	p := s.NewPool(t)
	defer p.Close()

	recovered, err := p.Recover(ctx, pool.HashBytes([]byte("ghost")), 5)
	require.NoError(t, err)
	assert.False(t, recovered)
}

func (s *Suite) testPurgeTrash(t *testing.T) {
	ctx := context.Background()
	p := s.NewPool(t)
	defer p.Close()

	res, err := p.AddFromBytes(ctx, []byte("to purge"))
	require.NoError(t, err)
	require.NoError(t, p.MoveToTrash(ctx, res.ContentHash))

	require.NoError(t, p.PurgeTrash(ctx, res.ContentHash))
	require.NoError(t, p.PurgeTrash(ctx, res.ContentHash), "purge must be idempotent")

	recovered, err := p.Recover(ctx, res.ContentHash, res.Size)
	require.NoError(t, err)
	assert.False(t, recovered, "purged blob is gone for good")
}

func (s *Suite) testEmptyBlob(t *testing.T) {
	ctx := context.Background()
	p := s.NewPool(t)
	defer p.Close()

	res, err := p.AddFromBytes(ctx, nil)
	require.NoError(t, err)
	// sha1("")
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", res.ContentHash)
	assert.Equal(t, int64(0), res.Size)

	rc, err := p.Read(ctx, res.ContentHash)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Empty(t, data)
}
