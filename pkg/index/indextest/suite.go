// Package indextest provides a reusable conformance suite that every Index
// implementation must pass.
package indextest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolfs/poolfs/pkg/index"
)

// Suite exercises the index.Index contract against a fresh implementation
// per subtest.
type Suite struct {
	// NewIndex returns a fresh, empty index. Cleanup is the caller's
	// responsibility (use t.Cleanup).
	NewIndex func(t *testing.T) index.Index
}

// Run executes every conformance subtest.
func (s *Suite) Run(t *testing.T) {
	t.Run("InsertAndGet", s.testInsertAndGet)
	t.Run("GetMissing", s.testGetMissing)
	t.Run("InsertDuplicate", s.testInsertDuplicate)
	t.Run("Update", s.testUpdate)
	t.Run("UpdateMissing", s.testUpdateMissing)
	t.Run("Delete", s.testDelete)
	t.Run("DeleteMissing", s.testDeleteMissing)
	t.Run("ListScope", s.testListScope)
	t.Run("ListDirectory", s.testListDirectory)
	t.Run("DeleteScope", s.testDeleteScope)
	t.Run("ContentRefs", s.testContentRefs)
}

// testRecord builds a record for a key with a given content hash.
func testRecord(key index.Key, contentHash string) *index.Record {
	now := time.Now().UTC().Truncate(time.Second)
	return &index.Record{
		PathnameHash: key.PathnameHash(),
		ContextID:    key.ContextID,
		Area:         key.Area,
		ItemID:       key.ItemID,
		Path:         key.Path,
		Name:         key.Name,
		ContentHash:  contentHash,
		Size:         int64(len(contentHash)),
		MimeType:     "text/plain",
		Author:       "tester",
		CreatedAt:    now,
		ModifiedAt:   now,
	}
}

func fileKey(path, name string) index.Key {
	return index.Key{ContextID: 7, Area: "work", ItemID: 3, Path: path, Name: name}
}

const (
	hashA = "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
	hashB = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
)

func (s *Suite) testInsertAndGet(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	key := fileKey("/", "a.txt")
	rec := testRecord(key, hashA)
	require.NoError(t, idx.Insert(ctx, rec))
	assert.NotZero(t, rec.ID, "insert should assign an id")

	got, err := idx.Get(ctx, key.PathnameHash())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, key.PathnameHash(), got.PathnameHash)
	assert.Equal(t, hashA, got.ContentHash)
	assert.Equal(t, "a.txt", got.Name)

	byKey, err := idx.GetByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, got.PathnameHash, byKey.PathnameHash)

	exists, err := idx.Exists(ctx, key.PathnameHash())
	require.NoError(t, err)
	assert.True(t, exists)
}

func (s *Suite) testGetMissing(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	got, err := idx.Get(ctx, hashA)
	require.NoError(t, err, "absent record is not an error")
	assert.Nil(t, got)

	exists, err := idx.Exists(ctx, hashA)
	require.NoError(t, err)
	assert.False(t, exists)
}

func (s *Suite) testInsertDuplicate(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	key := fileKey("/", "a.txt")
	require.NoError(t, idx.Insert(ctx, testRecord(key, hashA)))

	err := idx.Insert(ctx, testRecord(key, hashB))
	assert.ErrorIs(t, err, index.ErrDuplicate)

	// Original record is untouched.
	got, err := idx.Get(ctx, key.PathnameHash())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, hashA, got.ContentHash)
}

func (s *Suite) testUpdate(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	key := fileKey("/", "a.txt")
	rec := testRecord(key, hashA)
	require.NoError(t, idx.Insert(ctx, rec))

	updated := testRecord(key, hashB)
	updated.Author = "editor"
	require.NoError(t, idx.Update(ctx, updated))

	got, err := idx.Get(ctx, key.PathnameHash())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, hashB, got.ContentHash)
	assert.Equal(t, "editor", got.Author)
	assert.Equal(t, rec.ID, got.ID, "update preserves the id")
	assert.Equal(t, rec.CreatedAt, got.CreatedAt, "update preserves creation time")

	// Ref counting follows the new content hash.
	n, err := idx.CountContentRefs(ctx, hashA)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = idx.CountContentRefs(ctx, hashB)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func (s *Suite) testUpdateMissing(t *testing.T) {
	idx := s.NewIndex(t)
	err := idx.Update(context.Background(), testRecord(fileKey("/", "a.txt"), hashA))
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func (s *Suite) testDelete(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	key := fileKey("/", "a.txt")
	require.NoError(t, idx.Insert(ctx, testRecord(key, hashA)))
	require.NoError(t, idx.Delete(ctx, key.PathnameHash()))

	got, err := idx.Get(ctx, key.PathnameHash())
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := idx.CountContentRefs(ctx, hashA)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func (s *Suite) testDeleteMissing(t *testing.T) {
	idx := s.NewIndex(t)
	err := idx.Delete(context.Background(), hashA)
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func (s *Suite) testListScope(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/", "a.txt"), hashA)))
	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/sub/", "b.txt"), hashA)))

	// Same context and area, different item: must not appear.
	other := fileKey("/", "c.txt")
	other.ItemID = 99
	require.NoError(t, idx.Insert(ctx, testRecord(other, hashA)))

	scope := index.Scope{ContextID: 7, Area: "work", ItemID: 3}
	records, err := idx.ListScope(ctx, scope.Selector())
	require.NoError(t, err)
	require.Len(t, records, 2)

	names := []string{records[0].Name, records[1].Name}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)

	// A nil item selects the whole area.
	areaWide, err := idx.ListScope(ctx, index.Selector{ContextID: 7, Area: "work"})
	require.NoError(t, err)
	assert.Len(t, areaWide, 3)

	// An empty area selects the whole context.
	contextWide, err := idx.ListScope(ctx, index.Selector{ContextID: 7})
	require.NoError(t, err)
	assert.Len(t, contextWide, 3)

	// Similar area names must not leak into each other's listings.
	similar := index.Key{ContextID: 7, Area: "workshop", ItemID: 3, Path: "/", Name: "d.txt"}
	require.NoError(t, idx.Insert(ctx, testRecord(similar, hashB)))
	records, err = idx.ListScope(ctx, index.Selector{ContextID: 7, Area: "work"})
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func (s *Suite) testListDirectory(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()
	scope := index.Scope{ContextID: 7, Area: "work", ItemID: 3}

	// Root file, subdirectory marker, file inside it, and a deeper
	// marker two levels down.
	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/", "a.txt"), hashA)))
	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/sub/", index.DirectoryName), hashB)))
	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/sub/", "b.txt"), hashA)))
	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/sub/deep/", index.DirectoryName), hashB)))

	root, err := idx.ListDirectory(ctx, scope, "/")
	require.NoError(t, err)
	require.Len(t, root, 2, "root lists its file and the direct subdirectory only")
	var rootNames []string
	for _, r := range root {
		if r.IsDirectory() {
			rootNames = append(rootNames, r.Path)
		} else {
			rootNames = append(rootNames, r.Name)
		}
	}
	assert.ElementsMatch(t, []string{"a.txt", "/sub/"}, rootNames)

	sub, err := idx.ListDirectory(ctx, scope, "/sub/")
	require.NoError(t, err)
	require.Len(t, sub, 2)
	var subNames []string
	for _, r := range sub {
		if r.IsDirectory() {
			subNames = append(subNames, r.Path)
		} else {
			subNames = append(subNames, r.Name)
		}
	}
	assert.ElementsMatch(t, []string{"b.txt", "/sub/deep/"}, subNames)
}

func (s *Suite) testDeleteScope(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/", "a.txt"), hashA)))
	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/sub/", "b.txt"), hashB)))

	other := fileKey("/", "c.txt")
	other.ContextID = 8
	require.NoError(t, idx.Insert(ctx, testRecord(other, hashA)))

	scope := index.Scope{ContextID: 7, Area: "work", ItemID: 3}
	removed, err := idx.DeleteScope(ctx, scope.Selector())
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	left, err := idx.ListScope(ctx, scope.Selector())
	require.NoError(t, err)
	assert.Empty(t, left)

	// The other context's record survives.
	got, err := idx.GetByKey(ctx, other)
	require.NoError(t, err)
	assert.NotNil(t, got)

	// Repeating is a no-op.
	removed, err = idx.DeleteScope(ctx, scope.Selector())
	require.NoError(t, err)
	assert.Empty(t, removed)

	// Content refs of removed records are gone too.
	n, err := idx.CountContentRefs(ctx, hashB)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func (s *Suite) testContentRefs(t *testing.T) {
	idx := s.NewIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/", "a.txt"), hashA)))
	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/", "b.txt"), hashA)))
	require.NoError(t, idx.Insert(ctx, testRecord(fileKey("/", "c.txt"), hashB)))

	n, err := idx.CountContentRefs(ctx, hashA)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = idx.CountContentRefs(ctx, hashB)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hashes, err := idx.ListContentHashes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{hashA, hashB}, hashes)

	require.NoError(t, idx.Delete(ctx, fileKey("/", "a.txt").PathnameHash()))
	n, err = idx.CountContentRefs(ctx, hashA)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
