package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolfs/poolfs/pkg/index"
	"github.com/poolfs/poolfs/pkg/index/indextest"
)

func newTestIndex(t *testing.T) *BadgerIndex {
	t.Helper()
	idx, err := New(context.Background(), Config{DBPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestBadgerIndex_Conformance(t *testing.T) {
	suite := &indextest.Suite{
		NewIndex: func(t *testing.T) index.Index {
			return newTestIndex(t)
		},
	}
	suite.Run(t)
}

func TestBadgerIndex_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	key := index.Key{ContextID: 2, Area: "docs", ItemID: 0, Path: "/", Name: "kept.txt"}
	rec := &index.Record{
		PathnameHash: key.PathnameHash(),
		ContextID:    key.ContextID,
		Area:         key.Area,
		Path:         key.Path,
		Name:         key.Name,
		ContentHash:  "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d",
		Size:         5,
	}

	idx, err := New(ctx, Config{DBPath: dir})
	require.NoError(t, err)
	require.NoError(t, idx.Insert(ctx, rec))
	require.NoError(t, idx.Close())

	reopened, err := New(ctx, Config{DBPath: dir})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, key.PathnameHash())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ContentHash, got.ContentHash)
	assert.Equal(t, rec.ID, got.ID)

	n, err := reopened.CountContentRefs(ctx, rec.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "secondary indexes survive reopen")
}

func TestBadgerIndex_ConcurrentInsertLoserGetsDuplicate(t *testing.T) {
	ctx := context.Background()
	idx, err := New(ctx, Config{InMemory: true})
	require.NoError(t, err)
	defer idx.Close()

	// Two transactions committing the same pathname hash make badger fail
	// the loser with a transaction conflict; Insert must still report it
	// as a duplicate, never as a retryable storage error.
	for round := 0; round < 200; round++ {
		key := index.Key{ContextID: 7, Area: "race", ItemID: int64(round), Path: "/", Name: "contended.txt"}
		makeRecord := func() *index.Record {
			return &index.Record{
				PathnameHash: key.PathnameHash(),
				ContextID:    key.ContextID,
				Area:         key.Area,
				ItemID:       key.ItemID,
				Path:         key.Path,
				Name:         key.Name,
				ContentHash:  "da39a3ee5e6b4b0d3255bfef95601890afd80709",
			}
		}

		errCh := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				errCh <- idx.Insert(ctx, makeRecord())
			}()
		}
		first, second := <-errCh, <-errCh

		winners, losers := 0, 0
		for _, err := range []error{first, second} {
			switch {
			case err == nil:
				winners++
			case errors.Is(err, index.ErrDuplicate):
				losers++
			default:
				t.Fatalf("round %d: loser surfaced %v instead of the duplicate error", round, err)
			}
		}
		require.Equal(t, 1, winners, "round %d: exactly one insert wins", round)
		require.Equal(t, 1, losers, "round %d: the other insert is a duplicate", round)
	}
}

func TestBadgerIndex_IDsRemainUniqueAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	makeRecord := func(name string) *index.Record {
		key := index.Key{ContextID: 1, Area: "work", ItemID: 0, Path: "/", Name: name}
		return &index.Record{
			PathnameHash: key.PathnameHash(),
			ContextID:    key.ContextID,
			Area:         key.Area,
			Path:         key.Path,
			Name:         key.Name,
			ContentHash:  "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		}
	}

	idx, err := New(ctx, Config{DBPath: dir})
	require.NoError(t, err)
	first := makeRecord("first.txt")
	require.NoError(t, idx.Insert(ctx, first))
	require.NoError(t, idx.Close())

	reopened, err := New(ctx, Config{DBPath: dir})
	require.NoError(t, err)
	defer reopened.Close()
	second := makeRecord("second.txt")
	require.NoError(t, reopened.Insert(ctx, second))

	assert.NotEqual(t, first.ID, second.ID)
}
