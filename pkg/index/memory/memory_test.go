package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolfs/poolfs/pkg/index"
	"github.com/poolfs/poolfs/pkg/index/indextest"
)

func TestMemoryIndex_Conformance(t *testing.T) {
	suite := &indextest.Suite{
		NewIndex: func(t *testing.T) index.Index {
			idx := New()
			t.Cleanup(func() { idx.Close() })
			return idx
		},
	}
	suite.Run(t)
}

func TestMemoryIndex_ReturnsCopies(t *testing.T) {
	idx := New()
	defer idx.Close()
	ctx := context.Background()

	key := index.Key{ContextID: 1, Area: "work", ItemID: 0, Path: "/", Name: "a.txt"}
	rec := &index.Record{
		PathnameHash: key.PathnameHash(),
		ContextID:    key.ContextID,
		Area:         key.Area,
		Path:         key.Path,
		Name:         key.Name,
		ContentHash:  "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		CreatedAt:    time.Now(),
		ModifiedAt:   time.Now(),
	}
	require.NoError(t, idx.Insert(ctx, rec))

	got, err := idx.Get(ctx, key.PathnameHash())
	require.NoError(t, err)
	got.Author = "mutated"

	again, err := idx.Get(ctx, key.PathnameHash())
	require.NoError(t, err)
	assert.Empty(t, again.Author, "mutating a returned record must not affect the store")
}
