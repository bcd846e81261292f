package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolfs/poolfs/pkg/pool"
	"github.com/poolfs/poolfs/pkg/pool/pooltest"
)

func TestMemoryPool_Conformance(t *testing.T) {
	suite := &pooltest.Suite{
		NewPool: func(t *testing.T) pool.Pool {
			return New()
		},
	}
	suite.Run(t)
}

func TestMemoryPool_SetTrashedAt(t *testing.T) {
	ctx := context.Background()
	p := New()

	res, err := p.AddFromBytes(ctx, []byte("old trash"))
	require.NoError(t, err)
	require.NoError(t, p.MoveToTrash(ctx, res.ContentHash))

	past := time.Now().Add(-48 * time.Hour)
	p.SetTrashedAt(res.ContentHash, past)

	entries, err := p.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].TrashedAt.Equal(past))
}

func TestMemoryPool_CallerCannotMutateStoredBytes(t *testing.T) {
	ctx := context.Background()
	p := New()

	data := []byte("immutable")
	res, err := p.AddFromBytes(ctx, data)
	require.NoError(t, err)

	data[0] = 'X'

	rc, err := p.Read(ctx, res.ContentHash)
	require.NoError(t, err)
	defer rc.Close()

	buf := make([]byte, 1)
	_, err = rc.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, byte('i'), buf[0], "pool must store a defensive copy")
}
