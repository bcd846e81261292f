package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolfs/poolfs/pkg/index"
)

func treeRecord(path, name string) *index.Record {
	key := index.Key{ContextID: 1, Area: "work", ItemID: 0, Path: path, Name: name}
	return &index.Record{
		PathnameHash: key.PathnameHash(),
		ContextID:    key.ContextID,
		Area:         key.Area,
		ItemID:       key.ItemID,
		Path:         path,
		Name:         name,
	}
}

func TestBuildTree_Empty(t *testing.T) {
	tree := BuildTree(nil)
	require.Equal(t, 1, tree.Len(), "root is always present")
	root := tree.Root()
	assert.Equal(t, "/", root.Path)
	assert.Equal(t, -1, root.Parent)
	assert.Empty(t, root.Files)
	assert.Empty(t, root.Subdirs)
}

func TestBuildTree_Hierarchy(t *testing.T) {
	records := []*index.Record{
		treeRecord("/", "root.txt"),
		treeRecord("/a/", index.DirectoryName),
		treeRecord("/a/", "inner.txt"),
		treeRecord("/a/b/", index.DirectoryName),
		treeRecord("/a/b/", "deep.txt"),
		treeRecord("/c/", index.DirectoryName),
	}
	tree := BuildTree(records)

	require.Equal(t, 4, tree.Len(), "root, /a/, /a/b/, /c/")
	assert.Equal(t, 3, tree.FileCount())

	root := tree.Root()
	require.Len(t, root.Files, 1)
	assert.Equal(t, "root.txt", root.Files[0].Name)
	assert.Len(t, root.Subdirs, 2)

	a, ok := tree.Lookup("/a/")
	require.True(t, ok)
	assert.Equal(t, "a", a.Name)
	require.NotNil(t, a.Record, "marker record is attached")
	require.Len(t, a.Files, 1)
	assert.Equal(t, "inner.txt", a.Files[0].Name)

	b, ok := tree.Lookup("/a/b/")
	require.True(t, ok)
	assert.Equal(t, a, tree.Node(b.Parent), "parent link points at /a/")

	_, ok = tree.Lookup("/missing/")
	assert.False(t, ok)
}

func TestBuildTree_MaterializesMissingMarkers(t *testing.T) {
	// A file deep in the hierarchy with no marker records at all.
	tree := BuildTree([]*index.Record{treeRecord("/x/y/", "stray.txt")})

	require.Equal(t, 3, tree.Len())
	y, ok := tree.Lookup("/x/y/")
	require.True(t, ok)
	assert.Nil(t, y.Record, "materialized directory has no marker")
	require.Len(t, y.Files, 1)

	x, ok := tree.Lookup("/x/")
	require.True(t, ok)
	assert.Nil(t, x.Record)
	assert.Empty(t, x.Files)
}

func TestTree_WalkOrder(t *testing.T) {
	records := []*index.Record{
		treeRecord("/b/", index.DirectoryName),
		treeRecord("/a/", index.DirectoryName),
		treeRecord("/a/z/", index.DirectoryName),
	}
	tree := BuildTree(records)

	var visited []string
	err := tree.Walk(func(depth int, node *TreeNode) error {
		visited = append(visited, node.Path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/a/", "/a/z/", "/b/"}, visited, "depth-first in name order")
}
