package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_Validate(t *testing.T) {
	valid := Key{ContextID: 5, Area: "work", ItemID: 1, Path: "/", Name: "a.txt"}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Key)
	}{
		{"zero context", func(k *Key) { k.ContextID = 0 }},
		{"negative context", func(k *Key) { k.ContextID = -1 }},
		{"empty area", func(k *Key) { k.Area = "" }},
		{"uppercase area", func(k *Key) { k.Area = "Work" }},
		{"area leading digit", func(k *Key) { k.Area = "1work" }},
		{"area with dash", func(k *Key) { k.Area = "my-area" }},
		{"negative item", func(k *Key) { k.ItemID = -1 }},
		{"empty path", func(k *Key) { k.Path = "" }},
		{"path missing leading slash", func(k *Key) { k.Path = "sub/" }},
		{"path missing trailing slash", func(k *Key) { k.Path = "/sub" }},
		{"path with empty component", func(k *Key) { k.Path = "/sub//deep/" }},
		{"path with dot component", func(k *Key) { k.Path = "/sub/./deep/" }},
		{"path with dotdot component", func(k *Key) { k.Path = "/../" }},
		{"empty name", func(k *Key) { k.Name = "" }},
		{"dotdot name", func(k *Key) { k.Name = ".." }},
		{"name with slash", func(k *Key) { k.Name = "a/b" }},
		{"name with surrounding space", func(k *Key) { k.Name = " a.txt" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k := valid
			tc.mutate(&k)
			assert.ErrorIs(t, k.Validate(), ErrInvalidKey)
		})
	}

	// The reserved directory name is always valid.
	dir := valid
	dir.Name = DirectoryName
	assert.NoError(t, dir.Validate())

	// Area with digits and underscore after the first letter is fine.
	keyed := valid
	keyed.Area = "work_v2"
	assert.NoError(t, keyed.Validate())

	// Item zero is a legal unpartitioned area.
	unpartitioned := valid
	unpartitioned.ItemID = 0
	assert.NoError(t, unpartitioned.Validate())
}

func TestKey_PathnameHash(t *testing.T) {
	k := Key{ContextID: 5, Area: "work", ItemID: 1, Path: "/", Name: "a.txt"}

	got := k.PathnameHash()
	// sha1("/5/work/1/a.txt")
	assert.Equal(t, "831c0e54d056b93b1c349fb992eee6ff670733f8", got)

	// Any component change yields a new hash.
	variants := []Key{
		{ContextID: 6, Area: "work", ItemID: 1, Path: "/", Name: "a.txt"},
		{ContextID: 5, Area: "other", ItemID: 1, Path: "/", Name: "a.txt"},
		{ContextID: 5, Area: "work", ItemID: 2, Path: "/", Name: "a.txt"},
		{ContextID: 5, Area: "work", ItemID: 1, Path: "/sub/", Name: "a.txt"},
		{ContextID: 5, Area: "work", ItemID: 1, Path: "/", Name: "b.txt"},
	}
	for _, v := range variants {
		assert.NotEqual(t, got, v.PathnameHash(), "key %s must hash differently", v)
	}
}

func TestKey_ParentAndDir(t *testing.T) {
	k := Key{ContextID: 5, Area: "work", ItemID: 1, Path: "/a/b/", Name: "f.txt"}

	dir := k.Dir()
	assert.Equal(t, "/a/b/", dir.Path)
	assert.Equal(t, DirectoryName, dir.Name)
	assert.True(t, dir.IsDirectory())

	parent, ok := k.Parent()
	require.True(t, ok)
	assert.Equal(t, "/a/", parent.Path)
	assert.Equal(t, DirectoryName, parent.Name)

	grand, ok := parent.Parent()
	require.True(t, ok)
	assert.Equal(t, "/", grand.Path)

	_, ok = grand.Parent()
	assert.False(t, ok, "root has no parent")
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, 0, PathDepth("/"))
	assert.Equal(t, 1, PathDepth("/a/"))
	assert.Equal(t, 2, PathDepth("/a/b/"))

	assert.True(t, IsDirectChild("/", "/a/"))
	assert.False(t, IsDirectChild("/", "/a/b/"))
	assert.True(t, IsDirectChild("/a/", "/a/b/"))
	assert.False(t, IsDirectChild("/a/", "/a/"))
	assert.False(t, IsDirectChild("/a/", "/ab/"))

	assert.True(t, IsPathWithin("/a/", "/a/"))
	assert.True(t, IsPathWithin("/a/", "/a/b/c/"))
	assert.False(t, IsPathWithin("/a/", "/b/"))
}

func TestSortRecords(t *testing.T) {
	file := func(name string, order int) *Record {
		return &Record{Path: "/", Name: name, SortOrder: order}
	}
	dir := func(path string) *Record {
		return &Record{Path: path, Name: DirectoryName}
	}

	records := []*Record{
		file("zeta.txt", 0),
		file("Alpha.txt", 0),
		dir("/docs/"),
		file("first.txt", -1),
		dir("/assets/"),
	}
	SortRecords(records)

	require.Len(t, records, 5)
	assert.Equal(t, "/assets/", records[0].Path)
	assert.Equal(t, "/docs/", records[1].Path)
	assert.Equal(t, "first.txt", records[2].Name)
	assert.Equal(t, "Alpha.txt", records[3].Name, "name comparison ignores case")
	assert.Equal(t, "zeta.txt", records[4].Name)
}
