package engine

import (
	"sort"
	"strings"

	"github.com/poolfs/poolfs/pkg/index"
)

// Tree is the directory hierarchy of one scope, built from a single index
// scan. Nodes live in one flat slice and refer to each other by position,
// which keeps the whole tree in a handful of allocations and makes it
// trivially serializable.
type Tree struct {
	nodes []TreeNode
}

// TreeNode is one directory in the tree.
type TreeNode struct {
	// Name is the directory's own name; "/" for the root.
	Name string

	// Path is the full virtual path, always ending in "/".
	Path string

	// Record is the directory's marker record. Nil when the scope holds
	// no marker for this directory.
	Record *index.Record

	// Parent is the position of the parent node; -1 for the root.
	Parent int

	// Subdirs maps child directory names to node positions.
	Subdirs map[string]int

	// Files holds the file records stored directly in this directory.
	Files []*index.Record
}

// BuildTree assembles the tree from a scope's records. The root node is
// always present, even for an empty scope. Files whose parent directories
// lack marker records still get their directory chain materialized.
func BuildTree(records []*index.Record) *Tree {
	t := &Tree{}
	t.nodes = append(t.nodes, TreeNode{
		Name:    "/",
		Path:    "/",
		Parent:  -1,
		Subdirs: make(map[string]int),
	})

	for _, r := range records {
		at := t.ensurePath(r.Path)
		if r.IsDirectory() {
			t.nodes[at].Record = r
		} else {
			t.nodes[at].Files = append(t.nodes[at].Files, r)
		}
	}

	for i := range t.nodes {
		index.SortRecords(t.nodes[i].Files)
	}
	return t
}

// ensurePath returns the node position for a path, creating the chain of
// missing nodes down from the root.
func (t *Tree) ensurePath(path string) int {
	at := 0
	if path == "/" {
		return at
	}
	walked := "/"
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		walked += name + "/"
		child, ok := t.nodes[at].Subdirs[name]
		if !ok {
			t.nodes = append(t.nodes, TreeNode{
				Name:    name,
				Path:    walked,
				Parent:  at,
				Subdirs: make(map[string]int),
			})
			child = len(t.nodes) - 1
			t.nodes[at].Subdirs[name] = child
		}
		at = child
	}
	return at
}

// Root returns the root node.
func (t *Tree) Root() *TreeNode { return &t.nodes[0] }

// Node returns the node at a position.
func (t *Tree) Node(i int) *TreeNode { return &t.nodes[i] }

// Len returns the number of directories in the tree, root included.
func (t *Tree) Len() int { return len(t.nodes) }

// Lookup returns the node for a path and false when the tree has no such
// directory.
func (t *Tree) Lookup(path string) (*TreeNode, bool) {
	at := 0
	if path != "/" {
		for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
			child, ok := t.nodes[at].Subdirs[name]
			if !ok {
				return nil, false
			}
			at = child
		}
	}
	return &t.nodes[at], true
}

// Walk visits every directory depth-first, children in name order. The
// walk stops at the first error, which is returned.
func (t *Tree) Walk(fn func(depth int, node *TreeNode) error) error {
	return t.walk(0, 0, fn)
}

func (t *Tree) walk(at, depth int, fn func(int, *TreeNode) error) error {
	node := &t.nodes[at]
	if err := fn(depth, node); err != nil {
		return err
	}
	names := make([]string, 0, len(node.Subdirs))
	for name := range node.Subdirs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := t.walk(node.Subdirs[name], depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// FileCount returns the total number of files across the tree.
func (t *Tree) FileCount() int {
	n := 0
	for i := range t.nodes {
		n += len(t.nodes[i].Files)
	}
	return n
}
