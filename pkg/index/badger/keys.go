package badger

import (
	"fmt"
	"strings"

	"github.com/poolfs/poolfs/pkg/index"
)

// Key schema.
//
// The database stores three namespaces:
//
//	r:<pathnameHash>                          -> JSON-encoded record
//	s:<context>:<area>:<item>:<pathnameHash>  -> (empty) scope index
//	h:<contentHash>:<pathnameHash>            -> (empty) content ref index
//
// The "r:" namespace is the record store; point lookups by pathname hash go
// straight there. The "s:" namespace makes scope listings a single prefix
// scan instead of a full table walk. The "h:" namespace does the same for
// per-content reference counting, which the reclamation path calls once per
// deleted blob.
//
// Pathname and content hashes are fixed-length lowercase hex and the area
// charset excludes ':', so the ':' separator is unambiguous.
const (
	prefixRecord  = "r:"
	prefixScope   = "s:"
	prefixContent = "h:"
)

func keyRecord(pathnameHash string) []byte {
	return []byte(prefixRecord + pathnameHash)
}

func keyScope(scope index.Scope, pathnameHash string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:%d:%s", prefixScope, scope.ContextID, scope.Area, scope.ItemID, pathnameHash))
}

// keySelectorPrefix builds the longest scan prefix a selector allows: the
// whole context, one area, or one (area, item) partition.
func keySelectorPrefix(sel index.Selector) []byte {
	p := fmt.Sprintf("%s%d:", prefixScope, sel.ContextID)
	if sel.Area == "" {
		return []byte(p)
	}
	p += sel.Area + ":"
	if sel.ItemID == nil {
		return []byte(p)
	}
	return []byte(fmt.Sprintf("%s%d:", p, *sel.ItemID))
}

func keyContentRef(contentHash, pathnameHash string) []byte {
	return []byte(prefixContent + contentHash + ":" + pathnameHash)
}

func keyContentPrefix(contentHash string) []byte {
	return []byte(prefixContent + contentHash + ":")
}

// pathnameHashFromScopeKey extracts the trailing pathname hash from a scope
// index key.
func pathnameHashFromScopeKey(key []byte) string {
	s := string(key)
	return s[strings.LastIndexByte(s, ':')+1:]
}

// contentHashFromRefKey extracts the content hash from a content ref key.
func contentHashFromRefKey(key []byte) string {
	s := strings.TrimPrefix(string(key), prefixContent)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return s
}
