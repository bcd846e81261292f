package index

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// DirectoryName is the reserved leaf name marking a record as a virtual
// directory for its Path rather than a regular file.
const DirectoryName = "."

// Key is the composite identity of a logical file:
// (context, area, item, path, name).
//
// Two logical files with different keys may reference the same content blob;
// the key identifies the logical file, never the bytes.
type Key struct {
	// ContextID is an opaque positive integer identifying the ownership
	// domain the file belongs to.
	ContextID int64

	// Area is a short lowercase namespace within the context
	// (e.g. "submission", "attachment").
	Area string

	// ItemID is an integer sub-partition within the area; may be 0 for
	// areas that need no partitioning.
	ItemID int64

	// Path is the virtual directory path, always beginning and ending
	// with "/" (root is "/").
	Path string

	// Name is the leaf component. The reserved name "." marks a
	// directory record for Path.
	Name string
}

// Validate checks every key component, wrapping ErrInvalidKey on violation.
// Validation happens before any storage is touched, so a rejected key leaves
// no partial state anywhere.
func (k Key) Validate() error {
	if k.ContextID <= 0 {
		return fmt.Errorf("context id %d must be positive: %w", k.ContextID, ErrInvalidKey)
	}
	if !validArea(k.Area) {
		return fmt.Errorf("area %q must match [a-z][a-z0-9_]*: %w", k.Area, ErrInvalidKey)
	}
	if k.ItemID < 0 {
		return fmt.Errorf("item id %d must be non-negative: %w", k.ItemID, ErrInvalidKey)
	}
	if err := validatePath(k.Path); err != nil {
		return err
	}
	if err := validateName(k.Name); err != nil {
		return err
	}
	return nil
}

// PathnameHash returns the deterministic digest of the key tuple, used as
// the record's external identifier and primary lookup key.
//
// The digest input is "/<context>/<area>/<item><path><name>"; Path carries
// its own surrounding slashes. Example for (5, "work", 1, "/", "a.txt"):
// sha1("/5/work/1/a.txt").
func (k Key) PathnameHash() string {
	var b strings.Builder
	b.WriteByte('/')
	b.WriteString(strconv.FormatInt(k.ContextID, 10))
	b.WriteByte('/')
	b.WriteString(k.Area)
	b.WriteByte('/')
	b.WriteString(strconv.FormatInt(k.ItemID, 10))
	b.WriteString(k.Path)
	b.WriteString(k.Name)
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// IsDirectory reports whether the key names a directory record.
func (k Key) IsDirectory() bool {
	return k.Name == DirectoryName
}

// Dir returns the key of the directory record for this key's Path.
func (k Key) Dir() Key {
	k.Name = DirectoryName
	return k
}

// Parent returns the key of the directory record for the parent of Path,
// and false when Path is already the root.
func (k Key) Parent() (Key, bool) {
	if k.Path == "/" {
		return Key{}, false
	}
	trimmed := strings.TrimSuffix(k.Path, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	parent := k
	parent.Path = trimmed[:idx+1]
	parent.Name = DirectoryName
	return parent, true
}

// String renders the key in its digest input form, useful in logs.
func (k Key) String() string {
	return fmt.Sprintf("/%d/%s/%d%s%s", k.ContextID, k.Area, k.ItemID, k.Path, k.Name)
}

// validArea reports whether s matches [a-z][a-z0-9_]*.
func validArea(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case i > 0 && (c >= '0' && c <= '9' || c == '_'):
		default:
			return false
		}
	}
	return true
}

// validatePath checks the virtual directory path shape: must begin and end
// with "/", contain no empty, ".", or ".." components, and no NUL bytes.
func validatePath(path string) error {
	if path == "" || path[0] != '/' || path[len(path)-1] != '/' {
		return fmt.Errorf("path %q must begin and end with '/': %w", path, ErrInvalidKey)
	}
	if path == "/" {
		return nil
	}
	for _, component := range strings.Split(strings.Trim(path, "/"), "/") {
		if component == "" {
			return fmt.Errorf("path %q contains an empty component: %w", path, ErrInvalidKey)
		}
		if component == "." || component == ".." {
			return fmt.Errorf("path %q contains a relative component: %w", path, ErrInvalidKey)
		}
		if strings.ContainsRune(component, '\x00') {
			return fmt.Errorf("path %q contains a NUL byte: %w", path, ErrInvalidKey)
		}
	}
	return nil
}

// validateName checks the leaf name. The reserved directory name "." is
// always accepted; anything else must be a clean single component.
func validateName(name string) error {
	if name == DirectoryName {
		return nil
	}
	if name == "" {
		return fmt.Errorf("name must not be empty: %w", ErrInvalidKey)
	}
	if name == ".." {
		return fmt.Errorf("name %q is reserved: %w", name, ErrInvalidKey)
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("name %q contains illegal characters: %w", name, ErrInvalidKey)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("name %q has surrounding whitespace: %w", name, ErrInvalidKey)
	}
	return nil
}

// PathDepth returns the number of components in a virtual directory path.
// The root "/" has depth 0, "/a/" depth 1, "/a/b/" depth 2.
func PathDepth(path string) int {
	if path == "/" {
		return 0
	}
	return strings.Count(path, "/") - 1
}

// IsPathWithin reports whether child is parent itself or any descendant of
// parent (both must be well-formed virtual paths).
func IsPathWithin(parent, child string) bool {
	return strings.HasPrefix(child, parent)
}

// IsDirectChild reports whether child is exactly one level below parent.
// The depth comparison matters: a bare prefix match over-selects deeper
// trees ("/sub/deep/" prefix-matches "/" but is not its direct child).
func IsDirectChild(parent, child string) bool {
	return strings.HasPrefix(child, parent) && PathDepth(child) == PathDepth(parent)+1
}
