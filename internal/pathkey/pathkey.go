// Package pathkey implements the hierarchical channel naming scheme used
// by the message bus: slash-separated paths with parent/subtree queries.
//
// Grounded on original_source/simba-com/src/pub_sub/broker.rs, which keys
// its broker on a KeyType plus a side tree (tree_ds::Tree) recording
// parent/child relationships between channel keys so that subtree
// subscriptions can enumerate leaves. Go has no equivalent off-the-shelf
// tree crate in the retrieval pack, so the tree is a small hand-rolled
// adjacency structure — the same shape the teacher uses for its map-based
// indices (e.g. internal/networking/chunks.go's chunk-to-entity maps).
package pathkey

import "strings"

// Key is an ordered sequence of path segments. The zero value is the root.
type Key struct {
	segments []string
}

// New constructs a Key from explicit segments.
func New(segments ...string) Key {
	if len(segments) == 0 {
		return Key{}
	}
	clone := append([]string(nil), segments...)
	return Key{segments: clone}
}

// Parse splits a "/"-separated path into a Key, ignoring empty segments so
// both "/a/b" and "a/b/" parse the same way.
func Parse(path string) Key {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		segments = append(segments, p)
	}
	return Key{segments: segments}
}

// String renders the key as a "/"-prefixed path.
func (k Key) String() string {
	if len(k.segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(k.segments, "/")
}

// Segments returns a defensive copy of the key's path segments.
func (k Key) Segments() []string {
	return append([]string(nil), k.segments...)
}

// Depth returns the number of segments (0 for the root).
func (k Key) Depth() int { return len(k.segments) }

// Equal reports whether two keys have identical segments.
func (k Key) Equal(other Key) bool {
	if len(k.segments) != len(other.segments) {
		return false
	}
	for i := range k.segments {
		if k.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether k is an ancestor of (or equal to) other.
func (k Key) IsPrefixOf(other Key) bool {
	if len(k.segments) > len(other.segments) {
		return false
	}
	for i := range k.segments {
		if k.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// Child returns a new key with segment appended.
func (k Key) Child(segment string) Key {
	return Key{segments: append(append([]string(nil), k.segments...), segment)}
}

// Parent returns the parent key and true, or the zero value and false if k
// is already the root.
func (k Key) Parent() (Key, bool) {
	if len(k.segments) == 0 {
		return Key{}, false
	}
	return Key{segments: append([]string(nil), k.segments[:len(k.segments)-1]...)}, true
}
