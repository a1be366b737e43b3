// Package fp implements the 128-bit combinable content fingerprint used to
// tag values, paths, expressions and cache keys throughout the evaluator.
//
// A Tag is computed by repeated calls to Extend, each of which folds in one
// more chunk of bytes (or another Tag) using SHA-256 truncated to 128 bits,
// similarly to how muscle's storage layer derives content keys
// from block contents. Two extension orders are supported: the normal,
// order-preserving one (used for sequences, e.g. the arcs of a DepPath) and
// the "unpermuted" one (used when the caller wants the combination of a set
// of tags to be independent of the order they were combined in, e.g. a
// DPaths set).
package fp

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Size is the length, in bytes, of a Tag.
const Size = 16

// Tag is a 128-bit fingerprint. The zero Tag is the fingerprint of the empty
// sequence of extensions and is a valid, stable value (it is not treated as
// a sentinel).
type Tag [Size]byte

// Zero is the fingerprint of nothing having been extended into it.
var Zero Tag

// New starts a new fingerprint from a named salt, e.g. "FUNC_VERSION_STRING"
// or "TOOL_VERSION_STRING", per the primary-key derivation table.
func New(salt string) Tag {
	return Zero.Extend([]byte(salt))
}

// Extend folds b into the tag in an order-preserving way: extending t with a
// then b is not the same as extending with b then a (unless by coincidence).
// This is the form used for DepPath arc sequences, closure expressions, and
// primary-key derivation, where the order of the inputs is part of the
// identity of the result.
func (t Tag) Extend(b []byte) Tag {
	h := sha256.New()
	h.Write(t[:])
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(b)))
	h.Write(length[:])
	h.Write(b)
	var out Tag
	copy(out[:], h.Sum(nil))
	return out
}

// ExtendTag is a convenience wrapper around Extend for folding in another
// Tag's bytes, e.g. combining an element's fingerprint into a container's.
func (t Tag) ExtendTag(other Tag) Tag {
	return t.Extend(other[:])
}

// CombineRaw combines two tags by extending a with b (a.ExtendTag(b)). The
// result depends on argument order and on grouping: CombineRaw(CombineRaw(a,
// b), c) and CombineRaw(a, CombineRaw(b, c)) differ, so it is not
// associative.
func CombineRaw(a, b Tag) Tag {
	return a.ExtendTag(b)
}

// Unpermuted produces a combination of tags that does not depend on the
// order in which Extend calls occur: it sorts the unpermuted raw forms of
// the arguments before folding them together. Used by DPaths, whose
// fingerprint must not depend on set iteration order, and by
// commutative primitives (e.g. "++" under certain semantics is not
// commutative, but set-like dependency accumulation is).
func Unpermuted(tags []Tag) Tag {
	if len(tags) == 0 {
		return Zero
	}
	sorted := make([]Tag, len(tags))
	copy(sorted, tags)
	// Simple insertion sort: fingerprint sets are small (number of free
	// variables or dependency paths of one value), so O(n^2) is fine and
	// avoids importing sort for a byte-array comparison closure.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && less(sorted[j], sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	out := Zero
	for _, tg := range sorted {
		out = out.ExtendTag(tg)
	}
	return out
}

func less(a, b Tag) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// String renders the tag as lowercase hex, as seen on the wire and in log
// messages (e.g. "pk=deadbeef...").
func (t Tag) String() string {
	return hex.EncodeToString(t[:])
}

// Bytes returns the fixed-width, network-byte-order wire form of the tag.
func (t Tag) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, t[:])
	return b
}

// FromBytes parses a Tag from its wire form. It is an error if b is not
// exactly Size bytes long.
func FromBytes(b []byte) (Tag, error) {
	var t Tag
	if len(b) != Size {
		return t, fmt.Errorf("fp.FromBytes: want %d bytes, got %d", Size, len(b))
	}
	copy(t[:], b)
	return t, nil
}

// IsZero reports whether the tag is the zero tag.
func (t Tag) IsZero() bool {
	return t == Zero
}
