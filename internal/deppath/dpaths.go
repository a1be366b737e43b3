package deppath

import "github.com/nicolagi/vesta/internal/fp"

// Observed is anything a DPaths entry can remember about the subvalue found
// at a Path. The deppath package is intentionally decoupled from the value
// package (which depends on deppath for Path/DPaths), so this is an opaque
// interface; the value package's Value type implements it trivially by
// being itself (see value.Value's use as Observed).
type Observed interface{}

// entry is one member of a DPaths set: the path observed, plus whatever the
// caller wants retained about the subvalue seen there (used for
// verification and for re-pickling the deps, per spec.md §3).
type entry struct {
	path     Path
	observed Observed
}

// DPaths is a set of Path, deduplicated by (fingerprint, kind) per spec.md
// §8 invariant 3. The zero value is an empty, usable set.
type DPaths struct {
	// Keyed by (Kind, Fingerprint) via a composite key built from both, so
	// that two paths with the same arc sequence but different Kind (e.g. a
	// Norm and a Bang dependency on the same binding key) are distinct
	// members.
	m map[dpKey]entry
}

type dpKey struct {
	kind Kind
	tag  fp.Tag
}

func key(p Path) dpKey {
	return dpKey{kind: p.Kind, tag: p.Fingerprint()}
}

// Empty reports whether the set has no members.
func (d DPaths) Empty() bool {
	return len(d.m) == 0
}

// Len returns the number of members.
func (d DPaths) Len() int {
	return len(d.m)
}

// Put adds (or replaces) a path observation. Returns a new DPaths value; d
// itself is not mutated, so that DPaths can be shared across Values the way
// the spec requires ("values are mostly immutable after construction").
func (d DPaths) Put(p Path, observed Observed) DPaths {
	out := d.clone()
	out.m[key(p)] = entry{path: p, observed: observed}
	return out
}

// Contains reports whether the exact (fingerprint, kind) pair is a member.
func (d DPaths) Contains(p Path) bool {
	_, ok := d.m[key(p)]
	return ok
}

// ContainsPrefix reports whether any member's first arc equals arc. Used by
// the directory coarse-selector logic (spec.md §4.6) and by the secondary-
// key builder when checking whether a dependency is already subsumed by an
// enclosing one.
func (d DPaths) ContainsPrefix(arc Arc) bool {
	for _, e := range d.m {
		if first, ok := e.path.FirstArc(); ok && first == arc {
			return true
		}
	}
	return false
}

// Restrict returns the subset of members whose first arc equals arc, with
// that first arc stripped from each resulting path -- the view of the
// dependency set "as seen from one step inside" a composite value. This is
// what a local-name rescoping operation consumes.
func (d DPaths) Restrict(arc Arc) DPaths {
	out := DPaths{m: make(map[dpKey]entry)}
	for _, e := range d.m {
		if first, ok := e.path.FirstArc(); ok && first == arc {
			stripped := e.path.WithoutFirstArc()
			out.m[key(stripped)] = entry{path: stripped, observed: e.observed}
		}
	}
	return out
}

// Union returns the set union of d and other. On key collision, other wins
// (its observed value is assumed more current -- this mirrors Value.merge's
// fold-in semantics where the merged-in value is authoritative).
func (d DPaths) Union(other DPaths) DPaths {
	out := d.clone()
	for k, e := range other.m {
		out.m[k] = e
	}
	return out
}

// Difference returns the members of d whose (fingerprint, kind) key is not
// present in other. Used to compute "excluded paths" (function args folded
// into the primary key) when building the secondary key (spec.md §4.3).
func (d DPaths) Difference(other DPaths) DPaths {
	out := DPaths{m: make(map[dpKey]entry)}
	for k, e := range d.m {
		if _, found := other.m[k]; !found {
			out.m[k] = e
		}
	}
	return out
}

// Intersection returns the members present in both sets (by key); the
// observed value retained is d's.
func (d DPaths) Intersection(other DPaths) DPaths {
	out := DPaths{m: make(map[dpKey]entry)}
	for k, e := range d.m {
		if _, found := other.m[k]; found {
			out.m[k] = e
		}
	}
	return out
}

func (d DPaths) clone() DPaths {
	m := make(map[dpKey]entry, len(d.m)+1)
	for k, e := range d.m {
		m[k] = e
	}
	return DPaths{m: m}
}

// Entry is one exported member of a DPaths set, for callers that need to
// iterate (e.g. the pickler, the secondary-key builder).
type Entry struct {
	Path     Path
	Observed Observed
}

// Each calls f for every member of the set. Iteration order is unspecified
// (map order); callers that need a deterministic order should collect into
// a slice and sort by fingerprint first.
func (d DPaths) Each(f func(Entry)) {
	for _, e := range d.m {
		f(Entry{Path: e.path, Observed: e.observed})
	}
}

// Slice collects the set into a slice of Entry, in unspecified order.
func (d DPaths) Slice() []Entry {
	out := make([]Entry, 0, len(d.m))
	d.Each(func(e Entry) { out = append(out, e) })
	return out
}

// Fingerprint combines the fingerprints of every member path in an
// order-insensitive way (fp.Unpermuted), so that two DPaths sets built by
// observing the same paths in different orders compare equal. Used when a
// DPaths set itself needs to be folded into a larger fingerprint (e.g. a
// Binding's len_deps contributing to its overall content fingerprint in
// some codec paths).
func (d DPaths) Fingerprint() fp.Tag {
	tags := make([]fp.Tag, 0, len(d.m))
	for k := range d.m {
		tags = append(tags, k.tag.Extend([]byte{byte(k.kind)}))
	}
	return fp.Unpermuted(tags)
}
