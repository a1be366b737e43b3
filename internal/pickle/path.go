package pickle

import (
	"fmt"

	"github.com/nicolagi/vesta/internal/deppath"
)

// encodePath writes a dependency path as its Kind byte plus the PrefixTbl
// index of its arc sequence, so every repeat of an identical arc sequence
// costs one 4-byte index rather than the full arc list.
func encodePath(w *writer, pt *PrefixTbl, p deppath.Path) {
	w.u8(byte(p.Kind))
	w.u32(uint32(pt.Intern(p.Arcs)))
}

func decodePath(r *reader, pt *PrefixTbl) (deppath.Path, error) {
	kindByte, err := r.u8()
	if err != nil {
		return deppath.Path{}, err
	}
	idx, err := r.u32()
	if err != nil {
		return deppath.Path{}, err
	}
	arcs, ok := pt.At(int(idx))
	if !ok {
		return deppath.Path{}, fmt.Errorf("pickle: prefix table index %d out of range", idx)
	}
	return deppath.Path{Kind: deppath.Kind(kindByte), Arcs: arcs}, nil
}

// encodeDPaths writes every member of d as a bare path: spec.md §3 records
// an "observed" subvalue alongside each path for verification, but that
// observation is never pickled, and decodeDPaths gives each entry a nil
// observation. Resolving a path against a context is done by the cache's
// caller (internal/eval's fvResolver), not by this package.
func encodeDPaths(w *writer, pt *PrefixTbl, d deppath.DPaths) {
	entries := d.Slice()
	w.u32(uint32(len(entries)))
	for _, e := range entries {
		encodePath(w, pt, e.Path)
	}
}

func decodeDPaths(r *reader, pt *PrefixTbl) (deppath.DPaths, error) {
	n, err := r.u32()
	if err != nil {
		return deppath.DPaths{}, err
	}
	var out deppath.DPaths
	for i := uint32(0); i < n; i++ {
		p, err := decodePath(r, pt)
		if err != nil {
			return deppath.DPaths{}, err
		}
		out = out.Put(p, nil)
	}
	return out, nil
}
