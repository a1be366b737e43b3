package pickle

import "github.com/nicolagi/vesta/internal/deppath"

// PrefixTbl is the shared table a pickled value's dependency paths are
// addressed into by index, so that the many paths sharing a common arc
// sequence (every dependent of one directory listing, say) do not each
// repeat that sequence's bytes (spec.md §8 invariant 7: round-tripping a
// PrefixTbl yields equal arc lists at each index it assigns).
type PrefixTbl struct {
	seqs  [][]deppath.Arc
	index map[string]int
}

// NewPrefixTbl returns an empty, usable table.
func NewPrefixTbl() *PrefixTbl {
	return &PrefixTbl{index: make(map[string]int)}
}

// arcSep separates arcs in the table's lookup key. Binding-key arcs are
// identifiers and list-index arcs are "##n", so 0x1f (ASCII unit
// separator) never appears in a legal arc and is safe here.
const arcSep = 0x1f

func joinArcs(arcs []deppath.Arc) string {
	var b []byte
	for i, a := range arcs {
		if i > 0 {
			b = append(b, arcSep)
		}
		b = append(b, []byte(a)...)
	}
	return string(b)
}

// Intern returns the index of arcs in the table, interning it if this is
// the first time that exact sequence has been seen.
func (t *PrefixTbl) Intern(arcs []deppath.Arc) int {
	k := joinArcs(arcs)
	if i, ok := t.index[k]; ok {
		return i
	}
	i := len(t.seqs)
	dup := make([]deppath.Arc, len(arcs))
	copy(dup, arcs)
	t.seqs = append(t.seqs, dup)
	t.index[k] = i
	return i
}

// At returns the arc sequence stored at index i.
func (t *PrefixTbl) At(i int) ([]deppath.Arc, bool) {
	if i < 0 || i >= len(t.seqs) {
		return nil, false
	}
	return t.seqs[i], true
}

// Len returns the number of distinct arc sequences interned so far.
func (t *PrefixTbl) Len() int { return len(t.seqs) }

func (t *PrefixTbl) encode(w *writer) {
	w.u32(uint32(len(t.seqs)))
	for _, seq := range t.seqs {
		w.u32(uint32(len(seq)))
		for _, a := range seq {
			w.str(string(a))
		}
	}
}

func decodePrefixTbl(r *reader) (*PrefixTbl, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	t := NewPrefixTbl()
	for i := uint32(0); i < n; i++ {
		ln, err := r.u32()
		if err != nil {
			return nil, err
		}
		arcs := make([]deppath.Arc, ln)
		for j := range arcs {
			s, err := r.str()
			if err != nil {
				return nil, err
			}
			arcs[j] = deppath.Arc(s)
		}
		t.seqs = append(t.seqs, arcs)
		t.index[joinArcs(arcs)] = int(i)
	}
	return t, nil
}
