package eval

import (
	"github.com/nicolagi/vesta/internal/applycache"
	"github.com/nicolagi/vesta/internal/ast"
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/pickle"
	"github.com/nicolagi/vesta/internal/value"
)

// WithCache returns a copy of e that drives every Closure/Model/run_tool
// application through the ApplyCache memoization protocol (spec.md §4.3)
// instead of evaluating the body unconditionally on every call. A bare
// Evaluator (Cache == nil, e.g. the one New returns) keeps evaluating
// directly, which existing tests rely on.
func (e *Evaluator) WithCache(cache *applycache.Driver) *Evaluator {
	clone := *e
	clone.Cache = cache
	clone.TD = cache.Spawn(nil)
	return &clone
}

// pickleRegistry builds the pickle.PrimitiveRegistry cache restores need to
// re-attach a NativeFunc to any Primitive value a pickled result contains
// (internal/pickle's Pickler never writes the function pointer itself).
func (e *Evaluator) pickleRegistry() pickle.PrimitiveRegistry {
	reg := make(pickle.PrimitiveRegistry, len(e.Primitives))
	for name, p := range e.Primitives {
		reg[name] = p.Fn
	}
	return reg
}

// applyCached drives one cacheable call site through the full protocol
// (spec.md §4.3): on a Hit it unpickles the stored result; on a Miss it
// evaluates body once, pickles the result, and hands the reduced dependency
// set (excludeArcs stripped, since those were already folded into pk) to
// the driver as the new entry's free-variable list.
func (e *Evaluator) applyCached(
	kind applycache.CallKind,
	pk fp.Tag,
	waitOnDuplicate bool,
	resolve applycache.FreeVariableResolver,
	modelSid int64,
	sourceLabel string,
	excludeArcs map[string]bool,
	eval func() (value.Value, error),
) (value.Value, error) {
	var computed value.Value
	var computeErr error

	body := func() (applycache.BodyResult, error) {
		v, err := eval()
		computed, computeErr = v, err
		if err != nil {
			return applycache.BodyResult{}, err
		}
		if errVal, ok := v.(value.ErrorValue); ok && !errVal.Cacheable {
			return applycache.BodyResult{Cacheable: false}, nil
		}
		pickled, perr := pickle.Pickle(v)
		if perr != nil {
			// Not every value round-trips (e.g. one still holding an
			// uninterned Primitive the registry cannot name); treat that as
			// simply uncacheable rather than a fatal evaluation error.
			return applycache.BodyResult{Cacheable: false}, nil
		}
		deps := filterDeps(v.Deps(), excludeArcs)
		entries := deps.Slice()
		fvs := make([]applycache.FV, len(entries))
		tags := make([]fp.Tag, len(entries))
		for i, entry := range entries {
			fvs[i] = applycache.FV{Path: entry.Path, Kind: entry.Path.Kind}
			if ov, ok := entry.Observed.(value.Value); ok {
				tags[i] = fingerprintForKind(ov, entry.Path.Kind)
			}
		}
		return applycache.BodyResult{Cacheable: true, Deps: fvs, Tags: tags, Pickled: pickled}, nil
	}

	_, pickled, hit, err := e.Cache.Apply(e.TD, kind, pk, waitOnDuplicate, resolve, modelSid, sourceLabel, body)
	if err != nil {
		return value.NewFatalError(value.ClassCacheProtocol, "applycache: %v", err), err
	}
	if hit {
		v, uerr := pickle.Unpickle(pickled, e.pickleRegistry())
		if uerr != nil {
			return value.NewFatalError(value.ClassPickle, "applycache: unpickle: %v", uerr), uerr
		}
		return v, nil
	}
	return computed, computeErr
}

// filterDeps drops any dependency whose first arc names an argument that
// was already folded directly into the primary key (spec.md §4.3 item 1,
// "excluded paths"): re-recording it as a free variable would be redundant,
// since a PK change already forces a fresh cache entry.
func filterDeps(deps deppath.DPaths, excludeArcs map[string]bool) deppath.DPaths {
	if len(excludeArcs) == 0 {
		return deps
	}
	var out deppath.DPaths
	deps.Each(func(entry deppath.Entry) {
		if first, ok := entry.Path.FirstArc(); ok && excludeArcs[string(first)] {
			return
		}
		out = out.Put(entry.Path, entry.Observed)
	})
	return out
}

// isSimpleTyped reports whether v is one of the "simple-typed" kinds whose
// value fingerprint folds directly into a function call's primary key
// (spec.md §4.3's derivation table) without needing a pragma-pk annotation.
func isSimpleTyped(v value.Value) bool {
	switch v.(type) {
	case value.Boolean, value.Integer, value.Text:
		return true
	default:
		return false
	}
}

// pkArgTag is the fingerprint a PK-contributing argument folds in: for a
// Closure or Model argument this is its expression/content identity rather
// than a fingerprint over its full (possibly huge, possibly non-comparable)
// captured state (spec.md §4.3: "Closure/Model args contribute their
// expression fingerprint only").
func pkArgTag(v value.Value) fp.Tag {
	switch t := v.(type) {
	case value.Closure:
		return t.Body.BodyFingerprint()
	case value.Model:
		return t.ContentTag()
	default:
		return v.Fingerprint()
	}
}

// functionPK derives the primary key for one applyClosure call plus the set
// of parameter names it folded directly into the key (so the body's
// dependency set can exclude them).
func (e *Evaluator) functionPK(fnLit *ast.FunctionLiteral, bound map[string]value.Value) (fp.Tag, map[string]bool) {
	excluded := make(map[string]bool)
	var pkArgs, simpleArgs []applycache.NamedTag
	for _, p := range fnLit.Params {
		v, ok := bound[p.Name]
		if !ok {
			continue
		}
		switch {
		case p.PragmaPK:
			pkArgs = append(pkArgs, applycache.NamedTag{Name: p.Name, Tag: pkArgTag(v)})
			excluded[p.Name] = true
		case isSimpleTyped(v):
			simpleArgs = append(simpleArgs, applycache.NamedTag{Name: p.Name, Tag: v.Fingerprint()})
			excluded[p.Name] = true
		}
	}
	pk := applycache.FunctionPK(e.Cache.PKSalt, fnLit.BodyFingerprint(), pkArgs, simpleArgs)
	return pk, excluded
}
