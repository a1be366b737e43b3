package applycache

import "github.com/nicolagi/vesta/internal/fp"

// funcVersionSalt and toolVersionSalt are the two PK namespace salts of
// spec.md §4.3's derivation table. Bumping either forces every cacheable
// unit of that kind to recompute from scratch.
const (
	funcVersionSalt = "FUNC_VERSION_STRING"
	toolVersionSalt = "TOOL_VERSION_STRING"
)

// NamedTag pairs an argument name with its value's fingerprint, in call
// order, as the function/model PK rows of spec.md §4.3 require.
type NamedTag struct {
	Name string
	Tag  fp.Tag
}

// salted folds pkSalt (SPEC_FULL §4's -pk-salt, empty if unset) in ahead of
// the per-kind version salt, letting an operator force a clean cache
// namespace without bumping every unit's version string.
func salted(pkSalt, versionSalt string) fp.Tag {
	return fp.New(pkSalt).Extend([]byte(versionSalt))
}

// FunctionPK derives the primary key for a function call (spec.md §4.3):
// salt, then the closure-expression fingerprint, then each pragma-pk arg's
// (name, fingerprint), then each simple-typed arg's (name, fingerprint).
// Closure/Model arguments contribute only their expression fingerprint, so
// callers pass those through pkArgs/simpleArgs using the expression
// fingerprint in place of a value fingerprint.
func FunctionPK(pkSalt string, closureExprFp fp.Tag, pkArgs, simpleArgs []NamedTag) fp.Tag {
	t := salted(pkSalt, funcVersionSalt).ExtendTag(closureExprFp)
	for _, a := range pkArgs {
		t = t.Extend([]byte(a.Name)).ExtendTag(a.Tag)
	}
	for _, a := range simpleArgs {
		t = t.Extend([]byte(a.Name)).ExtendTag(a.Tag)
	}
	return t
}

// ModelPK derives the primary key for a model application. special
// distinguishes the outermost/command-line model (whose own closure-like
// fingerprint feeds the PK) from a normal model reached by reference (whose
// content fingerprint alone feeds it) -- spec.md §4.3, SPEC_FULL §4's
// ModelKind distinction.
func ModelPK(pkSalt string, special bool, modelFp, contentFp fp.Tag) fp.Tag {
	t := salted(pkSalt, funcVersionSalt)
	if special {
		return t.ExtendTag(modelFp)
	}
	return t.ExtendTag(contentFp)
}

// ToolCallParams carries the stable, non-./root inputs to a run_tool call
// that feed its primary key (spec.md §4.3's tool row), ahead of the
// recursive ./tool_dep_control walk the caller folds in separately via
// ExtendWithControlledDep.
type ToolCallParams struct {
	Platform           string
	Command            []string
	Stdin              string
	StdoutTreatment    string
	StderrTreatment    string
	StatusTreatment    string
	SignalTreatment    string
	FpContent          fp.Tag
	Wd                 string
	ExistingWritable   bool
	EnvVarsFingerprint fp.Tag
}

// ToolPK derives the base primary key for a run_tool call. Callers must
// then fold in every ./tool_dep_control-selected observed subvalue of
// ./root via repeated calls to ExtendWithControlledDep, in the order the
// recursive walk visits them, before using the result as the final PK.
func ToolPK(pkSalt string, p ToolCallParams) fp.Tag {
	t := salted(pkSalt, toolVersionSalt).Extend([]byte("_run_tool"))
	t = t.Extend([]byte(p.Platform))
	for _, arg := range p.Command {
		t = t.Extend([]byte(arg))
	}
	t = t.Extend([]byte(p.Stdin))
	t = t.Extend([]byte(p.StdoutTreatment))
	t = t.Extend([]byte(p.StderrTreatment))
	t = t.Extend([]byte(p.StatusTreatment))
	t = t.Extend([]byte(p.SignalTreatment))
	t = t.ExtendTag(p.FpContent)
	t = t.Extend([]byte(p.Wd))
	if p.ExistingWritable {
		t = t.Extend([]byte{1})
	} else {
		t = t.Extend([]byte{0})
	}
	t = t.ExtendTag(p.EnvVarsFingerprint)
	return t
}

// ExtendWithControlledDep folds one ./tool_dep_control-selected observation
// (a path under ./root whose control flag was truthy) into a tool PK in
// progress, in the order the recursive control-binding walk visits them.
func ExtendWithControlledDep(pk fp.Tag, arc string, observedFp fp.Tag) fp.Tag {
	return pk.Extend([]byte(arc)).ExtendTag(observedFp)
}
