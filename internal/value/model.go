package value

import (
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/shortid"
)

// RepoRoot is the minimal view of a repository root a Model needs: its
// content tag, for combining into the model's lid tag. The concrete type
// lives in the repo package; value does not import repo to avoid a cycle,
// so any type with a Tag method satisfies this.
type RepoRoot interface {
	Tag() fp.Tag
}

// ModelKind distinguishes the two primary-key derivation rules of spec.md
// §4.3's table: a "special" model (the one named on the evaluator's
// command line, or otherwise known to embed evaluator-specific state) folds
// its own closure-like fingerprint into the PK, while a "normal" model
// (one referenced from within another model) folds in only its content
// fingerprint.
type ModelKind uint8

const (
	ModelNormal ModelKind = iota
	ModelSpecial
)

// Model refers to a parsed source file, applied as a function of one
// argument "." (spec.md glossary). Parsing is lazy: Parsed/IsParsed let the
// evaluator cache the parse result the first time the model is applied.
type Model struct {
	base

	Name     string
	Sid      shortid.ID
	RepoRoot RepoRoot
	ModelOf  ModelKind

	tag    fp.Tag
	lidTag fp.Tag

	parsed   interface{}
	isParsed bool
}

// NewModel constructs an unparsed Model value. tag is the content
// fingerprint of the file at sid; lidTag combines the repo root's tag and
// the model's name, per spec.md §4.1.
func NewModel(name string, sid shortid.ID, root RepoRoot, kind ModelKind, tag fp.Tag) Model {
	var lid fp.Tag
	if root != nil {
		lid = root.Tag().Extend([]byte(name))
	} else {
		lid = fp.Zero.Extend([]byte(name))
	}
	return Model{Name: name, Sid: sid, RepoRoot: root, ModelOf: kind, tag: tag, lidTag: lid}
}

func (v Model) Kind() Kind { return KindModel }

// Fingerprint returns the model's content tag (spec.md §4.1 "tag").
func (v Model) Fingerprint() fp.Tag {
	return kindTag(KindModel).ExtendTag(v.tag)
}

// ContentTag returns the bare content tag of the parsed file (without the
// Kind-specific mixing Fingerprint applies), as used directly in some
// codec paths.
func (v Model) ContentTag() fp.Tag { return v.tag }

// LidTag returns the combination of repo-root tag and filename used in
// cache primary-key derivation (spec.md §4.1, §4.3).
func (v Model) LidTag() fp.Tag { return v.lidTag }

// Parsed returns the cached parse result and whether parsing has happened
// yet. The concrete type stored is owned by the eval package (normally
// *ast.Expr); value itself treats it opaquely.
func (v Model) Parsed() (interface{}, bool) { return v.parsed, v.isParsed }

// WithParsed returns a copy of v with its parse result cached.
func (v Model) WithParsed(root interface{}) Model {
	v.parsed = root
	v.isParsed = true
	return v
}

func (v Model) WithPath(p deppath.Path) Value   { v.base = withPath(v.base, p); return v }
func (v Model) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }
