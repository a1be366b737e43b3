// Package repo implements the evaluator's view of a model repository: a
// directory of model source files, content-addressed the way the teacher's
// internal/block and internal/storage content-address file blocks, fronting
// eval.ModelLoader so the evaluator never has to know how model text is
// actually stored. The directory-tree/revision/merge machinery of the
// teacher's internal/tree package has no counterpart here (a model
// repository is read during one evaluation run, not synced or 3-way merged
// like a filesystem snapshot), so this package is a fresh, much smaller
// adaptation of the teacher's content-addressing idiom rather than a port
// of internal/tree; see DESIGN.md.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nicolagi/vesta/internal/ast"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/shortid"
	"github.com/nicolagi/vesta/internal/value"
)

// Repo resolves model literals against a directory of source files on disk,
// and also satisfies value.RepoRoot (its Tag method) so a value.Model can
// fold the repository's identity into its lid tag. SpecialName, if set,
// names the one model this evaluation run was invoked on (spec.md §4.3's
// special/normal model PK distinction, SPEC_FULL §4); every other model is
// ModelNormal.
type Repo struct {
	dir         string
	specialName string
	tag         fp.Tag

	mu      sync.Mutex
	byName  map[string]shortid.ID
	content map[shortid.ID][]byte
	nextSid shortid.ID
}

// New constructs a Repo rooted at dir. The root tag is derived from dir's
// absolute path plus a random salt read at open time would make two runs
// against the same tree disagree, so instead it is derived deterministically
// from the directory path alone: stable across runs, distinct across
// distinct checkouts living at different paths.
func New(dir, specialName string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("repo.New: %w", err)
	}
	return &Repo{
		dir:         abs,
		specialName: specialName,
		tag:         fp.New("repo-root").Extend([]byte(abs)),
		byName:      make(map[string]shortid.ID),
		content:     make(map[shortid.ID][]byte),
	}, nil
}

// Tag satisfies value.RepoRoot.
func (r *Repo) Tag() fp.Tag { return r.tag }

// Dir returns the repository's root directory, so PrimRunTool can stage a
// run_tool call's volatile directory alongside it (spec.md §6's
// createVolatileDirectory, SPEC_FULL §3 "internal/repo").
func (r *Repo) Dir() string { return r.dir }

// InsertFile content-addresses data under a fresh shortid (spec.md §6's
// insertMutableFile/makeFilesImmutable collapsed into one step, since this
// package keeps no separate mutable-staging area; see DESIGN.md), for
// PrimRunTool's result-tree walk to attach to the Binding it returns.
func (r *Repo) InsertFile(data []byte) (shortid.ID, fp.Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSid++
	sid := r.nextSid
	dup := make([]byte, len(data))
	copy(dup, data)
	r.content[sid] = dup
	return sid, fp.New("file-content").Extend(dup)
}

// ReadFile returns previously inserted or loaded content by shortid.
func (r *Repo) ReadFile(sid shortid.ID) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.content[sid]
	return data, ok
}

// LoadModel resolves path (expected to be inline Text naming a file relative
// to the repository root) to a value.Model, reading its content and
// assigning it a shortid the first time it is seen (spec.md §4.1's "Model"
// row; SPEC_FULL §3 "internal/repo").
func (r *Repo) LoadModel(_ value.Context, path value.Value) (value.Model, error) {
	t, ok := path.(value.Text)
	if !ok || !t.HasInline() {
		return value.Model{}, fmt.Errorf("repo.LoadModel: path is not inline text")
	}
	name := string(t.Inline())
	clean := filepath.Clean(filepath.Join(r.dir, name))
	if !isWithin(r.dir, clean) {
		return value.Model{}, fmt.Errorf("repo.LoadModel: %q escapes repository root", name)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return value.Model{}, fmt.Errorf("repo.LoadModel: %w", err)
	}

	r.mu.Lock()
	sid, ok := r.byName[name]
	if !ok {
		r.nextSid++
		sid = r.nextSid
		r.byName[name] = sid
	}
	r.content[sid] = data
	r.mu.Unlock()

	contentTag := fp.New("model-content:" + name).Extend(data)
	kind := value.ModelNormal
	if name == r.specialName {
		kind = value.ModelSpecial
	}
	return value.NewModel(name, sid, r, kind, contentTag), nil
}

// ParseModel lazily parses a previously loaded model's source.
func (r *Repo) ParseModel(m value.Model) (ast.Expr, error) {
	r.mu.Lock()
	data, ok := r.content[m.Sid]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("repo.ParseModel: %s: content not loaded", m.Name)
	}
	return ast.Parse(m.Name, string(data))
}

func isWithin(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (len(rel) < 2 || rel[:2] != "..")
}
