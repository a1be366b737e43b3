// Package primruntool implements spec.md §4.7's _run_tool primitive: it
// type-checks and defaults the call's arguments, selects a host
// (internal/hostselect), materializes the ./root binding as a real
// directory tree while recording dependencies through
// internal/tooldirserver, dispatches the tool via internal/runtool, walks
// the result tree back into a Binding, and -- when wired with an
// *applycache.Driver -- drives the whole call through the ApplyCache
// protocol so a repeated tool call with unchanged free variables never
// re-executes.
package primruntool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/vesta/internal/applycache"
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/hostselect"
	"github.com/nicolagi/vesta/internal/metrics"
	"github.com/nicolagi/vesta/internal/pickle"
	"github.com/nicolagi/vesta/internal/repo"
	"github.com/nicolagi/vesta/internal/runtool"
	"github.com/nicolagi/vesta/internal/tooldirserver"
	"github.com/nicolagi/vesta/internal/value"
)

// Driver holds everything one evaluator run's _run_tool calls share: the
// repository (for volatile-directory staging and result content-
// addressing), a dialer to reach a chosen host's runtool.Runner, one
// hostselect.Selector per platform, an optional cache driver, and the
// interactive pause-point flags SPEC_FULL §4 adds from original_source/.
type Driver struct {
	Repo      *repo.Repo
	Dial      func(host string) (runtool.Runner, error)
	Selectors map[string]*hostselect.Selector
	LoadOf    func(host string) (load float64, cpus int)

	Cache  *applycache.Driver
	PKSalt string

	CoreDumpPattern *regexp.Regexp

	// Confirm, when non-nil, is called to block on operator confirmation at
	// a pause point (SPEC_FULL §4's -stop-{before,after}-tool[-signal|-error]
	// flags); nil disables pausing regardless of the flags below.
	Confirm func(prompt string)

	StopBeforeTool       bool
	StopAfterTool        bool
	StopBeforeToolSignal bool
	StopAfterToolError   bool

	tds *tooldirserver.Server
	// td is shared by every _run_tool call in this evaluator run: unlike
	// applyClosure/applyModel, a Primitive's NativeFunc carries no per-
	// worker ThreadData the caller could pass in, so this driver spawns one
	// ThreadData for itself rather than one per call; see DESIGN.md.
	td *applycache.ThreadData
}

// New constructs a Driver. cache may be nil, in which case every _run_tool
// call executes directly with no memoization (mirrors eval.Evaluator's
// Cache == nil contract).
func New(r *repo.Repo, dial func(string) (runtool.Runner, error), selectors map[string]*hostselect.Selector, loadOf func(string) (float64, int), cache *applycache.Driver, pkSalt string, coreDumpPattern *regexp.Regexp) *Driver {
	d := &Driver{
		Repo: r, Dial: dial, Selectors: selectors, LoadOf: loadOf,
		Cache: cache, PKSalt: pkSalt, CoreDumpPattern: coreDumpPattern,
		tds: tooldirserver.New(),
	}
	if cache != nil {
		d.td = cache.Spawn(nil)
	}
	return d
}

// Primitive returns the _run_tool value.Primitive, ready for
// (*eval.Evaluator).Register: eval/prims.go's registerBuiltins
// deliberately leaves run_tool out, since only the driver assembling the
// rest of the system (cmd/vesta) has the dependencies this closure needs.
func (d *Driver) Primitive() value.Primitive {
	return value.NewPrimitive("_run_tool", d.run)
}

// run is _run_tool's NativeFunc. It takes a single Binding argument with
// the call's fields (platform, command, stdin, *_treatment, wd,
// existing_writable, envVars, root): this codebase's Primitive dispatch
// (see eval/apply.go's evalApply) passes arguments positionally with no
// name-to-formal-parameter binding the way applyClosure does for closures,
// so a ten-parameter keyword-style call is modeled the way real Vesta model
// files already write options, as one binding literal, rather than adding
// named/defaulted-argument support to the shared primitive-call path for
// this one primitive; see DESIGN.md.
func (d *Driver) run(_ value.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.NewError(value.ClassDomain, "_run_tool: expected a single binding argument"), nil
	}
	call, ok := args[0].(value.Binding)
	if !ok {
		return value.NewError(value.ClassType, "_run_tool: argument is not a binding"), nil
	}

	platform, ok := textField(call, "platform")
	if !ok {
		return value.NewError(value.ClassDomain, "_run_tool: missing platform"), nil
	}
	command, ok := textListField(call, "command")
	if !ok || len(command) == 0 {
		return value.NewError(value.ClassDomain, "_run_tool: missing or empty command"), nil
	}
	stdin, _ := textField(call, "stdin")
	stdoutTreatment := textFieldOr(call, "stdout_treatment", "report")
	stderrTreatment := textFieldOr(call, "stderr_treatment", "report")
	statusTreatment := textFieldOr(call, "status_treatment", "report_nocache")
	signalTreatment := textFieldOr(call, "signal_treatment", "report_nocache")
	wd := textFieldOr(call, "wd", ".WD")
	existingWritable := boolFieldOr(call, "existing_writable", false)
	fpContent := fpFieldOr(call, "fp_content", fp.Zero)

	var envVars value.Binding
	if v, ok := call.Lookup("envVars"); ok {
		envVars, _ = v.(value.Binding)
	}
	var root value.Binding
	if v, ok := call.Lookup("root"); ok {
		root, _ = v.(value.Binding)
	}

	selector, ok := d.Selectors[platform]
	if !ok {
		err := fmt.Errorf("primruntool: unknown platform %q", platform)
		return value.NewFatalError(value.ClassConfig, "_run_tool: %v", err), err
	}

	rootPath, hasPath := root.Path()
	if !hasPath {
		rootPath = deppath.New(deppath.Norm)
	}

	pk := d.pk(platform, command, stdin, stdoutTreatment, stderrTreatment, statusTreatment, signalTreatment, fpContent, wd, existingWritable, envVars)

	var computed value.Value
	var computeErr error

	body := func() (applycache.BodyResult, error) {
		out, depSet, cacheable, err := d.dispatch(selector, root, rootPath, command, stdin, wd, envVars,
			statusTreatment, signalTreatment, stdoutTreatment, stderrTreatment)
		computed, computeErr = out, err
		if err != nil {
			return applycache.BodyResult{}, err
		}
		if !cacheable {
			return applycache.BodyResult{Cacheable: false}, nil
		}
		pickled, perr := pickle.Pickle(out)
		if perr != nil {
			return applycache.BodyResult{Cacheable: false}, nil
		}
		entries := depSet.Slice()
		fvs := make([]applycache.FV, len(entries))
		tags := make([]fp.Tag, len(entries))
		for i, e := range entries {
			fvs[i] = applycache.FV{Path: e.Path, Kind: e.Path.Kind}
			if ov, ok := e.Observed.(value.Value); ok {
				tags[i] = fingerprintForKind(ov, e.Path.Kind)
			}
		}
		return applycache.BodyResult{Cacheable: true, Deps: fvs, Tags: tags, Pickled: pickled}, nil
	}

	if d.Cache == nil {
		if _, err := body(); err != nil {
			return value.NewFatalError(value.ClassRuntool, "_run_tool: %v", err), err
		}
		return computed, computeErr
	}

	sourceLabel := "run_tool:" + strings.Join(command, " ")
	resolve := func(fv applycache.FV) (fp.Tag, error) { return resolveRootFV(root, rootPath, fv) }
	_, pickled, hit, err := d.Cache.Apply(d.td, applycache.KindTool, pk, false, resolve, 0, sourceLabel, body)
	if err != nil {
		return value.NewFatalError(value.ClassRuntool, "_run_tool: %v", err), err
	}
	if hit {
		v, uerr := pickle.Unpickle(pickled, pickle.PrimitiveRegistry{})
		if uerr != nil {
			return value.NewFatalError(value.ClassPickle, "_run_tool: unpickle: %v", uerr), uerr
		}
		return v, nil
	}
	return computed, computeErr
}

func (d *Driver) pk(platform string, command []string, stdin, stdoutTreatment, stderrTreatment, statusTreatment, signalTreatment string, fpContent fp.Tag, wd string, existingWritable bool, envVars value.Binding) fp.Tag {
	return applycache.ToolPK(d.PKSalt, applycache.ToolCallParams{
		Platform: platform, Command: command, Stdin: stdin,
		StdoutTreatment: stdoutTreatment, StderrTreatment: stderrTreatment,
		StatusTreatment: statusTreatment, SignalTreatment: signalTreatment,
		FpContent: fpContent, Wd: wd, ExistingWritable: existingWritable,
		EnvVarsFingerprint: envVars.Fingerprint(),
	})
}

// dispatch runs one actual tool invocation: host selection, volatile
// directory materialization, the RunTool::do_it RPC, result-tree walk, and
// cacheability determination (spec.md §4.7 steps 4-10). It never consults
// or updates the cache itself -- that is run's job -- so a cache Hit can
// skip it entirely.
func (d *Driver) dispatch(selector *hostselect.Selector, root value.Binding, rootPath deppath.Path, command []string, stdin, wd string, envVars value.Binding, statusTreatment, signalTreatment, stdoutTreatment, stderrTreatment string) (value.Binding, deppath.DPaths, bool, error) {
	sel, err := selector.Select(d.LoadOf)
	if err != nil {
		return value.Binding{}, deppath.DPaths{}, false, err
	}
	defer selector.Done(sel.Host)

	tmpDir, err := os.MkdirTemp(d.Repo.Dir(), "vesta-volatile-*")
	if err != nil {
		return value.Binding{}, deppath.DPaths{}, false, err
	}
	defer os.RemoveAll(tmpDir)

	callID, rootHandle := d.tds.Register(root, rootPath, false)
	if err := d.materialize(callID, rootHandle, tmpDir); err != nil {
		_, _ = d.tds.Finish(callID)
		return value.Binding{}, deppath.DPaths{}, false, err
	}

	runner, err := d.Dial(sel.Host)
	if err != nil {
		_, _ = d.tds.Finish(callID)
		return value.Binding{}, deppath.DPaths{}, false, err
	}

	cwd := filepath.Join(tmpDir, strings.TrimPrefix(strings.TrimPrefix(wd, "."), "/"))
	if err := os.MkdirAll(cwd, 0755); err != nil {
		_, _ = d.tds.Finish(callID)
		return value.Binding{}, deppath.DPaths{}, false, err
	}

	paused := false
	if d.StopBeforeTool {
		d.pause(fmt.Sprintf("about to run %v on %s", command, sel.Host))
		paused = true
	}

	res, err := runner.DoIt(context.Background(), runtool.Request{
		Host: sel.Host, Argv: command, Wd: cwd, Env: envPairs(envVars), Stdin: []byte(stdin),
	})
	if err != nil {
		_, _ = d.tds.Finish(callID)
		metrics.RunToolDispatches.WithLabelValues("error").Inc()
		return value.Binding{}, deppath.DPaths{}, false, err
	}

	if d.StopAfterTool {
		d.pause(fmt.Sprintf("%v finished: status=%d signal=%d", command, res.Status, res.Signal))
		paused = true
	}
	// The -signal/-error suffixed pause flags can only fire once the
	// outcome is known, so both act as post-dispatch pauses regardless of
	// whether their name says "before" or "after"; see DESIGN.md.
	if d.StopBeforeToolSignal && res.Signal != 0 {
		d.pause(fmt.Sprintf("%v was killed by signal %d", command, res.Signal))
		paused = true
	}
	if d.StopAfterToolError && res.Status != 0 {
		d.pause(fmt.Sprintf("%v exited with status %d", command, res.Status))
		paused = true
	}

	resultBinding, err := d.walkResult(tmpDir)
	if err != nil {
		_, _ = d.tds.Finish(callID)
		return value.Binding{}, deppath.DPaths{}, false, err
	}
	dumpedCore := res.DumpedCore || containsCoreDump(resultBinding, d.CoreDumpPattern)

	depSet, err := d.tds.Finish(callID)
	if err != nil {
		return value.Binding{}, deppath.DPaths{}, false, err
	}

	out := value.NewBinding([]value.Field{
		{Name: "code", Value: value.NewInteger(int32(res.Status))},
		{Name: "signal", Value: value.NewInteger(int32(res.Signal))},
		{Name: "stdout_written", Value: value.NewBoolean(len(res.Stdout) > 0)},
		{Name: "stderr_written", Value: value.NewBoolean(len(res.Stderr) > 0)},
		{Name: "dumped_core", Value: value.NewBoolean(dumpedCore)},
		{Name: "root", Value: resultBinding},
	})
	if stdoutTreatment == "report" {
		out, _ = out.Insert("stdout", value.NewInlineText(res.Stdout))
	}
	if stderrTreatment == "report" {
		out, _ = out.Insert("stderr", value.NewInlineText(res.Stderr))
	}
	out = out.WithDeps(out.Deps().Union(depSet)).(value.Binding)

	// Item 9's cacheability rule: a *_nocache treatment whose triggering
	// condition occurred, or any pause-on-* flag configured at all (an
	// interactive run is inherently not a candidate for memoization), force
	// the result uncacheable.
	cacheable := !paused &&
		!d.StopBeforeTool && !d.StopAfterTool && !d.StopBeforeToolSignal && !d.StopAfterToolError &&
		treatmentCacheable(statusTreatment, res.Status != 0) &&
		treatmentCacheable(signalTreatment, res.Signal != 0)

	metrics.RunToolDispatches.WithLabelValues("ok").Inc()
	return out, depSet, cacheable, nil
}

func (d *Driver) pause(prompt string) {
	if d.Confirm != nil {
		d.Confirm(prompt)
		return
	}
	log.WithField("prompt", prompt).Info("primruntool: pause point reached, no Confirm configured, continuing")
}

// materialize walks handle's subtree eagerly, writing every file to disk
// under dir: there is no on-demand mount a remote runner could lazily read
// through, so every name the real tool might ever access is recorded as a
// dependency up front (an over-approximation of spec.md §4.6's lazy-access
// model, which is sound -- it can only reduce the cache hit rate, never
// cause an unsound hit; see DESIGN.md).
func (d *Driver) materialize(callID int64, handle tooldirserver.Handle, dir string) error {
	entries, err := d.tds.List(callID, handle)
	if err != nil {
		return err
	}
	for _, e := range entries {
		looked, err := d.tds.Lookup(callID, handle, e.Name)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, e.Name)
		switch looked.Kind {
		case tooldirserver.EdDirectory:
			if err := os.Mkdir(target, 0755); err != nil {
				return err
			}
			if err := d.materialize(callID, looked.Handle, target); err != nil {
				return err
			}
		case tooldirserver.EdFile:
			data, err := d.fileBytes(looked.Value)
			if err != nil {
				return err
			}
			if err := os.WriteFile(target, data, 0644); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) fileBytes(v value.Value) ([]byte, error) {
	t, ok := v.(value.Text)
	if !ok {
		return nil, fmt.Errorf("primruntool: non-text file value %s", v.Kind())
	}
	if t.HasInline() {
		return t.Inline(), nil
	}
	sid, _, _ := t.Sid()
	data, ok := d.Repo.ReadFile(sid)
	if !ok {
		return nil, fmt.Errorf("primruntool: shortid %s not found", sid)
	}
	return data, nil
}

// walkResult rebuilds the post-execution directory tree as a Binding,
// content-addressing every file through the repository (spec.md §4.7 step
// 7: "files as Text values carrying the new shortid and fingerprint").
func (d *Driver) walkResult(dir string) (value.Binding, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return value.Binding{}, err
	}
	var fields []value.Field
	for _, ent := range entries {
		name := ent.Name()
		full := filepath.Join(dir, name)
		if ent.IsDir() {
			sub, err := d.walkResult(full)
			if err != nil {
				return value.Binding{}, err
			}
			fields = append(fields, value.Field{Name: name, Value: sub})
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return value.Binding{}, err
		}
		sid, tag := d.Repo.InsertFile(data)
		fields = append(fields, value.Field{Name: name, Value: value.NewSidText(sid, tag, name)})
	}
	return value.NewBinding(fields), nil
}

func containsCoreDump(b value.Binding, pattern *regexp.Regexp) bool {
	if pattern == nil {
		return false
	}
	for _, f := range b.Fields {
		if tooldirserver.IsCoreDumpName(pattern, f.Name) {
			return true
		}
		if sub, ok := f.Value.(value.Binding); ok && containsCoreDump(sub, pattern) {
			return true
		}
	}
	return false
}

// treatmentCacheable implements item 9's "*_nocache" suffix convention:
// once triggered, a "*_nocache" treatment forces the result uncacheable; an
// untriggered condition, or a treatment without that suffix, never does.
func treatmentCacheable(treatment string, triggered bool) bool {
	if !triggered {
		return true
	}
	return !strings.HasSuffix(treatment, "_nocache")
}

func envPairs(envVars value.Binding) []string {
	out := make([]string, 0, len(envVars.Fields))
	for _, f := range envVars.Fields {
		t, ok := f.Value.(value.Text)
		if !ok || !t.HasInline() {
			continue
		}
		out = append(out, f.Name+"="+string(t.Inline()))
	}
	return out
}

func textField(b value.Binding, name string) (string, bool) {
	v, ok := b.Lookup(name)
	if !ok {
		return "", false
	}
	t, ok := v.(value.Text)
	if !ok || !t.HasInline() {
		return "", false
	}
	return string(t.Inline()), true
}

func textFieldOr(b value.Binding, name, def string) string {
	if v, ok := textField(b, name); ok {
		return v
	}
	return def
}

func boolFieldOr(b value.Binding, name string, def bool) bool {
	v, ok := b.Lookup(name)
	if !ok {
		return def
	}
	bo, ok := v.(value.Boolean)
	if !ok {
		return def
	}
	return bo.Value
}

func fpFieldOr(b value.Binding, name string, def fp.Tag) fp.Tag {
	v, ok := b.Lookup(name)
	if !ok {
		return def
	}
	f, ok := v.(value.Fp)
	if !ok {
		return def
	}
	return f.Value
}

func textListField(b value.Binding, name string) ([]string, bool) {
	v, ok := b.Lookup(name)
	if !ok {
		return nil, false
	}
	l, ok := v.(value.List)
	if !ok {
		return nil, false
	}
	out := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		t, ok := e.(value.Text)
		if !ok || !t.HasInline() {
			return nil, false
		}
		out[i] = string(t.Inline())
	}
	return out, true
}
