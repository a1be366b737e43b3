// Command vesta is the evaluator CLI (spec.md §6's "Evaluator CLI (external
// surface)"): it loads configuration, wires the cache driver, host
// selector, and run_tool primitive together, then applies the model file
// named on the command line to "." and reports the result. Flag handling
// follows cmd/muscle/muscle.go's newFlagSet/globalContext/exitUsage idiom,
// collapsed to a single command since the evaluator has no subcommands.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/nicolagi/vesta/internal/applycache"
	"github.com/nicolagi/vesta/internal/cacheclient"
	"github.com/nicolagi/vesta/internal/config"
	"github.com/nicolagi/vesta/internal/eval"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/hostselect"
	"github.com/nicolagi/vesta/internal/primruntool"
	"github.com/nicolagi/vesta/internal/repo"
	"github.com/nicolagi/vesta/internal/runtool"
	"github.com/nicolagi/vesta/internal/storage"
	"github.com/nicolagi/vesta/internal/value"
)

// To set this at build time: go build -ldflags '-X main.version=something'.
var version = "unknown"

var globalContext struct {
	base     string
	logLevel string
}

var vestaContext struct {
	cache            string
	trace            bool
	stack            bool
	result           bool
	cstats           bool
	mstats           bool
	keepGoing        bool
	noAddEntry       bool
	maxThreads       int
	parseOnly        bool
	pkSalt           string
	dependencyCheck  bool
	shipTo           string
	shipFrom         string
	stopBeforeTool   bool
	stopAfterTool    bool
	stopBeforeSignal bool
	stopAfterError   bool
	gops             bool
	metricsAddr      string
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&globalContext.base, "base", config.DefaultBaseDirectoryPath, "`directory` for configuration, cache, and staging files")
	var levels []string
	for _, l := range log.AllLevels {
		levels = append(levels, l.String())
	}
	fs.StringVar(&globalContext.logLevel, "verbosity", "warning", "sets the log `level`, among "+strings.Join(levels, ", "))
	return fs
}

func exitUsage(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [flags] model-file\n", os.Args[0])
	os.Exit(2)
}

func main() {
	fs := newFlagSet("vesta")
	fs.StringVar(&vestaContext.cache, "cache", "all", "which call kinds to memoize: `none`, `runtool`, `model`, or `all`")
	fs.BoolVar(&vestaContext.trace, "trace", false, "set the log level to debug, overriding -verbosity")
	fs.BoolVar(&vestaContext.stack, "stack", false, "print a Go stack trace alongside a fatal error")
	fs.BoolVar(&vestaContext.result, "result", false, "print the evaluation result to stdout")
	fs.BoolVar(&vestaContext.cstats, "cstats", false, "on exit, print where the ApplyCache lookup/FVMismatch counters are exported")
	fs.BoolVar(&vestaContext.mstats, "mstats", false, "print Go runtime memory stats on exit")
	fs.BoolVar(&vestaContext.keepGoing, "k", false, "treat a cacheable Error result as a non-fatal exit code")
	fs.BoolVar(&vestaContext.noAddEntry, "noaddentry", false, "compute results without adding new cache entries")
	fs.IntVar(&vestaContext.maxThreads, "maxthreads", 8, "`N`, the par_map concurrency ceiling")
	fs.BoolVar(&vestaContext.parseOnly, "parse", false, "parse the model file and exit without evaluating")
	fs.StringVar(&vestaContext.pkSalt, "pk-salt", "", "extra `salt` folded into every cache primary key")
	fs.BoolVar(&vestaContext.dependencyCheck, "dependency-check", false, "on every cache Hit, log its primary key and CI at debug level (the cached result is still used; nothing is re-executed)")
	fs.StringVar(&vestaContext.shipTo, "shipto", "", "ship the repository's content to the store named by the config's storage key and write the resulting ref to `PATH`")
	fs.StringVar(&vestaContext.shipFrom, "shipfrom", "", "fetch the repository named by ref `REF` from the configured store before evaluating")
	fs.BoolVar(&vestaContext.stopBeforeTool, "stop-before-tool", false, "pause for confirmation before every run_tool dispatch")
	fs.BoolVar(&vestaContext.stopAfterTool, "stop-after-tool", false, "pause for confirmation after every run_tool dispatch")
	fs.BoolVar(&vestaContext.stopBeforeSignal, "stop-before-tool-signal", false, "pause when a run_tool dispatch was killed by a signal")
	fs.BoolVar(&vestaContext.stopAfterError, "stop-after-tool-error", false, "pause when a run_tool dispatch exits non-zero")
	fs.BoolVar(&vestaContext.gops, "gops", false, "start a github.com/google/gops/agent listener for runtime inspection")
	fs.StringVar(&vestaContext.metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this `host:port`")

	_ = fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		exitUsage(fmt.Sprintf("expected exactly one model-file argument, got %d", fs.NArg()))
	}
	modelFile := fs.Arg(0)

	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.JSONFormatter{})
	ll, err := log.ParseLevel(globalContext.logLevel)
	if err != nil {
		log.Fatalf("Could not parse log level %q: %v", globalContext.logLevel, err)
	}
	log.SetLevel(ll)
	if vestaContext.trace {
		log.SetLevel(log.DebugLevel)
	}
	log.WithField("version", version).Debug("vesta starting")

	if vestaContext.gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Warningf("Could not start gops agent: %v", err)
		}
	}
	if vestaContext.metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(vestaContext.metricsAddr, mux); err != nil {
				log.Warningf("metrics server exited: %v", err)
			}
		}()
	}

	cfg, err := config.Load(globalContext.base)
	if err != nil {
		log.Fatalf("Could not load config from %q: %v", globalContext.base, err)
	}
	if vestaContext.pkSalt == "" {
		vestaContext.pkSalt = cfg.PKSalt
	}

	var repository *repo.Repo
	if vestaContext.shipFrom != "" {
		store, serr := storage.NewStore(cfg)
		if serr != nil {
			log.Fatalf("Could not construct store for -shipfrom: %v", serr)
		}
		stageDir, derr := os.MkdirTemp(globalContext.base, "vesta-shipfrom-*")
		if derr != nil {
			log.Fatalf("Could not create staging directory for -shipfrom: %v", derr)
		}
		repository, err = repo.ShipFrom(store, vestaContext.shipFrom, stageDir, filepath.Base(modelFile))
		if err != nil {
			log.Fatalf("Could not ship from %q: %v", vestaContext.shipFrom, err)
		}
		log.WithFields(log.Fields{"ref": vestaContext.shipFrom, "dir": stageDir}).Info("shipfrom: populated repository from store")
	} else {
		repository, err = repo.New(filepath.Dir(modelFile), filepath.Base(modelFile))
		if err != nil {
			log.Fatalf("Could not open repository at %q: %v", filepath.Dir(modelFile), err)
		}
	}

	evaluator := eval.New(repository)
	evaluator.MaxThreads = vestaContext.maxThreads

	var cacheDriver *applycache.Driver
	wantsModelCache := vestaContext.cache == "model" || vestaContext.cache == "all"
	wantsToolCache := vestaContext.cache == "runtool" || vestaContext.cache == "all"
	if wantsModelCache || wantsToolCache {
		cacheDriver = applycache.NewDriver(cacheclient.NewLocal(), vestaContext.pkSalt)
		defer cacheDriver.Close()
		cacheDriver.DependencyCheck = vestaContext.dependencyCheck
		cacheDriver.NoAddEntry = vestaContext.noAddEntry
		cacheDriver.Recheck = func(pk fp.Tag, hitCI int64) {
			log.WithFields(log.Fields{"pk": pk.String(), "ci": hitCI}).
				Debug("vesta: dependency-check: cache Hit")
		}
	}
	if wantsModelCache {
		evaluator = evaluator.WithCache(cacheDriver)
	}

	selectors := make(map[string]*hostselect.Selector, len(cfg.Platforms))
	for name, p := range cfg.Platforms {
		selectors[name] = hostselect.New(hostselect.Platform{
			Sysname: p.Sysname, Release: p.Release, Version: p.Version, Machine: p.Machine,
			MinCPUs: p.MinCPUs, MinMHz: p.MinMHz, MinKB: p.MinKB, Hosts: p.Hosts,
		}, localInfoProber, 4, 8)
	}

	var toolCache *applycache.Driver
	if wantsToolCache {
		toolCache = cacheDriver
	}
	primDriver := primruntool.New(repository, dialHost, selectors, localLoadOf, toolCache, vestaContext.pkSalt, nil)
	primDriver.StopBeforeTool = vestaContext.stopBeforeTool
	primDriver.StopAfterTool = vestaContext.stopAfterTool
	primDriver.StopBeforeToolSignal = vestaContext.stopBeforeSignal
	primDriver.StopAfterToolError = vestaContext.stopAfterError
	primDriver.Confirm = func(prompt string) {
		fmt.Fprintf(os.Stderr, "-- %s -- press enter to continue --\n", prompt)
		var discard string
		_, _ = fmt.Scanln(&discard)
	}
	evaluator.Register(primDriver.Primitive())

	model, err := repository.LoadModel(value.Empty, value.NewInlineText([]byte(filepath.Base(modelFile))))
	if err != nil {
		log.Fatalf("Could not load model %q: %v", modelFile, err)
	}
	if vestaContext.parseOnly {
		if _, err := repository.ParseModel(model); err != nil {
			log.Fatalf("Parse error: %v", err)
		}
		return
	}

	dot := value.NewBinding(nil)
	result, err := evaluator.ApplyModel(model, dot)
	if err != nil {
		if vestaContext.stack {
			fmt.Fprintf(os.Stderr, "%+v\n", err)
		}
		log.Fatalf("Fatal evaluation error: %v", err)
	}

	if vestaContext.result {
		fmt.Println(formatResult(result))
	}
	if vestaContext.cstats {
		fmt.Fprintln(os.Stderr, "cache lookups and FVMismatches are exported as Prometheus counters (vesta_applycache_*); see -metrics-addr")
	}
	if vestaContext.mstats {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		fmt.Fprintf(os.Stderr, "alloc=%d totalalloc=%d sys=%d numgc=%d\n", m.Alloc, m.TotalAlloc, m.Sys, m.NumGC)
	}
	if vestaContext.shipTo != "" {
		store, serr := storage.NewStore(cfg)
		if serr != nil {
			log.Errorf("Could not construct store for -shipto: %v", serr)
		} else if ref, serr := repository.ShipTo(store); serr != nil {
			log.Errorf("-shipto failed: %v", serr)
		} else {
			log.WithField("ref", ref).Info("shipto: published repository content")
			if werr := os.WriteFile(vestaContext.shipTo, []byte(ref+"\n"), 0644); werr != nil {
				log.Errorf("Could not write ref to %q: %v", vestaContext.shipTo, werr)
			}
		}
	}

	if errVal, ok := result.(value.ErrorValue); ok {
		if !errVal.Cacheable || !vestaContext.keepGoing {
			log.WithField("class", errVal.Class).Errorf("evaluation result is an error: %s", errVal.Message)
			os.Exit(1)
		}
	}
}

// dialHost resolves a chosen host (internal/hostselect.Select's result) to a
// runtool.Runner: the local machine runs in-process via os/exec, anything
// else dials the RunTool::do_it net/rpc service (spec.md §6).
func dialHost(host string) (runtool.Runner, error) {
	if host == "" || host == "localhost" {
		return runtool.Local{}, nil
	}
	return runtool.DialRemote("tcp", host)
}

// localInfoProber backs hostselect.New's InfoProber for "localhost" with a
// real golang.org/x/sys/unix probe (Uname plus Sysinfo, decoding the Utsname
// fields with unameField below); internal/runtool has no
// RunTool::get_info RPC (Runner exposes only DoIt), so a non-local candidate
// cannot be probed remotely in this workspace and is reported reachable
// with its hardware fields unset, letting hostselect's platform match fail
// closed only when a platform section actually constrains those fields. See
// DESIGN.md.
func localInfoProber(host string) (hostselect.Info, error) {
	if host != "" && host != "localhost" {
		return hostselect.Info{UniqueID: host}, nil
	}
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return hostselect.Info{}, err
	}
	info := hostselect.Info{
		UniqueID: "localhost",
		Sysname:  unameField(uts.Sysname[:]),
		Release:  unameField(uts.Release[:]),
		Version:  unameField(uts.Version[:]),
		Machine:  unameField(uts.Machine[:]),
		CPUs:     runtime.NumCPU(),
	}
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err == nil {
		info.MemKB = int64(si.Totalram) * int64(si.Unit) / 1024
	}
	return info, nil
}

// localLoadOf backs primruntool's loadOf callback for the local host with
// the kernel's load average (unix.Sysinfo's fixed-point Loads[0], scaled by
// the standard Linux SI_LOAD_SHIFT of 16 bits); a non-local host has no RPC
// to query load from in this workspace, so it reports zero load, relying on
// hostselect's saturation counters (curTools/maxTools) rather than load to
// throttle it.
func localLoadOf(host string) (float64, int) {
	cpus := runtime.NumCPU()
	if host != "" && host != "localhost" {
		return 0, cpus
	}
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0, cpus
	}
	return float64(si.Loads[0]) / 65536.0, cpus
}

func unameField[T ~byte | ~int8](b []T) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	bs := make([]byte, end)
	for i := 0; i < end; i++ {
		bs[i] = byte(b[i])
	}
	return string(bs)
}

func formatResult(v value.Value) string {
	switch t := v.(type) {
	case value.Integer:
		return fmt.Sprintf("%d", t.Value)
	case value.Boolean:
		return fmt.Sprintf("%t", t.Value)
	case value.ErrorValue:
		return fmt.Sprintf("Error(%s)", t.Message)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
