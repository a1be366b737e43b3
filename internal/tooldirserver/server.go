// Package tooldirserver implements spec.md §4.6's ToolDirServer: while
// run_tool runs, the repository presents the synthesized ./root binding as
// a readable filesystem to the tool, and every lookup/list callback against
// that view must record the correct kind of dependency into the call's
// accumulated DPaths. SPEC_FULL §3 grounds the handle table and
// method-per-opcode dispatch on the teacher's p/srv Srv/Fid/Req shape
// (github.com/lionkov/go9p), and the list-reply framing on
// internal/p9util.DirBuffer's name/type/shortid-triple, zero-terminated
// encoding; this package does not itself speak 9P (spec.md §6's callback
// interface is a private RPC, not a kernel mount), so the wire constants
// below exist to document the numbering a real transport would reuse, not
// to be marshaled by this package.
package tooldirserver

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/shortid"
	"github.com/nicolagi/vesta/internal/value"
)

// Wire-level procedure numbers and reply discriminators (spec.md §6:
// "interface version 3").
const (
	ProcLookup      = 0
	ProcLookupIndex = 1
	ProcOldList     = 2
	ProcList        = 3

	InterfaceVersion = 3
)

// EntryKind is the reply discriminator for a directory entry.
type EntryKind uint8

const (
	EdNone EntryKind = iota
	EdDirectory
	EdFile
	EdDevice
)

// Handle is the opaque 8-byte directory handle of spec.md §4.6 item 1:
// (runtool_call_id << 20) | local_seq.
type Handle uint64

// NewHandle packs a call id and a sequence number local to that call.
func NewHandle(callID int64, localSeq uint32) Handle {
	return Handle(uint64(callID)<<20 | uint64(localSeq&0xfffff))
}

func (h Handle) CallID() int64    { return int64(uint64(h) >> 20) }
func (h Handle) LocalSeq() uint32 { return uint32(uint64(h) & 0xfffff) }

// DirInfo is the per-handle state spec.md §4.6 item 2 describes: the
// binding a handle denotes, the dependency path it lives at, and the
// coarse-selector flags controlling how finely lookups into it are
// recorded.
type DirInfo struct {
	Binding     value.Binding
	DepPath     deppath.Path
	Coarse      bool
	CoarseNames bool

	recordedCoarse bool
	activity       bool
}

// Entry is one (name, kind, shortid) triple of a list reply (spec.md §6);
// Handle is set for EdDirectory entries so a caller can recurse without a
// separate Lookup round-trip, and Value carries the looked-up or listed
// Value itself so a caller materializing a real filesystem view does not
// need to re-resolve it.
type Entry struct {
	Name   string
	Kind   EntryKind
	Sid    shortid.ID
	Handle Handle
	Value  value.Value
}

// call is one active run_tool invocation's handle table and accumulated
// dependency set, guarded by its own mutex (spec.md §4.6's "per-call
// DirInfos has its own mutex").
type call struct {
	mu      sync.Mutex
	dirs    map[Handle]*DirInfo
	order   []Handle
	nextSeq uint32
	deps    deppath.DPaths
}

// Server is the global table of active run_tool calls (spec.md §5's
// "runToolCalls is a global indexed map... guarded by its own mutex").
type Server struct {
	mu     sync.Mutex
	calls  map[int64]*call
	nextID int64
}

// New constructs an empty Server.
func New() *Server {
	return &Server{calls: make(map[int64]*call)}
}

// Register starts a new call, installing root as handle (id, 0), and
// returns the call id and root handle (spec.md §4.7 step 3).
func (s *Server) Register(root value.Binding, rootPath deppath.Path, coarse bool) (int64, Handle) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	c := &call{dirs: make(map[Handle]*DirInfo), nextSeq: 1}
	rootHandle := NewHandle(id, 0)
	c.dirs[rootHandle] = &DirInfo{Binding: root, DepPath: rootPath, Coarse: coarse}
	c.order = append(c.order, rootHandle)

	s.mu.Lock()
	s.calls[id] = c
	s.mu.Unlock()
	return id, rootHandle
}

func (s *Server) call(id int64) (*call, error) {
	s.mu.Lock()
	c, ok := s.calls[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("tooldirserver: unknown call %d", id)
	}
	return c, nil
}

// Lookup implements spec.md §4.6 items 3-5 for a single name under handle.
func (s *Server) Lookup(callID int64, handle Handle, name string) (Entry, error) {
	c, err := s.call(callID)
	if err != nil {
		return Entry{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, ok := c.dirs[handle]
	if !ok {
		return Entry{}, fmt.Errorf("tooldirserver: unknown handle %d", handle)
	}
	dir.activity = true

	if dir.Coarse && !dir.recordedCoarse {
		// Item 5: below a coarse selector, the directory itself becomes a
		// Norm dep the first time any lookup enters it; no per-child dep
		// follows, coarse or not.
		c.deps = c.deps.Put(dir.DepPath.WithKind(deppath.Norm), dir.Binding)
		dir.recordedCoarse = true
	}

	// lookupNoDpnd: a raw Binding.Lookup records nothing on its own, so
	// this is already the "without recording a dep via Value operations"
	// resolution item 3 asks for.
	field, present := dir.Binding.Lookup(name)
	if !present {
		if !dir.Coarse {
			if dir.CoarseNames {
				c.deps = c.deps.Put(dir.DepPath.WithKind(deppath.BindingLen), dir.Binding)
			} else {
				c.deps = c.deps.Put(dir.DepPath.Extend(deppath.Arc(name), deppath.Bang), field)
			}
		}
		return Entry{Name: name, Kind: EdNone}, nil
	}

	childPath := dir.DepPath.Extend(deppath.Arc(name), deppath.Norm)
	if b, ok := field.(value.Binding); ok {
		childHandle := NewHandle(callID, c.nextSeq)
		c.nextSeq++
		c.dirs[childHandle] = &DirInfo{Binding: b, DepPath: childPath, Coarse: dir.Coarse, CoarseNames: dir.CoarseNames}
		c.order = append(c.order, childHandle)
		return Entry{Name: name, Kind: EdDirectory, Handle: childHandle, Value: b}, nil
	}

	if !dir.Coarse {
		c.deps = c.deps.Put(childPath, field)
	}
	sid, hasSid := fileSid(field)
	if !hasSid {
		return Entry{Name: name, Kind: EdFile, Value: field}, nil
	}
	return Entry{Name: name, Kind: EdFile, Sid: sid, Value: field}, nil
}

// List implements item 4's "list -> BindingLen dep on the directory" rule,
// returning every current field as an Entry; directories are allocated a
// fresh handle exactly as Lookup does, so a caller walking the whole tree
// eagerly (SPEC_FULL §4's volatile-directory materialization, which has no
// real on-demand mount to lazily serve a remote tool process from) can
// recurse without a second round-trip per name.
func (s *Server) List(callID int64, handle Handle) ([]Entry, error) {
	c, err := s.call(callID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, ok := c.dirs[handle]
	if !ok {
		return nil, fmt.Errorf("tooldirserver: unknown handle %d", handle)
	}
	dir.activity = true

	if dir.Coarse {
		if !dir.recordedCoarse {
			c.deps = c.deps.Put(dir.DepPath.WithKind(deppath.Norm), dir.Binding)
			dir.recordedCoarse = true
		}
	} else {
		c.deps = c.deps.Put(dir.DepPath.WithKind(deppath.BindingLen), dir.Binding)
	}

	entries := make([]Entry, 0, len(dir.Binding.Fields))
	for _, f := range dir.Binding.Fields {
		if b, ok := f.Value.(value.Binding); ok {
			childHandle := NewHandle(callID, c.nextSeq)
			c.nextSeq++
			childPath := dir.DepPath.Extend(deppath.Arc(f.Name), deppath.Norm)
			c.dirs[childHandle] = &DirInfo{Binding: b, DepPath: childPath, Coarse: dir.Coarse, CoarseNames: dir.CoarseNames}
			c.order = append(c.order, childHandle)
			entries = append(entries, Entry{Name: f.Name, Kind: EdDirectory, Handle: childHandle, Value: b})
			continue
		}
		sid, hasSid := fileSid(f.Value)
		e := Entry{Name: f.Name, Kind: EdFile, Value: f.Value}
		if hasSid {
			e.Sid = sid
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Finish deregisters callID and returns the accumulated dependency set,
// first applying item 6's rule: every DirInfo handed out as a child but
// whose own handle never received a Lookup/List call gets a Type dep,
// recording "existed and was a directory".
func (s *Server) Finish(callID int64) (deppath.DPaths, error) {
	c, err := s.call(callID)
	if err != nil {
		return deppath.DPaths{}, err
	}
	c.mu.Lock()
	for _, h := range c.order {
		dir := c.dirs[h]
		if !dir.activity && h.LocalSeq() != 0 {
			c.deps = c.deps.Put(dir.DepPath.WithKind(deppath.Type), dir.Binding)
		}
	}
	deps := c.deps
	c.mu.Unlock()

	s.mu.Lock()
	delete(s.calls, callID)
	s.mu.Unlock()
	return deps, nil
}

func fileSid(v value.Value) (shortid.ID, bool) {
	t, ok := v.(value.Text)
	if !ok || !t.HasSid() {
		return shortid.Null, false
	}
	sid, _, _ := t.Sid()
	return sid, true
}

// IsCoreDumpName reports whether name matches pattern, flagging it as a
// potential core dump (spec.md §4.6's "core(\.[0-9]+)?"). The pattern comes
// from the single config.C.CoreDumpPattern setting, whose default is the
// anchored, case-insensitive form `(?i)\bcore(\.\d+)?$`.
func IsCoreDumpName(pattern *regexp.Regexp, name string) bool {
	return pattern != nil && pattern.MatchString(name)
}
