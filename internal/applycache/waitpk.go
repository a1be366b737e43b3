package applycache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/vesta/internal/fp"
)

// waitKey identifies an in-flight body invocation for duplicate-work
// suppression, keyed by (pk, kind) per spec.md §4.3.
type waitKey struct {
	pk   fp.Tag
	kind CallKind
}

func newWaitKey(pk fp.Tag, kind CallKind) waitKey {
	return waitKey{pk: pk, kind: kind}
}

func (k waitKey) String() string {
	return fmt.Sprintf("%s:%s", k.pk, k.kind)
}

type waiter struct {
	mu   sync.Mutex
	cond *sync.Cond
	done bool
}

// WaitPKTable implements spec.md §4.3's duplicate-work suppression: when a
// thread enters a wait-annotated call and finds another thread already
// executing the same (pk, kind), it blocks until woken, then retries the
// Lookup (likely a Hit by then). Bounded by an LRU so a pathologically long
// run that leaks a waiter (a winner that crashed without calling
// WakeWaiting) cannot grow the table without limit; live waits are removed
// explicitly on wake and never rely on eviction for correctness.
type WaitPKTable struct {
	mu      sync.Mutex
	entries *lru.Cache[waitKey, *waiter]
}

// NewWaitPKTable constructs a table bounded at capacity entries.
func NewWaitPKTable(capacity int) *WaitPKTable {
	c, err := lru.New[waitKey, *waiter](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, which is a programmer
		// error; fall back to a reasonable default rather than panicking
		// inside a constructor.
		c, _ = lru.New[waitKey, *waiter](1024)
	}
	return &WaitPKTable{entries: c}
}

// EnterOrWait registers this call as the in-flight holder of (pk, kind) if
// none exists (returning true, "you are the winner, run the body"), or
// blocks until the existing holder calls WakeWaiting (returning false, "a
// duplicate ran or is running, retry the Lookup").
func (t *WaitPKTable) EnterOrWait(pk fp.Tag, kind CallKind) (isWinner bool) {
	key := newWaitKey(pk, kind)
	t.mu.Lock()
	if w, ok := t.entries.Get(key); ok {
		t.mu.Unlock()
		w.mu.Lock()
		for !w.done {
			w.cond.Wait()
		}
		w.mu.Unlock()
		log.WithFields(log.Fields{"pk": pk.String(), "kind": kind.String()}).
			Debug("waiting on possibly identical call: woken")
		return false
	}
	w := &waiter{}
	w.cond = sync.NewCond(&w.mu)
	t.entries.Add(key, w)
	t.mu.Unlock()
	return true
}

// WakeWaiting releases every thread blocked on (pk, kind), normal or
// exceptional exit alike (spec.md §4.3, §5 "WakeWaiting is always called in
// a finally-style path so that a crashing winner does not deadlock
// losers"). Safe to call even if no one is waiting.
func (t *WaitPKTable) WakeWaiting(pk fp.Tag, kind CallKind) {
	key := newWaitKey(pk, kind)
	t.mu.Lock()
	w, ok := t.entries.Get(key)
	if ok {
		t.entries.Remove(key)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	w.mu.Lock()
	w.done = true
	w.cond.Broadcast()
	w.mu.Unlock()
}
