package value

// Context is the evaluation environment: an ordered list of (name, Value)
// bindings, looked up by first match (spec.md §3). Contexts are built as a
// persistent singly-linked list so that extending a context (binding one
// more name) is O(1) and structurally shares the rest with whoever else
// holds the unextended context -- this is what makes "snipping" a closure's
// own name out of its captured context (spec.md §9) an O(k) operation
// (k = position of the name) rather than an O(n) copy.
type Context struct {
	head *contextNode
}

type contextNode struct {
	name  string
	value Value
	next  *contextNode
}

// Empty is the empty context.
var Empty = Context{}

// Extend returns a new context with (name, v) bound in front of c, shading
// any earlier binding of the same name without removing it.
func (c Context) Extend(name string, v Value) Context {
	return Context{head: &contextNode{name: name, value: v, next: c.head}}
}

// Lookup performs the first-match linear scan spec.md §3 describes. ok is
// false if name is not bound anywhere in the context.
func (c Context) Lookup(name string) (Value, bool) {
	for n := c.head; n != nil; n = n.next {
		if n.name == name {
			return n.value, true
		}
	}
	return nil, false
}

// Without returns a copy of c with every binding of name removed. Used to
// break a closure's self-reference before computing its captured context
// (spec.md §3 "context excludes the function's own name"; §9 "Cyclic
// ownership"). Nodes after the last occurrence of name are shared with c
// unchanged; only the prefix up to and including matches is rebuilt.
func (c Context) Without(name string) Context {
	if !c.contains(name) {
		return c
	}
	var last *contextNode
	for n := c.head; n != nil; n = n.next {
		if n.name == name {
			last = n
		}
	}
	var prefix []contextNode
	n := c.head
	for n != last.next {
		if n.name != name {
			prefix = append(prefix, contextNode{name: n.name, value: n.value})
		}
		n = n.next
	}
	tail := last.next
	for i := len(prefix) - 1; i >= 0; i-- {
		node := prefix[i]
		node.next = tail
		nn := node
		tail = &nn
	}
	return Context{head: tail}
}

func (c Context) contains(name string) bool {
	for n := c.head; n != nil; n = n.next {
		if n.name == name {
			return true
		}
	}
	return false
}

// Names returns the free-variable-restriction helper: names bound in c, in
// binding order (most recently bound first), deduplicated by first
// occurrence. Used when a function literal captures ctx restricted to its
// free variables (spec.md §4.2 "Function literal").
func (c Context) Names() []string {
	seen := make(map[string]bool)
	var out []string
	for n := c.head; n != nil; n = n.next {
		if !seen[n.name] {
			seen[n.name] = true
			out = append(out, n.name)
		}
	}
	return out
}

// Restrict returns a new context containing only the bindings (in original
// relative order, most-recent-first) for names in the given set.
func (c Context) Restrict(names map[string]bool) Context {
	var entries []contextNode
	seen := make(map[string]bool)
	for n := c.head; n != nil; n = n.next {
		if names[n.name] && !seen[n.name] {
			seen[n.name] = true
			entries = append(entries, contextNode{name: n.name, value: n.value})
		}
	}
	var tail *contextNode
	for i := len(entries) - 1; i >= 0; i-- {
		node := entries[i]
		node.next = tail
		nn := node
		tail = &nn
	}
	return Context{head: tail}
}
