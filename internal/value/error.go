package value

import (
	"fmt"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
)

// ErrorClass mirrors the taxonomy of spec.md §7, so that callers (e.g. the
// CLI driver deciding an exit code, or ApplyCache deciding cacheability) can
// discriminate without string-matching the message.
type ErrorClass uint8

const (
	ClassType ErrorClass = iota
	ClassDomain
	ClassCacheProtocol
	ClassResource
	ClassRemote
	ClassPickle
	ClassRuntool
	ClassConfig
)

// ErrorValue is the Error variant: it propagates through the evaluator like
// any other value, carrying dependency sets, but an Error with
// !Cacheable is fatal (spec.md §3) and aborts evaluation rather than being
// silently returned as a result.
type ErrorValue struct {
	base
	Message   string
	Class     ErrorClass
	Cacheable bool
}

// NewError constructs a cacheable-by-default error. Cacheable errors (e.g.
// "first argument of _min must be integer" given fixed arguments) can be
// memoized like any other result: the same bad inputs deterministically
// reproduce the same error.
func NewError(class ErrorClass, format string, args ...interface{}) ErrorValue {
	return ErrorValue{Message: fmt.Sprintf(format, args...), Class: class, Cacheable: true}
}

// NewFatalError constructs a non-cacheable error: one that must abort
// evaluation (spec.md §7's "Resource"/"Remote" classes, lease expiry,
// PrefixTbl overflow, SRPC loss).
func NewFatalError(class ErrorClass, format string, args ...interface{}) ErrorValue {
	return ErrorValue{Message: fmt.Sprintf(format, args...), Class: class, Cacheable: false}
}

func (v ErrorValue) Kind() Kind { return KindError }

func (v ErrorValue) Fingerprint() fp.Tag {
	return kindTag(KindError).Extend([]byte{byte(v.Class)}).Extend([]byte(v.Message))
}

func (v ErrorValue) WithPath(p deppath.Path) Value   { v.base = withPath(v.base, p); return v }
func (v ErrorValue) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }

func (v ErrorValue) Error() string { return v.Message }
