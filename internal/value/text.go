package value

import (
	"fmt"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/shortid"
)

// Text is the Text variant: either inline bytes, or a reference to an
// immutable file in the repository addressed by shortid plus its content
// tag (spec.md §3 invariant "has_text ∨ has_shortid"). The sid form avoids
// copying potentially large file contents through the evaluator's value
// graph; the content tag lets Fingerprint avoid reading the bytes back.
type Text struct {
	base

	hasInline bool
	inline    []byte

	hasSid bool
	sid    shortid.ID
	tag    fp.Tag
	name   string // optional, e.g. original basename, for diagnostics
}

// NewInlineText constructs a Text value holding bytes directly.
func NewInlineText(b []byte) Text {
	dup := make([]byte, len(b))
	copy(dup, b)
	return Text{hasInline: true, inline: dup}
}

// NewSidText constructs a Text value referring to an immutable repository
// file by shortid and content tag, optionally remembering a display name.
func NewSidText(sid shortid.ID, tag fp.Tag, name string) Text {
	return Text{hasSid: true, sid: sid, tag: tag, name: name}
}

func (v Text) Kind() Kind { return KindText }

// HasInline reports whether the value holds its bytes directly.
func (v Text) HasInline() bool { return v.hasInline }

// HasSid reports whether the value refers to a repository file.
func (v Text) HasSid() bool { return v.hasSid }

// Inline returns the inline bytes; only meaningful if HasInline is true.
func (v Text) Inline() []byte { return v.inline }

// Sid returns the shortid and content tag; only meaningful if HasSid.
func (v Text) Sid() (shortid.ID, fp.Tag, string) { return v.sid, v.tag, v.name }

func (v Text) Fingerprint() fp.Tag {
	t := kindTag(KindText)
	if v.hasInline {
		return t.Extend([]byte{0}).Extend(v.inline)
	}
	return t.Extend([]byte{1}).ExtendTag(v.tag)
}

func (v Text) WithPath(p deppath.Path) Value   { v.base = withPath(v.base, p); return v }
func (v Text) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }

func (v Text) String() string {
	if v.hasInline {
		return fmt.Sprintf("Text(inline, %d bytes)", len(v.inline))
	}
	return fmt.Sprintf("Text(sid=%s, tag=%s)", v.sid, v.tag)
}
