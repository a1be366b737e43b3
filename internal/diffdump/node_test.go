package diffdump_test

import (
	"testing"

	"github.com/nicolagi/vesta/internal/diffdump"
)

func TestByteNodeSameAs(t *testing.T) {
	a := diffdump.ByteNode("some text")
	b := diffdump.ByteNode("other text")
	assertNotSame(t, a, b)
	assertSame(t, a, a)
	assertSame(t, b, b)
	assertSame(t, a, diffdump.ByteNode("some text"))
	assertNotSame(t, a, (diffdump.ByteNode)(nil))
	assertNotSame(t, a, diffdump.StringNode("some text"))
}

func TestByteNodeContent(t *testing.T) {
	node := diffdump.ByteNode("some text")
	content, err := node.Content()
	if err != nil {
		t.Error(err)
	}
	if got, want := content, "some text"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestStringNodeSameAs(t *testing.T) {
	a := diffdump.StringNode("some text")
	b := diffdump.StringNode("other text")
	assertNotSame(t, a, b)
	assertSame(t, a, a)
	assertSame(t, b, b)
	assertSame(t, a, diffdump.StringNode("some text"))
	assertNotSame(t, a, (diffdump.ByteNode)(nil))
	assertNotSame(t, a, diffdump.ByteNode{})
}

func TestStringNodeContent(t *testing.T) {
	node := diffdump.StringNode("some text")
	content, err := node.Content()
	if err != nil {
		t.Error(err)
	}
	if got, want := content, "some text"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func assertSame(t *testing.T, a, b diffdump.Node) {
	t.Helper()
	assertComparison(t, a, b, true)
	assertComparison(t, b, a, true)
}

func assertNotSame(t *testing.T, a, b diffdump.Node) {
	t.Helper()
	assertComparison(t, a, b, false)
	assertComparison(t, b, a, false)
}

func assertComparison(t *testing.T, a, b diffdump.Node, want bool) {
	t.Helper()
	got, err := a.SameAs(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %t, want %t", got, want)
	}
}
