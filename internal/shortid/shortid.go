// Package shortid defines the 32-bit compact file identifier used by the
// repository client to address immutable byte streams (spec.md glossary:
// "Shortid"). It is a tiny, dependency-free package so that both the value
// package (Text's sid form) and the repo package (the file/directory object
// store) can refer to the same type without creating an import cycle.
package shortid

import "fmt"

// ID is a 32-bit compact identifier of a file in the repository.
type ID uint32

// Null is the identifier of no file.
const Null ID = 0

func (id ID) String() string {
	return fmt.Sprintf("%08x", uint32(id))
}

func (id ID) IsNull() bool {
	return id == Null
}
