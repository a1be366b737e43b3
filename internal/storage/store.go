package storage

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/nicolagi/vesta/internal/config"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotImplemented = errors.New("not implemented")
)

// Key addresses a Value in a Store. Every concrete store in this package
// (disk, in-memory, S3, RPC, null, paired) is keyed the same way, so the
// layers above (internal/block, internal/repo) can be built
// against the Store interface alone and swap backends without caring which
// one is in play.
type Key string

// RandomKey generates a random sequence of length bytes and renders it as a
// hex key (so the resulting key is twice as many characters as length).
func RandomKey(length uint8) (Key, error) {
	if length == 0 {
		return "", nil
	}
	b := make([]byte, length)
	n, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	if n != int(length) {
		return "", fmt.Errorf("key of length %d required, got only %d bytes", length, n)
	}
	return Key(fmt.Sprintf("%x", b)), nil
}

// Value is the opaque byte payload stored under a Key.
type Value []byte

// Store is the minimal interface every backend in this package implements.
type Store interface {
	Get(Key) (Value, error)
	Put(Key, Value) error
	Delete(Key) error
}

// Enumerable is a Store that can also report membership and iterate all of
// its keys. DiskStore and NullStore implement it; no other package in this
// repository refers to it.
type Enumerable interface {
	Store
	Contains(Key) (bool, error)
	ForEach(func(Key) error) error
}

// NewStore constructs the configured backend (spec.md §6's [CacheServer] /
// [Repository] config sections, adapted from the teacher's config.C
// dispatch).
func NewStore(c *config.C) (Store, error) {
	switch c.Storage {
	case "disk":
		return NewDiskStore(c.DiskStoreDir), nil
	case "s3":
		return newS3Store(c)
	case "null":
		return NullStore{}, nil
	default:
		return nil, fmt.Errorf("storage.NewStore: unknown storage type %q", c.Storage)
	}
}
