package store

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by KV.Get for a missing key.
	ErrNotFound = errors.New("store: record not found")
	// ErrVersionConflict is returned when a record changed under a
	// read-modify-write cycle.
	ErrVersionConflict = errors.New("store: record was modified concurrently")
)

// KV is the storage engine contract. Values are opaque bytes.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Key joins escaped path segments.
func Key(segments ...string) string {
	esc := make([]string, len(segments))
	for i, s := range segments {
		esc[i] = url.PathEscape(s)
	}
	return strings.Join(esc, "/")
}

// Prefix is Key with a trailing separator, for listing a subtree.
func Prefix(segments ...string) string { return Key(segments...) + "/" }
