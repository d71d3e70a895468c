// Package store is the client side of the shared object store: a
// last-write-wins key/value service addressed by content identifiers, with a
// separate "provide" announcement.
//
// Several backends are available (see [Open]); some of them additionally
// implement [Swapper], which the record layer uses to detect lost updates.
package store

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
)

var (
	ErrNotFound = errors.New("store: key not found")
	// returned by CompareAndSwap when the stored value differs from the expected one
	ErrConflict = errors.New("store: write conflict")
)

type Store interface {
	// Returns ErrNotFound if there is no value for key.
	Get(ctx context.Context, key cid.Cid) ([]byte, error)
	Put(ctx context.Context, key cid.Cid, val []byte) error
	// Announces this node as a source for key. Independent of Put.
	Provide(ctx context.Context, key cid.Cid) error
}

// Swapper is implemented by stores that can do a conditional write.
type Swapper interface {
	// Writes val only if the current value equals old. A nil old means the key must not exist yet.
	CompareAndSwap(ctx context.Context, key cid.Cid, old, val []byte) error
}
