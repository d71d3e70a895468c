package store

import (
	"bytes"
	"context"

	"github.com/ipfs/go-cid"
	"github.com/puzpuzpuz/xsync/v3"
)

// In-process store, used for tests and single-node development.
type MemStore struct {
	data     *xsync.MapOf[string, []byte]
	provided *xsync.MapOf[string, struct{}]
}

var _ Store = (*MemStore)(nil)
var _ Swapper = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		data:     xsync.NewMapOf[string, []byte](),
		provided: xsync.NewMapOf[string, struct{}](),
	}
}

func (s *MemStore) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	v, ok := s.data.Load(key.KeyString())
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (s *MemStore) Put(ctx context.Context, key cid.Cid, val []byte) error {
	s.data.Store(key.KeyString(), bytes.Clone(val))
	return nil
}

func (s *MemStore) Provide(ctx context.Context, key cid.Cid) error {
	s.provided.Store(key.KeyString(), struct{}{})
	return nil
}

// Provided reports whether key has been announced.
func (s *MemStore) Provided(key cid.Cid) bool {
	_, ok := s.provided.Load(key.KeyString())
	return ok
}

func (s *MemStore) CompareAndSwap(ctx context.Context, key cid.Cid, old, val []byte) error {
	swapped := false
	s.data.Compute(key.KeyString(), func(cur []byte, loaded bool) ([]byte, bool) {
		if !matches(cur, loaded, old) {
			if !loaded {
				// Compute would otherwise insert the zero value
				return nil, true
			}
			return cur, false
		}
		swapped = true
		return bytes.Clone(val), false
	})
	if !swapped {
		return ErrConflict
	}
	return nil
}

// matches reports whether the current state of a key is the expected one.
func matches(cur []byte, exists bool, old []byte) bool {
	if old == nil {
		return !exists
	}
	return exists && bytes.Equal(cur, old)
}
