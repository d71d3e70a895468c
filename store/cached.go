package store

import (
	"bytes"
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/ipfs/go-cid"
)

// CachedStore is a read-through cache in front of another store. Writes made through this process evict the key; writes made elsewhere are visible once the entry expires.
type CachedStore struct {
	Inner Store
	Data  *expirable.LRU[cid.Cid, []byte]
}

// NewCachedStore wraps inner. The returned store implements Swapper if inner does.
func NewCachedStore(inner Store, capacity int, ttl time.Duration) Store {
	cs := &CachedStore{
		Inner: inner,
		Data:  expirable.NewLRU[cid.Cid, []byte](capacity, nil, ttl),
	}
	if sw, ok := inner.(Swapper); ok {
		return &cachedSwapStore{CachedStore: cs, swapper: sw}
	}
	return cs
}

func (s *CachedStore) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	if v, ok := s.Data.Get(key); ok {
		cacheHits.Inc()
		return bytes.Clone(v), nil
	}
	cacheMisses.Inc()
	v, err := s.Inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.Data.Add(key, bytes.Clone(v))
	return v, nil
}

func (s *CachedStore) Put(ctx context.Context, key cid.Cid, val []byte) error {
	s.Data.Remove(key)
	return s.Inner.Put(ctx, key, val)
}

func (s *CachedStore) Provide(ctx context.Context, key cid.Cid) error {
	return s.Inner.Provide(ctx, key)
}

type cachedSwapStore struct {
	*CachedStore
	swapper Swapper
}

func (s *cachedSwapStore) CompareAndSwap(ctx context.Context, key cid.Cid, old, val []byte) error {
	// evict on conflict too: the cached copy is evidently stale
	s.Data.Remove(key)
	return s.swapper.CompareAndSwap(ctx, key, old, val)
}
