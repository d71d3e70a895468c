package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ipfs/go-cid"
)

const (
	pebbleValuePrefix    = "v/"
	pebbleProvidedPrefix = "p/"
)

// PebbleStore keeps records in a local pebble database. Pebble is single-process, so a process-local mutex is enough to make CompareAndSwap atomic.
type PebbleStore struct {
	db *pebble.DB

	lk sync.Mutex
}

var _ Store = (*PebbleStore)(nil)
var _ Swapper = (*PebbleStore)(nil)

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func pebbleKey(prefix string, key cid.Cid) []byte {
	return append([]byte(prefix), key.Bytes()...)
}

func (s *PebbleStore) get(k []byte) ([]byte, error) {
	val, closer, err := s.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// val is only valid until closer is closed
	out := bytes.Clone(val)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PebbleStore) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	return s.get(pebbleKey(pebbleValuePrefix, key))
}

func (s *PebbleStore) Put(ctx context.Context, key cid.Cid, val []byte) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.db.Set(pebbleKey(pebbleValuePrefix, key), val, pebble.Sync)
}

// Provide records the announcement time; the local database is its own only provider.
func (s *PebbleStore) Provide(ctx context.Context, key cid.Cid) error {
	ts := []byte(time.Now().UTC().Format(time.RFC3339))
	return s.db.Set(pebbleKey(pebbleProvidedPrefix, key), ts, pebble.NoSync)
}

func (s *PebbleStore) CompareAndSwap(ctx context.Context, key cid.Cid, old, val []byte) error {
	k := pebbleKey(pebbleValuePrefix, key)

	s.lk.Lock()
	defer s.lk.Unlock()

	cur, err := s.get(k)
	exists := true
	if errors.Is(err, ErrNotFound) {
		exists = false
	} else if err != nil {
		return err
	}
	if !matches(cur, exists, old) {
		return ErrConflict
	}
	return s.db.Set(k, val, pebble.Sync)
}
