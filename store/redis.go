package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares records between processes through a redis server.
// CompareAndSwap is an optimistic WATCH/MULTI transaction.
type RedisStore struct {
	Client *redis.Client
	// prefix for all keys written by this store
	Prefix string
	// identifies this node in provider sets
	NodeID string
}

var _ Store = (*RedisStore)(nil)
var _ Swapper = (*RedisStore)(nil)

func NewRedisStore(ctx context.Context, redisURL, nodeID string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{
		Client: rdb,
		Prefix: "timeline/",
		NodeID: nodeID,
	}, nil
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}

func (s *RedisStore) valueKey(key cid.Cid) string {
	return s.Prefix + "values/" + key.String()
}

func (s *RedisStore) providersKey(key cid.Cid) string {
	return s.Prefix + "providers/" + key.String()
}

func (s *RedisStore) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	val, err := s.Client.Get(ctx, s.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) Put(ctx context.Context, key cid.Cid, val []byte) error {
	return s.Client.Set(ctx, s.valueKey(key), val, 0).Err()
}

func (s *RedisStore) Provide(ctx context.Context, key cid.Cid) error {
	return s.Client.SAdd(ctx, s.providersKey(key), s.NodeID).Err()
}

// Providers lists the nodes that have announced key.
func (s *RedisStore) Providers(ctx context.Context, key cid.Cid) ([]string, error) {
	return s.Client.SMembers(ctx, s.providersKey(key)).Result()
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key cid.Cid, old, val []byte) error {
	k := s.valueKey(key)
	err := s.Client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}
		if !matches(cur, exists, old) {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, val, 0)
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		// someone else wrote the key between WATCH and EXEC
		return ErrConflict
	}
	return err
}
