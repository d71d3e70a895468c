package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/timelinesocial/timeline/ident"
	"github.com/timelinesocial/timeline/models"
	"github.com/timelinesocial/timeline/store"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hides the Swapper capability of the wrapped store
type lwwStore struct {
	store.Store
}

// fails writes to chosen keys
type failingStore struct {
	*store.MemStore
	failPut     map[cid.Cid]bool
	failProvide bool
}

var errInjected = errors.New("injected failure")

func (s *failingStore) Put(ctx context.Context, key cid.Cid, val []byte) error {
	if s.failPut[key] {
		return errInjected
	}
	return s.MemStore.Put(ctx, key, val)
}

func (s *failingStore) CompareAndSwap(ctx context.Context, key cid.Cid, old, val []byte) error {
	if s.failPut[key] {
		return errInjected
	}
	return s.MemStore.CompareAndSwap(ctx, key, old, val)
}

func (s *failingStore) Provide(ctx context.Context, key cid.Cid) error {
	if s.failProvide {
		return errInjected
	}
	return s.MemStore.Provide(ctx, key)
}

func TestLoadCreateMutate(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	mem := store.NewMemStore()
	r := NewRepository(mem, slog.Default())
	key := ident.UserKey("@alice")

	_, err := Load[models.User](ctx, r, key)
	assert.True(errors.Is(err, models.ErrNotFound))
	assert.True(errors.Is(Mutate(ctx, r, key, func(u *models.User) error { return nil }), models.ErrNotFound))

	require.NoError(Create(ctx, r, key, models.NewUser("@alice", "pem")))
	assert.True(mem.Provided(key))

	err = Create(ctx, r, key, models.NewUser("@alice", "other"))
	assert.True(errors.Is(err, models.ErrAlreadyExists))

	require.NoError(Mutate(ctx, r, key, func(u *models.User) error {
		return u.AddFollowing("@bob")
	}))
	u, err := Load[models.User](ctx, r, key)
	require.NoError(err)
	assert.Equal("pem", u.PublicKey)
	assert.Equal([]string{"@bob"}, u.Following)

	// guard failures abort without writing
	err = Mutate(ctx, r, key, func(u *models.User) error {
		u.PublicKey = "changed"
		return u.AddFollowing("@bob")
	})
	assert.True(errors.Is(err, models.ErrDomainViolation))
	u, err = Load[models.User](ctx, r, key)
	require.NoError(err)
	assert.Equal("pem", u.PublicKey)
}

func TestCreateWithoutSwap(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	r := NewRepository(lwwStore{store.NewMemStore()}, slog.Default())
	key := ident.UserKey("@alice")
	assert.NoError(Create(ctx, r, key, models.NewUser("@alice", "one")))
	// unconditional: the caller is responsible for the existence check
	assert.NoError(Create(ctx, r, key, models.NewUser("@alice", "two")))

	u, err := Load[models.User](ctx, r, key)
	assert.NoError(err)
	assert.Equal("two", u.PublicKey)
}

func TestMutateContention(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	r := NewRepository(store.NewMemStore(), slog.Default())
	r.MaxSwapAttempts = 100
	key := ident.TopicKey("busy")
	require.NoError(Create(ctx, r, key, &models.Topic{Name: "busy", Timeline: []string{}}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := Mutate(ctx, r, key, func(t *models.Topic) error {
				t.Timeline = append(t.Timeline, fmt.Sprintf("post-%d", i))
				return nil
			})
			assert.NoError(err)
		}(i)
	}
	wg.Wait()

	topic, err := Load[models.Topic](ctx, r, key)
	require.NoError(err)
	assert.Len(topic.Timeline, 10)
}

func TestMutateGivesUp(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mem := store.NewMemStore()
	r := NewRepository(mem, slog.Default())
	r.MaxSwapAttempts = 3
	key := ident.TopicKey("flapping")
	assert.NoError(Create(ctx, r, key, &models.Topic{Name: "flapping"}))

	calls := 0
	err := Mutate(ctx, r, key, func(t *models.Topic) error {
		calls++
		// a concurrent writer sneaks in every time
		mem.Put(ctx, key, []byte(fmt.Sprintf(`{"name":"flapping","timeline":["other-%d"]}`, calls)))
		t.Timeline = append(t.Timeline, "mine")
		return nil
	})
	assert.True(errors.Is(err, models.ErrStoreFailure))
	assert.True(errors.Is(err, store.ErrConflict))
	assert.Equal(3, calls)
}

func TestStoreFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	key := ident.UserKey("@alice")
	fs := &failingStore{MemStore: store.NewMemStore(), failPut: map[cid.Cid]bool{key: true}, failProvide: true}
	r := NewRepository(fs, slog.Default())

	err := Create(ctx, r, key, models.NewUser("@alice", "pem"))
	assert.True(errors.Is(err, models.ErrStoreFailure))

	// announcement failures never surface
	other := ident.UserKey("@bob")
	assert.NoError(Create(ctx, r, other, models.NewUser("@bob", "pem")))
	assert.False(fs.Provided(other))

	// a corrupt record is a store failure, not a missing one
	fs.MemStore.Put(ctx, ident.UserKey("@carol"), []byte("{not json"))
	_, err = Load[models.User](ctx, r, ident.UserKey("@carol"))
	assert.True(errors.Is(err, models.ErrStoreFailure))
}
