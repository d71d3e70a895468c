package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/timelinesocial/timeline/ident"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercises the behavior every backend must share
func testStoreContract(t *testing.T, s Store) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	k := ident.UserKey("@alice")
	other := ident.UserKey("@bob")

	_, err := s.Get(ctx, k)
	assert.True(errors.Is(err, ErrNotFound))

	require.NoError(s.Put(ctx, k, []byte("one")))
	val, err := s.Get(ctx, k)
	require.NoError(err)
	assert.Equal([]byte("one"), val)

	// last write wins
	require.NoError(s.Put(ctx, k, []byte("two")))
	val, err = s.Get(ctx, k)
	require.NoError(err)
	assert.Equal([]byte("two"), val)

	// returned slices are not aliased to stored values
	val[0] = 'X'
	val, err = s.Get(ctx, k)
	require.NoError(err)
	assert.Equal([]byte("two"), val)

	assert.NoError(s.Provide(ctx, k))
	assert.NoError(s.Provide(ctx, k))

	_, err = s.Get(ctx, other)
	assert.True(errors.Is(err, ErrNotFound))

	sw, ok := s.(Swapper)
	if !ok {
		return
	}
	assert.True(errors.Is(sw.CompareAndSwap(ctx, k, nil, []byte("three")), ErrConflict))
	assert.True(errors.Is(sw.CompareAndSwap(ctx, k, []byte("one"), []byte("three")), ErrConflict))
	assert.NoError(sw.CompareAndSwap(ctx, k, []byte("two"), []byte("three")))
	val, err = s.Get(ctx, k)
	require.NoError(err)
	assert.Equal([]byte("three"), val)

	assert.True(errors.Is(sw.CompareAndSwap(ctx, other, []byte("x"), []byte("y")), ErrConflict))
	_, err = s.Get(ctx, other)
	assert.True(errors.Is(err, ErrNotFound))
	assert.NoError(sw.CompareAndSwap(ctx, other, nil, []byte("created")))
	assert.True(errors.Is(sw.CompareAndSwap(ctx, other, nil, []byte("again")), ErrConflict))
}

// concurrent swappers on one key: exactly one wins each round
func testSwapContention(t *testing.T, s Store) {
	assert := assert.New(t)
	ctx := context.Background()
	sw := s.(Swapper)

	k := ident.TopicKey("contended")
	assert.NoError(s.Put(ctx, k, []byte("0")))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := sw.CompareAndSwap(ctx, k, []byte("0"), []byte(fmt.Sprintf("%d", i+1)))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.True(errors.Is(err, ErrConflict))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(1, wins)
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	testStoreContract(t, s)
	testSwapContention(t, NewMemStore())

	assert.True(t, s.Provided(ident.UserKey("@alice")))
	assert.False(t, s.Provided(ident.UserKey("@carol")))
}

func TestPebbleStore(t *testing.T) {
	s, err := NewPebbleStore(filepath.Join(t.TempDir(), "pebble"))
	require.NoError(t, err)
	defer s.Close()
	testStoreContract(t, s)
	testSwapContention(t, s)
}

func TestGormStoreSqlite(t *testing.T) {
	s, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "store.sqlite"), OpenOptions{NodeID: "test"})
	require.NoError(t, err)
	defer s.(io.Closer).Close()
	testStoreContract(t, s)
	testSwapContention(t, s)
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("TIMELINE_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TIMELINE_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, redisURL, "test")
	require.NoError(t, err)
	defer s.Close()
	s.Prefix = fmt.Sprintf("timeline-test/%s/", t.Name())
	s.Client.Del(ctx, s.valueKey(ident.UserKey("@alice")), s.valueKey(ident.UserKey("@bob")), s.valueKey(ident.TopicKey("contended")))

	testStoreContract(t, s)
	testSwapContention(t, s)

	providers, err := s.Providers(ctx, ident.UserKey("@alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"test"}, providers)
}

func TestOpen(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s, err := Open(ctx, "mem://", OpenOptions{})
	assert.NoError(err)
	assert.IsType(&MemStore{}, s)

	s, err = Open(ctx, "https://dht.example.com/", OpenOptions{})
	assert.NoError(err)
	assert.Equal("https://dht.example.com", s.(*RemoteStore).Host)

	s, err = Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "traced.sqlite"), OpenOptions{DBTracing: true})
	assert.NoError(err)
	assert.IsType(&GormStore{}, s)

	_, err = Open(ctx, "ftp://example.com", OpenOptions{})
	assert.Error(err)
	_, err = Open(ctx, "no-scheme", OpenOptions{})
	assert.Error(err)
	_, err = Open(ctx, "pebble://", OpenOptions{})
	assert.Error(err)
}
