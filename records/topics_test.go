package records

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/timelinesocial/timeline/ident"
	"github.com/timelinesocial/timeline/models"
	"github.com/timelinesocial/timeline/store"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPost(t *testing.T, r *Repository, author, ts, content string) string {
	key := ident.PostKey(author, ts)
	require.NoError(t, Create(context.Background(), r, key, &models.Post{
		Author:    author,
		Content:   content,
		Timestamp: ts,
		Topics:    []string{},
		Likes:     []string{},
		Reposts:   []string{},
	}))
	return key.String()
}

func TestIndexTopics(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	for _, st := range []store.Store{store.NewMemStore(), lwwStore{store.NewMemStore()}} {
		r := NewRepository(st, slog.Default())

		p1 := createPost(t, r, "@bob", "2024-03-01T12:00:00.000Z", "first")
		p2 := createPost(t, r, "@bob", "2024-03-01T12:00:01.000Z", "second")

		assert.Empty(r.IndexTopics(ctx, p1, []string{"news", "go"}))
		assert.Empty(r.IndexTopics(ctx, p2, []string{"news"}))

		news, err := Load[models.Topic](ctx, r, ident.TopicKey("news"))
		require.NoError(err)
		assert.Equal("news", news.Name)
		assert.Equal([]string{p1, p2}, news.Timeline)

		posts, err := r.TopicPosts(ctx, "go")
		require.NoError(err)
		require.Len(posts, 1)
		assert.Equal(p1, posts[0].ID)
		assert.Equal("first", posts[0].Content)

		_, err = r.TopicPosts(ctx, "missing")
		assert.True(errors.Is(err, models.ErrNotFound))
	}
}

func TestIndexTopicsBestEffort(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fs := &failingStore{MemStore: store.NewMemStore(), failPut: map[cid.Cid]bool{ident.TopicKey("broken"): true}}
	r := NewRepository(fs, slog.Default())
	p1 := createPost(t, r, "@bob", "2024-03-01T12:00:00.000Z", "hello")

	failed := r.IndexTopics(ctx, p1, []string{"broken", "fine"})
	assert.Equal([]string{"broken"}, failed)

	posts, err := r.TopicPosts(ctx, "fine")
	require.NoError(err)
	assert.Len(posts, 1)

	// the post itself is untouched
	_, err = Load[models.Post](ctx, r, ident.PostKey("@bob", "2024-03-01T12:00:00.000Z"))
	assert.NoError(err)
}

func TestResolvePosts(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	r := NewRepository(store.NewMemStore(), slog.Default())
	p1 := createPost(t, r, "@bob", "2024-03-01T12:00:00.000Z", "hello")
	missing := ident.PostKey("@bob", "1999-01-01T00:00:00.000Z").String()

	posts, err := r.ResolvePosts(ctx, []string{p1, p1})
	assert.NoError(err)
	assert.Len(posts, 1)
	assert.Equal("hello", posts[p1].Content)

	_, err = r.ResolvePosts(ctx, []string{p1, missing})
	assert.True(errors.Is(err, models.ErrAggregationFailure))
	assert.Contains(err.Error(), missing)

	_, err = r.ResolvePosts(ctx, []string{"garbage"})
	assert.True(errors.Is(err, models.ErrAggregationFailure))
}
