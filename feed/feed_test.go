package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/timelinesocial/timeline/ident"
	"github.com/timelinesocial/timeline/models"
	"github.com/timelinesocial/timeline/records"
	"github.com/timelinesocial/timeline/store"
	"github.com/timelinesocial/timeline/syntax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ts(offset int) string {
	return syntax.FormatDatetime(epoch.Add(time.Duration(offset) * time.Second))
}

type fixture struct {
	t    *testing.T
	ctx  context.Context
	repo *records.Repository
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:    t,
		ctx:  context.Background(),
		repo: records.NewRepository(store.NewMemStore(), slog.Default()),
	}
}

func (f *fixture) user(handle string, following ...string) {
	u := models.NewUser(handle, "pem")
	u.Following = append(u.Following, following...)
	require.NoError(f.t, records.Create(f.ctx, f.repo, ident.UserKey(handle), u))
}

// post creates a post by author at offset and records it on the author's timeline
func (f *fixture) post(author string, offset int, content string) string {
	key := ident.PostKey(author, ts(offset))
	require.NoError(f.t, records.Create(f.ctx, f.repo, key, &models.Post{
		Author:    author,
		Content:   content,
		Timestamp: ts(offset),
		Topics:    []string{},
		Likes:     []string{},
		Reposts:   []string{},
	}))
	f.interact(author, key.String(), models.ActionPost, offset)
	return key.String()
}

func (f *fixture) interact(who, postID string, action models.Action, offset int) {
	require.NoError(f.t, records.Mutate(f.ctx, f.repo, ident.UserKey(who), func(u *models.User) error {
		u.AppendInteraction(models.Interaction{Who: who, PostID: postID, Action: action, Timestamp: ts(offset)})
		return nil
	}))
}

func TestBuildScenario(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := newFixture(t)
	f.user("@alice", "@bob")
	f.user("@bob")
	p := f.post("@bob", 0, "hello")

	agg := NewAggregator(f.repo, slog.Default())
	views, err := agg.Build(f.ctx, "@alice")
	require.NoError(err)
	require.Len(views, 1)
	assert.Equal(p, views[0].ID)
	assert.Equal("hello", views[0].Content)
	assert.Equal("@bob", views[0].Who)
	assert.Equal("@bob", views[0].Author)
	assert.Equal(models.ActionPost, views[0].Action)
	assert.Equal(ts(0), views[0].CreatedAt)

	_, err = agg.Build(f.ctx, "@nobody")
	assert.True(errors.Is(err, models.ErrNotFound))
}

func TestBuildOrderAndMerge(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := newFixture(t)
	f.user("@alice", "@bob", "@carol")
	f.user("@bob")
	f.user("@carol")

	p1 := f.post("@bob", 10, "old")
	p2 := f.post("@alice", 20, "mine")
	p3 := f.post("@carol", 30, "new")
	// alice likes bob's post later: the like sorts by its own time, the view keeps the post's
	f.interact("@alice", p1, models.ActionLike, 40)

	agg := NewAggregator(f.repo, slog.Default())
	views, err := agg.Build(f.ctx, "@alice")
	require.NoError(err)
	require.Len(views, 4)

	got := []string{}
	for _, v := range views {
		got = append(got, fmt.Sprintf("%s %s %s", v.Who, v.Action, v.ID))
	}
	assert.Equal([]string{
		"@alice LIKE " + p1,
		"@carol POST " + p3,
		"@alice POST " + p2,
		"@bob POST " + p1,
	}, got)
	assert.Equal(ts(40), views[0].Timestamp)
	assert.Equal(ts(10), views[0].CreatedAt)
	assert.Equal("old", views[0].Content)
}

func TestBuildTruncatesToNewest(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := newFixture(t)
	f.user("@alice", "@bob")
	f.user("@bob")
	for i := 0; i < 10; i++ {
		f.post("@bob", i, fmt.Sprintf("post %d", i))
		f.post("@alice", 100+i, fmt.Sprintf("mine %d", i))
	}

	agg := NewAggregator(f.repo, slog.Default())
	agg.Limit = 5
	views, err := agg.Build(f.ctx, "@alice")
	require.NoError(err)
	require.Len(views, 5)
	for i, v := range views {
		assert.Equal(fmt.Sprintf("mine %d", 9-i), v.Content)
	}

	// default limit
	agg = NewAggregator(f.repo, slog.Default())
	views, err = agg.Build(f.ctx, "@alice")
	require.NoError(err)
	assert.Len(views, 20)
	assert.Equal(DefaultLimit, 127)
}

func TestBuildTiesKeepAppearanceOrder(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := newFixture(t)
	f.user("@alice", "@bob")
	f.user("@bob")
	pa := f.post("@alice", 5, "a")
	pb := f.post("@bob", 5, "b")

	views, err := NewAggregator(f.repo, slog.Default()).Build(f.ctx, "@alice")
	require.NoError(err)
	require.Len(views, 2)
	assert.Equal(pa, views[0].ID)
	assert.Equal(pb, views[1].ID)
}

func TestBuildFailures(t *testing.T) {
	assert := assert.New(t)

	f := newFixture(t)
	f.user("@alice", "@ghost")
	agg := NewAggregator(f.repo, slog.Default())

	_, err := agg.Build(f.ctx, "@alice")
	assert.True(errors.Is(err, models.ErrAggregationFailure))
	assert.Contains(err.Error(), "@ghost")

	// dangling post reference
	f.user("@dave")
	missing := ident.PostKey("@dave", ts(1)).String()
	f.interact("@dave", missing, models.ActionPost, 1)
	_, err = agg.Build(f.ctx, "@dave")
	assert.True(errors.Is(err, models.ErrAggregationFailure))
	assert.Contains(err.Error(), missing)
}
