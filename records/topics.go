package records

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/timelinesocial/timeline/ident"
	"github.com/timelinesocial/timeline/models"

	"golang.org/x/sync/errgroup"
)

// IndexTopics appends postID to the timeline of every named topic, creating topics on first use.
//
// Each topic is independent and best-effort: failures are logged and counted, never returned, and never undo the post or the other topics. The names of topics that could not be updated are returned.
func (r *Repository) IndexTopics(ctx context.Context, postID string, topics []string) []string {
	var mu sync.Mutex
	var failed []string

	var eg errgroup.Group
	eg.SetLimit(max(r.Concurrency, 1))
	for _, name := range topics {
		eg.Go(func() error {
			if err := r.indexTopic(ctx, name, postID); err != nil {
				topicIndexFailures.Inc()
				r.Logger.Warn("failed to index post under topic", "topic", name, "post", postID, "err", err)
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
			}
			return nil
		})
	}
	eg.Wait()
	return failed
}

func (r *Repository) indexTopic(ctx context.Context, name, postID string) error {
	key := ident.TopicKey(name)
	appendPost := func(t *models.Topic) error {
		t.Timeline = append(t.Timeline, postID)
		return nil
	}

	err := Mutate(ctx, r, key, appendPost)
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	err = Create(ctx, r, key, &models.Topic{Name: name, Timeline: []string{postID}})
	if errors.Is(err, models.ErrAlreadyExists) {
		// lost a race with another first post for this topic
		return Mutate(ctx, r, key, appendPost)
	}
	return err
}

// ResolvePosts loads each distinct post id once, concurrently. Any id that can't be loaded aborts the whole call with models.ErrAggregationFailure naming it.
func (r *Repository) ResolvePosts(ctx context.Context, ids []string) (map[string]*models.Post, error) {
	out := make(map[string]*models.Post, len(ids))
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(r.Concurrency, 1))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		eg.Go(func() error {
			key, err := ident.ParsePostKey(id)
			if err != nil {
				return fmt.Errorf("%w: post %s: %v", models.ErrAggregationFailure, id, err)
			}
			post, err := Load[models.Post](ctx, r, key)
			if err != nil {
				return fmt.Errorf("%w: post %s: %v", models.ErrAggregationFailure, id, err)
			}
			mu.Lock()
			out[id] = post
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// TopicPosts returns the posts filed under a topic, in indexing order.
func (r *Repository) TopicPosts(ctx context.Context, name string) ([]models.IdentifiedPost, error) {
	topic, err := Load[models.Topic](ctx, r, ident.TopicKey(name))
	if err != nil {
		return nil, err
	}
	posts, err := r.ResolvePosts(ctx, topic.Timeline)
	if err != nil {
		return nil, err
	}
	out := make([]models.IdentifiedPost, 0, len(topic.Timeline))
	for _, id := range topic.Timeline {
		out = append(out, models.IdentifiedPost{ID: id, Post: *posts[id]})
	}
	return out, nil
}
