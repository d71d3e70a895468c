package social

import (
	"context"
	"fmt"

	"github.com/timelinesocial/timeline/feed"
	"github.com/timelinesocial/timeline/ident"
	"github.com/timelinesocial/timeline/models"
	"github.com/timelinesocial/timeline/records"
	"github.com/timelinesocial/timeline/syntax"
)

func (s *Service) User(ctx context.Context, handle string) (*models.User, error) {
	return s.loadUser(ctx, handle)
}

// Post looks up a post by the id returned from Publish. A malformed id is a models.ErrDomainViolation.
func (s *Service) Post(ctx context.Context, id string) (*models.IdentifiedPost, error) {
	key, err := ident.ParsePostKey(id)
	if err != nil {
		return nil, models.Violation("invalid post id: %s", err)
	}
	post, err := records.Load[models.Post](ctx, s.repo, key)
	if err != nil {
		return nil, err
	}
	return &models.IdentifiedPost{ID: key.String(), Post: *post}, nil
}

// Topic lists the posts filed under a topic. The name is normalized the same way as at publish time ("#News" finds "news").
func (s *Service) Topic(ctx context.Context, name string) ([]models.IdentifiedPost, error) {
	t, err := syntax.ParseTopic(name)
	if err != nil {
		return nil, fmt.Errorf("%w: topic %q", models.ErrNotFound, name)
	}
	return s.repo.TopicPosts(ctx, t.String())
}

func (s *Service) Timeline(ctx context.Context, handle string) ([]feed.PostView, error) {
	if _, err := syntax.ParseHandle(handle); err != nil {
		return nil, fmt.Errorf("%w: user %q", models.ErrNotFound, handle)
	}
	return s.feed.Build(ctx, handle)
}
