// Package feed builds a user's timeline: their own interactions merged with
// those of everyone they follow, newest first, resolved into display records.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/timelinesocial/timeline/ident"
	"github.com/timelinesocial/timeline/models"
	"github.com/timelinesocial/timeline/records"
	"github.com/timelinesocial/timeline/syntax"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const DefaultLimit = 127

// PostView is one timeline entry: a post merged with the interaction that put it on the timeline.
type PostView struct {
	ID      string   `json:"id"`
	Author  string   `json:"author"`
	Content string   `json:"content"`
	Topics  []string `json:"topics"`
	Likes   []string `json:"likes"`
	Reposts []string `json:"reposts"`
	// when the post was published
	CreatedAt string `json:"createdAt"`

	Who    string        `json:"who"`
	Action models.Action `json:"action"`
	// when the interaction happened
	Timestamp string `json:"timestamp"`
}

type Aggregator struct {
	Repo   *records.Repository
	Logger *slog.Logger

	// max entries returned by Build
	Limit int
	// max concurrent store reads
	Concurrency int
}

func NewAggregator(repo *records.Repository, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		Repo:        repo,
		Logger:      logger.With("system", "feed"),
		Limit:       DefaultLimit,
		Concurrency: records.DefaultConcurrency,
	}
}

type entry struct {
	rec models.Interaction
	at  time.Time
}

// Build assembles the timeline for handle.
//
// Returns models.ErrNotFound if the user doesn't exist. If any followed user's timeline or any referenced post can't be loaded, the whole call fails with models.ErrAggregationFailure naming what was unreachable; a partial timeline is never returned.
func (a *Aggregator) Build(ctx context.Context, handle string) ([]PostView, error) {
	ctx, span := otel.Tracer("feed").Start(ctx, "Build")
	defer span.End()
	start := time.Now()

	user, err := records.Load[models.User](ctx, a.Repo, ident.UserKey(handle))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("following", len(user.Following)))

	timelines, err := a.fetchFollowed(ctx, user.Following)
	if err != nil {
		timelineBuilds.WithLabelValues("error").Inc()
		return nil, err
	}

	entries := make([]entry, 0, len(user.Timeline))
	for _, tl := range append([][]models.Interaction{user.Timeline}, timelines...) {
		for _, rec := range tl {
			entries = append(entries, entry{rec: rec, at: parseTimestamp(rec.Timestamp)})
		}
	}

	// newest first; ties keep their order of appearance
	slices.SortStableFunc(entries, func(x, y entry) int {
		return y.at.Compare(x.at)
	})
	limit := a.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.rec.PostID
	}
	posts, err := a.Repo.ResolvePosts(ctx, ids)
	if err != nil {
		timelineBuilds.WithLabelValues("error").Inc()
		return nil, err
	}

	out := make([]PostView, 0, len(entries))
	for _, e := range entries {
		p := posts[e.rec.PostID]
		out = append(out, PostView{
			ID:        e.rec.PostID,
			Author:    p.Author,
			Content:   p.Content,
			Topics:    p.Topics,
			Likes:     p.Likes,
			Reposts:   p.Reposts,
			CreatedAt: p.Timestamp,
			Who:       e.rec.Who,
			Action:    e.rec.Action,
			Timestamp: e.rec.Timestamp,
		})
	}

	timelineBuilds.WithLabelValues("ok").Inc()
	timelineBuildDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("entries", len(out)))
	return out, nil
}

// fetchFollowed loads every followed user's timeline concurrently, preserving the order of handles. The first failure cancels the rest.
func (a *Aggregator) fetchFollowed(ctx context.Context, handles []string) ([][]models.Interaction, error) {
	out := make([][]models.Interaction, len(handles))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(a.Concurrency, 1))
	for i, h := range handles {
		eg.Go(func() error {
			u, err := records.Load[models.User](ctx, a.Repo, ident.UserKey(h))
			if err != nil {
				a.Logger.Warn("followed user unreachable", "handle", h, "err", err)
				return fmt.Errorf("%w: unable to load timeline of %s: %v", models.ErrAggregationFailure, h, err)
			}
			out[i] = u.Timeline
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// unparseable timestamps sort as the oldest
func parseTimestamp(raw string) time.Time {
	t, err := syntax.ParseDatetime(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
