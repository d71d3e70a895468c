// Package social runs the signed write operations of the timeline network
// (register, publish, like, repost, follow and their inverses) and the
// unauthenticated reads.
//
// Every write follows the same composition: load the actor, verify the
// signature against the actor's registered key, validate, then mutate the
// affected records. Writes that touch more than one record are not atomic;
// see [PartialFailure].
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/timelinesocial/timeline/feed"
	"github.com/timelinesocial/timeline/ident"
	"github.com/timelinesocial/timeline/models"
	"github.com/timelinesocial/timeline/records"
	"github.com/timelinesocial/timeline/sigauth"
	"github.com/timelinesocial/timeline/store"
	"github.com/timelinesocial/timeline/syntax"

	"github.com/ipfs/go-cid"
	"github.com/lestrrat-go/jwx/v2/jwa"
)

const (
	DefaultMaxContentLength = 3000
	// post key collisions (same author, same millisecond) tolerated before giving up
	maxKeyCollisions = 8
)

type Config struct {
	SigAlg           jwa.SignatureAlgorithm
	TimelineLimit    int
	Concurrency      int
	MaxSwapAttempts  int
	MaxContentLength int
	// undo the applied half of a partially failed multi-record write
	Compensate bool
}

func DefaultConfig() Config {
	return Config{
		SigAlg:           jwa.ES256,
		TimelineLimit:    feed.DefaultLimit,
		Concurrency:      records.DefaultConcurrency,
		MaxSwapAttempts:  records.DefaultMaxSwapAttempts,
		MaxContentLength: DefaultMaxContentLength,
	}
}

type Service struct {
	repo     *records.Repository
	feed     *feed.Aggregator
	verifier *sigauth.Verifier
	logger   *slog.Logger
	config   Config

	// source of post and interaction timestamps
	Clock func() time.Time
}

// withDefaults fills unset or non-positive fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SigAlg == "" {
		c.SigAlg = def.SigAlg
	}
	if c.TimelineLimit <= 0 {
		c.TimelineLimit = def.TimelineLimit
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.MaxSwapAttempts <= 0 {
		c.MaxSwapAttempts = def.MaxSwapAttempts
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = def.MaxContentLength
	}
	return c
}

func NewService(st store.Store, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	config = config.withDefaults()

	repo := records.NewRepository(st, logger)
	repo.MaxSwapAttempts = config.MaxSwapAttempts
	repo.Concurrency = config.Concurrency
	agg := feed.NewAggregator(repo, logger)
	agg.Concurrency = config.Concurrency
	agg.Limit = config.TimelineLimit

	return &Service{
		repo:     repo,
		feed:     agg,
		verifier: sigauth.NewVerifier(config.SigAlg),
		logger:   logger.With("system", "social"),
		config:   config,
		Clock:    time.Now,
	}
}

func (s *Service) now() time.Time {
	return syntax.NormalizeTime(s.Clock())
}

func observe(op string, err error) {
	operations.WithLabelValues(op, models.Kind(err)).Inc()
}

// handles that fail syntax checks can't have been registered
func userKey(handle string) (cid.Cid, error) {
	h, err := syntax.ParseHandle(handle)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: user %q", models.ErrNotFound, handle)
	}
	return ident.UserKey(h.String()), nil
}

func (s *Service) loadUser(ctx context.Context, handle string) (*models.User, error) {
	key, err := userKey(handle)
	if err != nil {
		return nil, err
	}
	return records.Load[models.User](ctx, s.repo, key)
}

// Register creates a user. Unsigned: there is no key to verify against yet.
func (s *Service) Register(ctx context.Context, handle, publicKey string) (err error) {
	defer func() { observe("register", err) }()

	h, err := syntax.ParseHandle(handle)
	if err != nil {
		return models.Violation("invalid handle: %s", err)
	}

	key := ident.UserKey(h.String())
	_, err = records.Load[models.User](ctx, s.repo, key)
	if err == nil {
		return fmt.Errorf("%w: user %s", models.ErrAlreadyExists, h)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	if _, err := sigauth.ParsePublicKey(publicKey, s.config.SigAlg); err != nil {
		return err
	}

	if err := records.Create(ctx, s.repo, key, models.NewUser(h.String(), publicKey)); err != nil {
		return err
	}
	s.logger.Info("registered user", "handle", h)
	return nil
}

// Publish creates a post from a signed {content, topics} payload and returns its id.
func (s *Service) Publish(ctx context.Context, handle, signature string) (id string, err error) {
	defer func() { observe("publish", err) }()

	actor, err := s.loadUser(ctx, handle)
	if err != nil {
		return "", err
	}
	req, err := sigauth.Authorize[sigauth.PublishPayload](s.verifier, actor, signature)
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return "", models.Violation("content must not be empty")
	}
	if n := utf8.RuneCountInString(content); n > s.config.MaxContentLength {
		return "", models.Violation("content too long: %d characters (max %d)", n, s.config.MaxContentLength)
	}
	parsed, err := syntax.ParseTopics(req.Topics)
	if err != nil {
		return "", models.Violation("invalid topic: %s", err)
	}
	topics := make([]string, len(parsed))
	for i, t := range parsed {
		topics[i] = t.String()
	}

	var post *models.Post
	sg := s.newSaga("publish", actor.Handle)
	sg.add("post.create", func(ctx context.Context) error {
		var err error
		post, id, err = s.createPost(ctx, actor.Handle, content, topics)
		return err
	}, nil)
	sg.add("actor.timeline", func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, ident.UserKey(actor.Handle), func(u *models.User) error {
			u.AppendInteraction(models.Interaction{Who: actor.Handle, PostID: id, Action: models.ActionPost, Timestamp: post.Timestamp})
			return nil
		})
	}, nil)
	if err := sg.runSequential(ctx); err != nil {
		return "", err
	}

	if failed := s.repo.IndexTopics(ctx, id, topics); len(failed) > 0 {
		topicIndexSkips.Add(float64(len(failed)))
	}
	return id, nil
}

// createPost picks the creation timestamp, stepping forward a millisecond at a time past existing posts by the same author.
func (s *Service) createPost(ctx context.Context, author, content string, topics []string) (*models.Post, string, error) {
	now := s.now()
	for i := 0; i < maxKeyCollisions; i++ {
		ts := syntax.FormatDatetime(now.Add(time.Duration(i) * time.Millisecond))
		key := ident.PostKey(author, ts)

		_, err := records.Load[models.Post](ctx, s.repo, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, "", err
		}

		post := &models.Post{
			Author:    author,
			Content:   content,
			Timestamp: ts,
			Topics:    topics,
			Reposts:   []string{},
			Likes:     []string{},
		}
		err = records.Create(ctx, s.repo, key, post)
		if errors.Is(err, models.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return post, key.String(), nil
	}
	return nil, "", fmt.Errorf("%w: too many posts by %s at %s", models.ErrStoreFailure, author, syntax.FormatDatetime(now))
}
