package social

import (
	"context"
	"slices"

	"github.com/timelinesocial/timeline/ident"
	"github.com/timelinesocial/timeline/models"
	"github.com/timelinesocial/timeline/records"
	"github.com/timelinesocial/timeline/sigauth"
	"github.com/timelinesocial/timeline/syntax"

	"github.com/ipfs/go-cid"
)

// set mutation on a post for one action kind
type postSet struct {
	action models.Action
	add    func(p *models.Post, handle string) error
	remove func(p *models.Post, handle string) error
	has    func(p *models.Post, handle string) bool
}

var (
	likes = postSet{
		action: models.ActionLike,
		add:    (*models.Post).AddLike,
		remove: (*models.Post).RemoveLike,
		has:    func(p *models.Post, h string) bool { return slices.Contains(p.Likes, h) },
	}
	reposts = postSet{
		action: models.ActionRepost,
		add:    (*models.Post).AddRepost,
		remove: (*models.Post).RemoveRepost,
		has:    func(p *models.Post, h string) bool { return slices.Contains(p.Reposts, h) },
	}
)

// authorizePostRef loads the actor, verifies the signed {id} payload, and loads the referenced post.
func (s *Service) authorizePostRef(ctx context.Context, handle, signature string) (*models.User, cid.Cid, *models.Post, error) {
	actor, err := s.loadUser(ctx, handle)
	if err != nil {
		return nil, cid.Undef, nil, err
	}
	req, err := sigauth.Authorize[sigauth.PostRefPayload](s.verifier, actor, signature)
	if err != nil {
		return nil, cid.Undef, nil, err
	}
	key, err := ident.ParsePostKey(req.ID)
	if err != nil {
		return nil, cid.Undef, nil, models.Violation("invalid post id: %s", err)
	}
	post, err := records.Load[models.Post](ctx, s.repo, key)
	if err != nil {
		return nil, cid.Undef, nil, err
	}
	return actor, key, post, nil
}

func (s *Service) Like(ctx context.Context, handle, signature string) (string, error) {
	id, err := s.addPostAction(ctx, "like", likes, handle, signature)
	observe("like", err)
	return id, err
}

func (s *Service) Repost(ctx context.Context, handle, signature string) (string, error) {
	id, err := s.addPostAction(ctx, "repost", reposts, handle, signature)
	observe("repost", err)
	return id, err
}

func (s *Service) Unlike(ctx context.Context, handle, signature string) (string, error) {
	id, err := s.removePostAction(ctx, "unlike", likes, handle, signature)
	observe("unlike", err)
	return id, err
}

func (s *Service) Unrepost(ctx context.Context, handle, signature string) (string, error) {
	id, err := s.removePostAction(ctx, "unrepost", reposts, handle, signature)
	observe("unrepost", err)
	return id, err
}

// addPostAction adds the actor to the post's set and records the interaction on the actor's timeline, concurrently.
func (s *Service) addPostAction(ctx context.Context, op string, set postSet, handle, signature string) (string, error) {
	actor, key, post, err := s.authorizePostRef(ctx, handle, signature)
	if err != nil {
		return "", err
	}
	if set.has(post, actor.Handle) {
		return "", models.Violation("%s already did %s on this post", actor.Handle, set.action)
	}

	id := key.String()
	rec := models.Interaction{Who: actor.Handle, PostID: id, Action: set.action, Timestamp: syntax.FormatDatetime(s.now())}
	actorKey := ident.UserKey(actor.Handle)

	sg := s.newSaga(op, actor.Handle)
	sg.add("post."+string(set.action), func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, key, func(p *models.Post) error { return set.add(p, actor.Handle) })
	}, func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, key, func(p *models.Post) error { return set.remove(p, actor.Handle) })
	})
	sg.add("actor.timeline", func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, actorKey, func(u *models.User) error {
			u.AppendInteraction(rec)
			return nil
		})
	}, func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, actorKey, func(u *models.User) error {
			return u.RemoveInteraction(rec.Who, rec.PostID, rec.Action)
		})
	})
	if err := sg.runConcurrent(ctx); err != nil {
		return "", err
	}
	return id, nil
}

// removePostAction is the inverse of addPostAction: every matching interaction record is dropped from the actor's timeline.
// The record may be missing after a partially applied add; only post-side membership is required.
func (s *Service) removePostAction(ctx context.Context, op string, set postSet, handle, signature string) (string, error) {
	actor, key, post, err := s.authorizePostRef(ctx, handle, signature)
	if err != nil {
		return "", err
	}
	id := key.String()
	if !set.has(post, actor.Handle) {
		return "", models.Violation("%s has no %s on this post", actor.Handle, set.action)
	}
	actorKey := ident.UserKey(actor.Handle)

	// records removed from the timeline, for compensation
	var removed []models.Interaction

	sg := s.newSaga(op, actor.Handle)
	sg.add("post."+string(set.action), func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, key, func(p *models.Post) error { return set.remove(p, actor.Handle) })
	}, func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, key, func(p *models.Post) error { return set.add(p, actor.Handle) })
	})
	sg.add("actor.timeline", func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, actorKey, func(u *models.User) error {
			removed = removed[:0]
			for _, rec := range u.Timeline {
				if rec.Matches(actor.Handle, id, set.action) {
					removed = append(removed, rec)
				}
			}
			if len(removed) == 0 {
				return nil
			}
			return u.RemoveInteraction(actor.Handle, id, set.action)
		})
	}, func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, actorKey, func(u *models.User) error {
			for _, rec := range removed {
				u.AppendInteraction(rec)
			}
			return nil
		})
	})
	if err := sg.runConcurrent(ctx); err != nil {
		return "", err
	}
	return id, nil
}

// authorizeFollow loads the actor, verifies the signed {to} payload, and loads the target user.
func (s *Service) authorizeFollow(ctx context.Context, from, signature string) (*models.User, *models.User, error) {
	actor, err := s.loadUser(ctx, from)
	if err != nil {
		return nil, nil, err
	}
	req, err := sigauth.Authorize[sigauth.FollowPayload](s.verifier, actor, signature)
	if err != nil {
		return nil, nil, err
	}
	if req.To == actor.Handle {
		return nil, nil, models.Violation("%s cannot follow themselves", actor.Handle)
	}
	target, err := s.loadUser(ctx, req.To)
	if err != nil {
		return nil, nil, err
	}
	return actor, target, nil
}

// Follow adds the target to the actor's following and the actor to the target's followers, concurrently. Returns the target handle.
func (s *Service) Follow(ctx context.Context, from, signature string) (to string, err error) {
	defer func() { observe("follow", err) }()

	actor, target, err := s.authorizeFollow(ctx, from, signature)
	if err != nil {
		return "", err
	}
	if slices.Contains(actor.Following, target.Handle) {
		return "", models.Violation("%s already follows %s", actor.Handle, target.Handle)
	}

	actorKey, targetKey := ident.UserKey(actor.Handle), ident.UserKey(target.Handle)
	sg := s.newSaga("follow", actor.Handle)
	sg.add("target.followers", func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, targetKey, func(u *models.User) error { return u.AddFollower(actor.Handle) })
	}, func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, targetKey, func(u *models.User) error { return u.RemoveFollower(actor.Handle) })
	})
	sg.add("actor.following", func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, actorKey, func(u *models.User) error { return u.AddFollowing(target.Handle) })
	}, func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, actorKey, func(u *models.User) error { return u.RemoveFollowing(target.Handle) })
	})
	if err := sg.runConcurrent(ctx); err != nil {
		return "", err
	}
	return target.Handle, nil
}

func (s *Service) Unfollow(ctx context.Context, from, signature string) (to string, err error) {
	defer func() { observe("unfollow", err) }()

	actor, target, err := s.authorizeFollow(ctx, from, signature)
	if err != nil {
		return "", err
	}
	if !slices.Contains(actor.Following, target.Handle) {
		return "", models.Violation("%s does not follow %s", actor.Handle, target.Handle)
	}

	actorKey, targetKey := ident.UserKey(actor.Handle), ident.UserKey(target.Handle)
	sg := s.newSaga("unfollow", actor.Handle)
	sg.add("target.followers", func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, targetKey, func(u *models.User) error { return u.RemoveFollower(actor.Handle) })
	}, func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, targetKey, func(u *models.User) error { return u.AddFollower(actor.Handle) })
	})
	sg.add("actor.following", func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, actorKey, func(u *models.User) error { return u.RemoveFollowing(target.Handle) })
	}, func(ctx context.Context) error {
		return records.Mutate(ctx, s.repo, actorKey, func(u *models.User) error { return u.AddFollowing(target.Handle) })
	})
	if err := sg.runConcurrent(ctx); err != nil {
		return "", err
	}
	return target.Handle, nil
}
