package models

func (p *Post) AddLike(handle string) error {
	likes, ok := addMember(p.Likes, handle)
	if !ok {
		return Violation("%s already liked this post", handle)
	}
	p.Likes = likes
	return nil
}

func (p *Post) RemoveLike(handle string) error {
	likes, ok := removeMember(p.Likes, handle)
	if !ok {
		return Violation("%s has not liked this post", handle)
	}
	p.Likes = likes
	return nil
}

func (p *Post) AddRepost(handle string) error {
	reposts, ok := addMember(p.Reposts, handle)
	if !ok {
		return Violation("%s already reposted this post", handle)
	}
	p.Reposts = reposts
	return nil
}

func (p *Post) RemoveRepost(handle string) error {
	reposts, ok := removeMember(p.Reposts, handle)
	if !ok {
		return Violation("%s has not reposted this post", handle)
	}
	p.Reposts = reposts
	return nil
}

// AddFollower records that handle follows u.
func (u *User) AddFollower(handle string) error {
	followers, ok := addMember(u.Followers, handle)
	if !ok {
		return Violation("%s already follows %s", handle, u.Handle)
	}
	u.Followers = followers
	return nil
}

func (u *User) RemoveFollower(handle string) error {
	followers, ok := removeMember(u.Followers, handle)
	if !ok {
		return Violation("%s does not follow %s", handle, u.Handle)
	}
	u.Followers = followers
	return nil
}

// AddFollowing records that u follows handle.
func (u *User) AddFollowing(handle string) error {
	following, ok := addMember(u.Following, handle)
	if !ok {
		return Violation("%s is already followed by %s", handle, u.Handle)
	}
	u.Following = following
	return nil
}

func (u *User) RemoveFollowing(handle string) error {
	following, ok := removeMember(u.Following, handle)
	if !ok {
		return Violation("%s is not followed by %s", handle, u.Handle)
	}
	u.Following = following
	return nil
}

func (u *User) AppendInteraction(rec Interaction) {
	u.Timeline = append(u.Timeline, rec)
}

// RemoveInteraction drops every record matching (who, postID, action). At least one must exist.
func (u *User) RemoveInteraction(who, postID string, action Action) error {
	kept := u.Timeline[:0:0]
	for _, rec := range u.Timeline {
		if !rec.Matches(who, postID, action) {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(u.Timeline) {
		return Violation("no %s of %s by %s in timeline", action, postID, who)
	}
	u.Timeline = kept
	return nil
}
