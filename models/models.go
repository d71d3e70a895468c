// Package models defines the records stored in the object store (User, Post,
// Topic) and the domain guards that protect their mutable sets.
package models

import (
	"fmt"
	"slices"
)

type Action string

const (
	ActionPost   Action = "POST"
	ActionRepost Action = "REPOST"
	ActionLike   Action = "LIKE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionPost, ActionRepost, ActionLike:
		return true
	}
	return false
}

// Interaction is one entry of a user's timeline. Immutable once appended.
//
// Timestamps throughout this package are strings in syntax.DatetimeLayout.
type Interaction struct {
	Who       string `json:"who"`
	PostID    string `json:"postId"`
	Action    Action `json:"action"`
	Timestamp string `json:"timestamp"`
}

// Matches reports whether this record is the exact (who, postId, action) triple.
func (i Interaction) Matches(who, postID string, action Action) bool {
	return i.Who == who && i.PostID == postID && i.Action == action
}

type User struct {
	Handle    string        `json:"handle"`
	PublicKey string        `json:"publicKey"`
	Followers []string      `json:"followers"`
	Following []string      `json:"following"`
	Timeline  []Interaction `json:"timeline"`
}

// NewUser returns a freshly registered user with empty sets.
func NewUser(handle, publicKey string) *User {
	return &User{
		Handle:    handle,
		PublicKey: publicKey,
		Followers: []string{},
		Following: []string{},
		Timeline:  []Interaction{},
	}
}

type Post struct {
	Author    string   `json:"author"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
	Topics    []string `json:"topics"`
	Reposts   []string `json:"reposts"`
	Likes     []string `json:"likes"`
}

type Topic struct {
	Name     string   `json:"name"`
	Timeline []string `json:"timeline"`
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// addMember appends v to a set, failing if already present.
func addMember(set []string, v string) ([]string, bool) {
	if slices.Contains(set, v) {
		return set, false
	}
	return append(set, v), true
}

// removeMember removes v from a set, failing if absent.
func removeMember(set []string, v string) ([]string, bool) {
	idx := slices.Index(set, v)
	if idx < 0 {
		return set, false
	}
	return slices.Delete(set, idx, idx+1), true
}

// IdentifiedPost is a Post as returned to clients, with its identity key.
type IdentifiedPost struct {
	ID string `json:"id"`
	Post
}
