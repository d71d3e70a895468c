package syntax

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var topicRegex = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Normalized topic (hashtag) name: no leading '#', lower-case.
type Topic string

// Parses a topic tag, accepting an optional leading '#' and any case.
func ParseTopic(raw string) (Topic, error) {
	s := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
	if s == "" {
		return "", errors.New("expected topic, got empty string")
	}
	if !topicRegex.MatchString(s) {
		return "", fmt.Errorf("topic syntax didn't validate via regex: %s", raw)
	}
	return Topic(s), nil
}

// Parses a list of topic tags into a set, keeping first-seen order.
func ParseTopics(raw []string) ([]Topic, error) {
	out := make([]Topic, 0, len(raw))
	seen := make(map[Topic]bool, len(raw))
	for _, r := range raw {
		t, err := ParseTopic(r)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

func (t Topic) String() string {
	return string(t)
}
