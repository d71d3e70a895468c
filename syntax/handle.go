package syntax

import (
	"errors"
	"fmt"
	"regexp"
)

var handleRegex = regexp.MustCompile(`^@?[a-zA-Z0-9._-]*[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// String type which represents a syntactically valid user handle, like "@alice" or "bob.example".
//
// Handles are case sensitive: the exact string is an input to the user's identity key.
type Handle string

func ParseHandle(raw string) (Handle, error) {
	if raw == "" {
		return "", errors.New("expected handle, got empty string")
	}
	if len(raw) > 64 {
		return "", errors.New("handle is too long (64 chars max)")
	}
	if !handleRegex.MatchString(raw) {
		return "", fmt.Errorf("handle syntax didn't validate via regex: %s", raw)
	}
	return Handle(raw), nil
}

func (h Handle) String() string {
	return string(h)
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(text []byte) error {
	handle, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = handle
	return nil
}
