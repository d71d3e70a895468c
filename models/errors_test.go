package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		err  error
		kind string
	}{
		{err: nil, kind: "OK"},
		{err: ErrAuthMismatch, kind: "AuthMismatch"},
		{err: fmt.Errorf("register: %w", ErrInvalidKeyFormat), kind: "InvalidKeyFormat"},
		{err: Violation("content must not be empty"), kind: "DomainViolation"},
		{err: fmt.Errorf("%w: unable to load @bob: %v", ErrAggregationFailure, ErrNotFound), kind: "AggregationFailure"},
		{err: fmt.Errorf("%w: abc", ErrNotFound), kind: "NotFound"},
		{err: fmt.Errorf("%w: put: %w", ErrStoreFailure, errors.New("timeout")), kind: "StoreFailure"},
		{err: errors.New("boom"), kind: "InternalError"},
	}
	for _, fix := range fixtures {
		assert.Equal(fix.kind, Kind(fix.err), fmt.Sprint(fix.err))
	}

	v := Violation("%s already liked this post", "@alice")
	assert.Equal("@alice already liked this post", v.Error())
}
