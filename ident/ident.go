// Package ident derives the content identifiers that address every record in
// the object store.
//
// An identity key is the CIDv1 (dag-cbor codec, sha2-256) of the DAG-CBOR
// encoding of a small map of identity fields. DAG-CBOR sorts map keys, so the
// key depends only on field names and values, never on insertion order.
package ident

import (
	"fmt"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/multiformats/go-multihash"
)

type Kind string

const (
	KindUser  Kind = "user"
	KindPost  Kind = "post"
	KindTopic Kind = "topic"
)

var prefix = cid.NewPrefixV1(cid.DagCBOR, multihash.SHA2_256)

// Compute hashes an arbitrary set of identity fields. Values must be
// representable in DAG-CBOR (strings, integers, bools, nested maps/slices).
func Compute(fields map[string]any) (cid.Cid, error) {
	b, err := cbor.DumpObject(fields)
	if err != nil {
		return cid.Undef, fmt.Errorf("encoding identity fields: %w", err)
	}
	return prefix.Sum(b)
}

// Returns the identity fields for a record of the given kind. Different kinds
// use disjoint field names, so their keys can never collide.
func Fields(kind Kind, values ...string) (map[string]any, error) {
	var names []string
	switch kind {
	case KindUser:
		names = []string{"handle"}
	case KindPost:
		names = []string{"author", "timestamp"}
	case KindTopic:
		names = []string{"topic"}
	default:
		return nil, fmt.Errorf("unknown record kind: %q", kind)
	}
	if len(values) != len(names) {
		return nil, fmt.Errorf("%s identity needs %d fields, got %d", kind, len(names), len(values))
	}
	out := make(map[string]any, len(names))
	for i, n := range names {
		out[n] = values[i]
	}
	return out, nil
}

func mustKey(kind Kind, values ...string) cid.Cid {
	fields, err := Fields(kind, values...)
	if err != nil {
		panic(err)
	}
	c, err := Compute(fields)
	if err != nil {
		// string-only maps always encode
		panic(err)
	}
	return c
}

func UserKey(handle string) cid.Cid {
	return mustKey(KindUser, handle)
}

// PostKey addresses a post by author and creation timestamp (syntax.DatetimeLayout string).
func PostKey(author, timestamp string) cid.Cid {
	return mustKey(KindPost, author, timestamp)
}

func TopicKey(name string) cid.Cid {
	return mustKey(KindTopic, name)
}

// ParsePostKey decodes a client-supplied post id. Only dag-cbor CIDv1 with a
// sha2-256 digest is accepted, since that is all this package ever produces.
func ParsePostKey(raw string) (cid.Cid, error) {
	if raw == "" {
		return cid.Undef, fmt.Errorf("expected post id, got empty string")
	}
	if len(raw) > 256 {
		return cid.Undef, fmt.Errorf("post id is too long")
	}
	c, err := cid.Decode(raw)
	if err != nil {
		return cid.Undef, fmt.Errorf("invalid post id %q: %w", raw, err)
	}
	p := c.Prefix()
	if p.Version != 1 || p.Codec != cid.DagCBOR || p.MhType != multihash.SHA2_256 {
		return cid.Undef, fmt.Errorf("post id %q is not a record identifier", raw)
	}
	return c, nil
}
