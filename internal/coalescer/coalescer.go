// Package coalescer implements a process-wide map from
// (type-tag-or-raw, key) to a single in-flight
// fetch, so concurrent callers for the same identity share one result.
package coalescer

import (
	"fmt"

	"golang.org/x/sync/singleflight"
)

// rawTypeTag is the type-tag used for untyped byte reads, forming the
// "(type-tag | raw, key)" identity entries are coalesced under.
const rawTypeTag = "raw"

// Coalescer de-duplicates concurrent fetches keyed by (type-tag, key).
// It is a thin, domain-named wrapper over singleflight.Group: the entry
// for an identity is created on first reference and evicted automatically
// by singleflight once the in-flight call returns, whether it succeeds
// or fails, whether it succeeds or errors.
type Coalescer struct {
	group singleflight.Group
}

// New creates an empty Coalescer.
func New() *Coalescer {
	return &Coalescer{}
}

func identity(typeTag, key string) string {
	if typeTag == "" {
		typeTag = rawTypeTag
	}
	return fmt.Sprintf("%s\x00%s", typeTag, key)
}

// Do runs fn for (typeTag, key), or, if a call for that identity is
// already in flight, waits for and returns its result instead of starting
// a second one. Every subscriber — the caller that started the fetch and
// every caller that arrived while it was in flight — receives the same
// value and error.
func (c *Coalescer) Do(typeTag, key string, fn func() ([]byte, error)) ([]byte, error, bool) {
	v, err, shared := c.group.Do(identity(typeTag, key), func() (interface{}, error) {
		return fn()
	})
	if v == nil {
		return nil, err, shared
	}
	return v.([]byte), err, shared
}

// Forget removes any in-flight entry for (typeTag, key) without waiting
// for it, so the next Do call for that identity starts a fresh fetch.
// The engine's own call sites never call it.
func (c *Coalescer) Forget(typeTag, key string) {
	c.group.Forget(identity(typeTag, key))
}
