package watcher

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	seenTTL     = 24 * time.Hour
	seenCleanup = time.Hour
)

// seenSet remembers ids the relayer has already recorded, or that carry no
// event, so polls skip them. It only saves RPC calls: an id is added after
// the ledger has it, never before, so dropping the set is still correct.
type seenSet struct {
	c *cache.Cache
}

func newSeenSet() seenSet {
	return seenSet{c: cache.New(seenTTL, seenCleanup)}
}

func (s seenSet) has(id string) bool {
	_, ok := s.c.Get(id)
	return ok
}

func (s seenSet) add(id string) {
	s.c.SetDefault(id, struct{}{})
}
