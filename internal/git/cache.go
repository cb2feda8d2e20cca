package git

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/thiagokokada/gitk-compare/internal/diffstat"
)

type statsKey struct {
	repo string
	hash string
}

// StatsCache keeps aggregate per-commit stats across requests. Commits are
// immutable, so entries never go stale; the TTL only bounds memory held by
// repositories nobody looks at anymore.
//
// A nil *StatsCache is valid and caches nothing.
type StatsCache struct {
	lru *expirable.LRU[statsKey, diffstat.Stats]
}

// NewStatsCache returns nil when size is not positive.
func NewStatsCache(size int, ttl time.Duration) *StatsCache {
	if size <= 0 {
		return nil
	}
	return &StatsCache{lru: expirable.NewLRU[statsKey, diffstat.Stats](size, nil, ttl)}
}

func (c *StatsCache) Get(repo, hash string) (diffstat.Stats, bool) {
	if c == nil {
		return diffstat.Stats{}, false
	}
	return c.lru.Get(statsKey{repo: repo, hash: hash})
}

func (c *StatsCache) Add(repo, hash string, st diffstat.Stats) {
	if c == nil {
		return
	}
	c.lru.Add(statsKey{repo: repo, hash: hash}, st)
}

func (c *StatsCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
