package storage

import (
	"context"
	"sync"
	"time"

	trigger "nudge/internal/trigger"
)

// LookupCache is a read-through TTL cache in front of the profile and
// completion lookups. A sweep touches the same users many times in a
// tight loop; without the cache every trigger costs two queries.
//
// Entries expire after ttl; lookup errors are not cached.
type LookupCache struct {
	zones       trigger.TimezoneLookup
	completions trigger.CompletionLookup
	ttl         time.Duration

	now func() time.Time // test hook

	mu   sync.Mutex
	tz   map[int64]cacheEntry[string]
	done map[completionKey]cacheEntry[bool]
}

type completionKey struct {
	userID   int64
	actionID int64
}

type cacheEntry[V any] struct {
	val     V
	expires time.Time
}

func NewLookupCache(zones trigger.TimezoneLookup, completions trigger.CompletionLookup, ttl time.Duration) *LookupCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LookupCache{
		zones:       zones,
		completions: completions,
		ttl:         ttl,
		now:         time.Now,
		tz:          make(map[int64]cacheEntry[string]),
		done:        make(map[completionKey]cacheEntry[bool]),
	}
}

func (c *LookupCache) TimezoneFor(ctx context.Context, userID int64) (string, error) {
	now := c.now()
	c.mu.Lock()
	if e, ok := c.tz[userID]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		return e.val, nil
	}
	c.mu.Unlock()

	zone, err := c.zones.TimezoneFor(ctx, userID)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.tz[userID] = cacheEntry[string]{val: zone, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return zone, nil
}

func (c *LookupCache) HasCompletedAction(ctx context.Context, userID, actionID int64) (bool, error) {
	key := completionKey{userID: userID, actionID: actionID}
	now := c.now()
	c.mu.Lock()
	if e, ok := c.done[key]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		return e.val, nil
	}
	c.mu.Unlock()

	done, err := c.completions.HasCompletedAction(ctx, userID, actionID)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.done[key] = cacheEntry[bool]{val: done, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return done, nil
}

// Invalidate drops all cached entries for a user, e.g. after their
// profile or completion state changes mid-sweep.
func (c *LookupCache) Invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tz, userID)
	for k := range c.done {
		if k.userID == userID {
			delete(c.done, k)
		}
	}
}
