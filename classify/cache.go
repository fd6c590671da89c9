package classify

import (
	"sync"
	"time"

	"podolsknews/monitoring"
)

// topicIDEntry is one cached label -> topic_id resolution.
type topicIDEntry struct {
	topicID    int64
	expiration time.Time
}

// topicIDCache is a thread-safe in-memory cache of taxonomy label to
// topic_id, sparing a round trip to EnsureTopic for labels already seen
// this TTL window.
type topicIDCache struct {
	data sync.Map
	ttl  time.Duration
	log  *monitoring.StructuredLogger
}

func newTopicIDCache(ttl time.Duration) *topicIDCache {
	c := &topicIDCache{ttl: ttl, log: monitoring.GetLogger("classify-cache")}
	c.startCleanupWorker(ttl)
	return c
}

func (c *topicIDCache) set(label string, topicID int64) {
	c.data.Store(label, topicIDEntry{topicID: topicID, expiration: time.Now().Add(c.ttl)})
}

func (c *topicIDCache) get(label string) (int64, bool) {
	v, ok := c.data.Load(label)
	if !ok {
		return 0, false
	}
	entry := v.(topicIDEntry)
	if time.Now().After(entry.expiration) {
		c.data.Delete(label)
		return 0, false
	}
	return entry.topicID, true
}

func (c *topicIDCache) cleanup() {
	c.data.Range(func(key, value interface{}) bool {
		if time.Now().After(value.(topicIDEntry).expiration) {
			c.data.Delete(key)
		}
		return true
	})
}

func (c *topicIDCache) startCleanupWorker(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			c.cleanup()
		}
	}()
}
