package server

import (
	"sync"
	"time"

	"github.com/supremehyo/appium-mcp-claude-android/internal/model"
)

// cacheEntry holds a snapshot with its timestamp.
type cacheEntry struct {
	nodes     []model.NodeSnapshot
	timestamp time.Time
}

// SnapshotCache provides a TTL-based cache of screen snapshots keyed by
// session id.
type SnapshotCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewSnapshotCache creates a new cache. A ttl of 0 disables caching.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// ReadNodes returns the cached snapshot of session if within TTL, otherwise
// reads a fresh one. The caller must hold the server mutex.
func (c *SnapshotCache) ReadNodes(session string, read func() ([]model.NodeSnapshot, error)) (nodes []model.NodeSnapshot, cached bool, err error) {
	if c.ttl == 0 {
		nodes, err = read()
		return nodes, false, err
	}

	c.mu.Lock()
	if entry, ok := c.entries[session]; ok && c.now().Sub(entry.timestamp) < c.ttl {
		nodes := entry.nodes
		c.mu.Unlock()
		return nodes, true, nil
	}
	c.mu.Unlock()

	nodes, err = read()
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	c.entries[session] = cacheEntry{nodes: nodes, timestamp: c.now()}
	c.mu.Unlock()

	return nodes, false, nil
}

// InvalidateSession removes the entry of one session.
func (c *SnapshotCache) InvalidateSession(session string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, session)
}

// InvalidateAll clears the entire cache.
func (c *SnapshotCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
