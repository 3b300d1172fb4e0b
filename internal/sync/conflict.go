package sync

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultConflictCapacity = 64

// ConflictList is the capacity-bounded conflict registry. At most one entry
// exists per path; a new conflict for a known path replaces the old one.
// When full, the oldest entry is evicted first. Entries are only ever added
// and peeked, so the underlying LRU order degenerates to exact FIFO.
type ConflictList struct {
	cache *lru.Cache[string, FileConflict]
}

func NewConflictList(capacity int) *ConflictList {
	if capacity <= 0 {
		capacity = DefaultConflictCapacity
	}
	cache, _ := lru.New[string, FileConflict](capacity)
	return &ConflictList{cache: cache}
}

// Add records or replaces the conflict for its path, evicting the oldest
// entry when the list is at capacity.
func (c *ConflictList) Add(conflict FileConflict) {
	c.cache.Add(conflict.Path, conflict)
}

// Remove drops the conflict for path, reporting whether one existed.
func (c *ConflictList) Remove(path string) bool {
	return c.cache.Remove(path)
}

func (c *ConflictList) Get(path string) (FileConflict, bool) {
	return c.cache.Peek(path)
}

// All returns the conflicts oldest-first.
func (c *ConflictList) All() []FileConflict {
	keys := c.cache.Keys()
	out := make([]FileConflict, 0, len(keys))
	for _, key := range keys {
		if conflict, ok := c.cache.Peek(key); ok {
			out = append(out, conflict)
		}
	}
	return out
}

func (c *ConflictList) Len() int {
	return c.cache.Len()
}
