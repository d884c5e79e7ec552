package ingestion

import (
	"container/list"
	"sync"
)

// DedupCache is an LRU of recently accepted submission keys. JetStream
// redelivers unacknowledged messages, so a submission can arrive twice.
type DedupCache struct {
	mu       sync.Mutex
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

func NewDedupCache(capacity int) *DedupCache {
	return &DedupCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Seen reports whether key was already recorded, promoting it if so.
func (d *DedupCache) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem, exists := d.cache[key]
	if exists {
		d.lruList.MoveToFront(elem)
	}
	return exists
}

// Add records key (or promotes it if present).
func (d *DedupCache) Add(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if elem, exists := d.cache[key]; exists {
		d.lruList.MoveToFront(elem)
		return
	}

	d.cache[key] = d.lruList.PushFront(key)
	if d.lruList.Len() > d.capacity {
		oldest := d.lruList.Back()
		d.lruList.Remove(oldest)
		delete(d.cache, oldest.Value.(string))
		d.evictions++
	}
}

// Size returns current number of entries
func (d *DedupCache) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lruList.Len()
}

// Evictions returns total evictions
func (d *DedupCache) Evictions() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.evictions
}
