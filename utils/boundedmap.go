package utils

import (
	"sync"
	"time"
)

// BoundedMap is a size- and age-bounded map with FIFO eviction on overflow.
// Keys are platform-native message/poll ids, which are strings on both sides
// of the bridge.
type BoundedMap struct {
	mu         sync.RWMutex
	data       map[string]interface{}
	timestamps map[string]time.Time
	maxSize    int
	maxAge     time.Duration
	keys       []string // Track insertion order for LRU
}

func NewBoundedMap(maxSize int, maxAge time.Duration) *BoundedMap {
	return &BoundedMap{
		data:       make(map[string]interface{}),
		timestamps: make(map[string]time.Time),
		maxSize:    maxSize,
		maxAge:     maxAge,
		keys:       make([]string, 0, maxSize),
	}
}

func (bm *BoundedMap) Set(key string, value interface{}) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	// If key exists, update and move to end
	if _, exists := bm.data[key]; exists {
		bm.data[key] = value
		bm.timestamps[key] = time.Now()
		for i, k := range bm.keys {
			if k == key {
				bm.keys = append(bm.keys[:i], bm.keys[i+1:]...)
				break
			}
		}
		bm.keys = append(bm.keys, key)
		return
	}

	bm.data[key] = value
	bm.timestamps[key] = time.Now()
	bm.keys = append(bm.keys, key)

	// Evict oldest if over capacity
	if len(bm.data) > bm.maxSize {
		oldest := bm.keys[0]
		delete(bm.data, oldest)
		delete(bm.timestamps, oldest)
		bm.keys = bm.keys[1:]
	}
}

func (bm *BoundedMap) Get(key string) (interface{}, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	val, exists := bm.data[key]
	return val, exists
}

func (bm *BoundedMap) Delete(key string) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	delete(bm.data, key)
	delete(bm.timestamps, key)
	for i, k := range bm.keys {
		if k == key {
			bm.keys = append(bm.keys[:i], bm.keys[i+1:]...)
			break
		}
	}
}

func (bm *BoundedMap) CleanupOldEntries() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	now := time.Now()
	removed := 0

	for key, ts := range bm.timestamps {
		if now.Sub(ts) > bm.maxAge {
			delete(bm.data, key)
			delete(bm.timestamps, key)
			for i, k := range bm.keys {
				if k == key {
					bm.keys = append(bm.keys[:i], bm.keys[i+1:]...)
					break
				}
			}
			removed++
		}
	}

	return removed
}

func (bm *BoundedMap) Len() int {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return len(bm.data)
}
