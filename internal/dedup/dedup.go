// Package dedup provides the snippet-identity index backing the queue's
// duplicate check, using a Bloom filter for fast negatives and an LRU to
// bound memory.
package dedup

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SnippetIndex tracks the snippet ids currently present in the play queue.
// It is maintained as a superset of the queued snippet ids: a negative
// answer from Has is definitive only while the index has never evicted
// (Lossy is false). The enqueue path uses it to skip the exact queue scan
// for snippets that were certainly never queued.
type SnippetIndex struct {
	snippetIDs        map[string]struct{}
	bloom             *bloom.BloomFilter
	lru               *lru.Cache[string, struct{}]
	mutex             sync.RWMutex
	capacity          int
	falsePositiveRate float64
	lossy             bool
}

// NewSnippetIndex creates an index with the given capacity and Bloom
// false positive rate.
func NewSnippetIndex(capacity int, falsePositiveRate float64) *SnippetIndex {
	if capacity <= 0 {
		panic("snippet index capacity must be positive")
	}
	lruCache, _ := lru.New[string, struct{}](capacity)

	return &SnippetIndex{
		snippetIDs:        make(map[string]struct{}),
		bloom:             bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		lru:               lruCache,
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}
}

// Has checks if a snippet id may be queued. False is definitive unless the
// index is lossy; true may be a stale entry and callers re-check exactly.
func (si *SnippetIndex) Has(snippetID string) bool {
	si.mutex.RLock()
	defer si.mutex.RUnlock()

	if !si.bloom.TestString(snippetID) {
		return false
	}
	_, exists := si.snippetIDs[snippetID]
	return exists
}

// Add records a snippet id as queued.
func (si *SnippetIndex) Add(snippetID string) {
	si.mutex.Lock()
	defer si.mutex.Unlock()
	si.add(snippetID)
}

func (si *SnippetIndex) add(snippetID string) {
	if snippetID == "" {
		return
	}
	if _, exists := si.snippetIDs[snippetID]; exists {
		si.lru.Add(snippetID, struct{}{})
		return
	}

	si.snippetIDs[snippetID] = struct{}{}
	si.bloom.AddString(snippetID)
	si.lru.Add(snippetID, struct{}{})

	if len(si.snippetIDs) > si.capacity {
		si.evictOldest()
	}
}

// evictOldest drops the least recently touched id. Once this happens the
// index can no longer prove absence and flags itself lossy.
func (si *SnippetIndex) evictOldest() {
	oldest, _, ok := si.lru.GetOldest()
	if !ok {
		return
	}
	si.lru.Remove(oldest)
	delete(si.snippetIDs, oldest)
	si.lossy = true
}

// Remove drops a snippet id after its queue entry was removed. The Bloom
// filter does not support removal; the resulting false positives only cost
// an exact re-check.
func (si *SnippetIndex) Remove(snippetID string) {
	si.mutex.Lock()
	defer si.mutex.Unlock()

	if _, exists := si.snippetIDs[snippetID]; !exists {
		return
	}
	delete(si.snippetIDs, snippetID)
	si.lru.Remove(snippetID)
}

// Load resets the index to exactly the given snippet ids, used when a
// persisted snapshot is rehydrated.
func (si *SnippetIndex) Load(snippetIDs []string) {
	si.mutex.Lock()
	defer si.mutex.Unlock()

	si.clear()
	for _, id := range snippetIDs {
		si.add(id)
	}
}

// Size returns the number of snippet ids currently indexed.
func (si *SnippetIndex) Size() int {
	si.mutex.RLock()
	defer si.mutex.RUnlock()
	return len(si.snippetIDs)
}

// Lossy reports whether the index may have dropped entries since the last
// Load or Clear.
func (si *SnippetIndex) Lossy() bool {
	si.mutex.RLock()
	defer si.mutex.RUnlock()
	return si.lossy
}

// Clear empties the index, e.g. when the queue is cleared.
func (si *SnippetIndex) Clear() {
	si.mutex.Lock()
	defer si.mutex.Unlock()
	si.clear()
}

func (si *SnippetIndex) clear() {
	si.snippetIDs = make(map[string]struct{})
	si.bloom = bloom.NewWithEstimates(uint(si.capacity), si.falsePositiveRate)
	si.lru.Purge()
	si.lossy = false
}
