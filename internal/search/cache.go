package search

import (
	"container/list"
	"sync"

	"github.com/legatoo/legal-semantic-search/internal/contracts"
)

// queryCache is an LRU cache of full search results keyed by query
// parameters, the same doubly-linked-list shape as the embedding service's
// L1 cache.
type queryCache struct {
	mu       sync.Mutex
	maxSize  int
	ll       *list.List
	elements map[string]*list.Element
}

type queryCacheEntry struct {
	key   string
	value contracts.SearchData
}

func newQueryCache(maxSize int) *queryCache {
	if maxSize <= 0 {
		maxSize = 200
	}
	return &queryCache{
		maxSize:  maxSize,
		ll:       list.New(),
		elements: make(map[string]*list.Element),
	}
}

func (c *queryCache) get(key string) (contracts.SearchData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elements[key]
	if !ok {
		return contracts.SearchData{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*queryCacheEntry).value, true
}

func (c *queryCache) set(key string, value contracts.SearchData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*queryCacheEntry).value = value
		return
	}

	el := c.ll.PushFront(&queryCacheEntry{key: key, value: value})
	c.elements[key] = el

	for c.ll.Len() > c.maxSize {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.elements, oldest.Value.(*queryCacheEntry).key)
	}
}
