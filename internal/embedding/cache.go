package embedding

import (
	"container/list"
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// lruCache is the L1, in-process embedding cache, keyed by normalized text.
// A doubly-linked list backs O(1) least-recently-used eviction.
type lruCache struct {
	mu       sync.Mutex
	maxSize  int
	ll       *list.List
	elements map[string]*list.Element
}

type lruEntry struct {
	key   string
	value []float32
}

func newLRUCache(maxSize int) *lruCache {
	if maxSize <= 0 {
		maxSize = defaultCacheMaxEntries
	}
	return &lruCache{
		maxSize:  maxSize,
		ll:       list.New(),
		elements: make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elements[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	entry := el.Value.(*lruEntry)
	out := make([]float32, len(entry.value))
	copy(out, entry.value)
	return out, true
}

func (c *lruCache) set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*lruEntry).value = value
		return
	}

	stored := make([]float32, len(value))
	copy(stored, value)
	el := c.ll.PushFront(&lruEntry{key: key, value: stored})
	c.elements[key] = el

	for c.ll.Len() > c.maxSize {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.elements, oldest.Value.(*lruEntry).key)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// cacheGet consults L1, then the optional Redis L2 tier.
func (s *Service) cacheGet(ctx context.Context, key string) ([]float32, bool) {
	if v, ok := s.l1.get(key); ok {
		return v, true
	}
	if s.redis == nil {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, redisKey(key))
	if err != nil || raw == nil {
		return nil, false
	}
	vec := decodeFloats(raw)
	if vec == nil {
		return nil, false
	}
	s.l1.set(key, vec)
	return vec, true
}

func (s *Service) cacheSet(ctx context.Context, key string, value []float32) {
	s.l1.set(key, value)
	if s.redis == nil {
		return
	}
	_ = s.redis.Set(ctx, redisKey(key), encodeFloats(value), 24*time.Hour)
}

func redisKey(normalizedText string) string {
	return "emb:" + normalizedText
}

// encodeFloats/decodeFloats give the Redis tier a compact binary wire
// format instead of round-tripping through JSON for every cache write.
func encodeFloats(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloats(buf []byte) []float32 {
	if len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
