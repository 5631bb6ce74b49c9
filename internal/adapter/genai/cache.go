package genai

import (
	"container/list"
	"sync"

	"github.com/couchcryptid/water-compliance-api/internal/domain"
)

// explanationKey identifies a generated explanation. Status is part of the
// key so a violation that moves from unaddressed to resolved is explained
// again.
type explanationKey struct {
	violation string // domain.ViolationContext.Key
	status    string
}

func keyFor(v domain.ViolationContext) explanationKey {
	return explanationKey{violation: v.Key(), status: v.Status}
}

type cachedExplanation struct {
	key  explanationKey
	text domain.ExplanationText
}

// explanationCache holds the most recently used generated explanations for
// one worker. A capacity of zero or less disables caching.
type explanationCache struct {
	capacity int

	mu      sync.Mutex
	byKey   map[explanationKey]*list.Element
	recency *list.List // front is most recently used
}

func newExplanationCache(capacity int) *explanationCache {
	return &explanationCache{
		capacity: capacity,
		byKey:    make(map[explanationKey]*list.Element),
		recency:  list.New(),
	}
}

func (c *explanationCache) lookup(k explanationKey) (domain.ExplanationText, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byKey[k]
	if !ok {
		return domain.ExplanationText{}, false
	}
	c.recency.MoveToFront(el)
	return el.Value.(*cachedExplanation).text, true
}

func (c *explanationCache) store(k explanationKey, text domain.ExplanationText) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[k]; ok {
		el.Value.(*cachedExplanation).text = text
		c.recency.MoveToFront(el)
		return
	}

	c.byKey[k] = c.recency.PushFront(&cachedExplanation{key: k, text: text})
	for c.recency.Len() > c.capacity {
		oldest := c.recency.Back()
		c.recency.Remove(oldest)
		delete(c.byKey, oldest.Value.(*cachedExplanation).key)
	}
}

func (c *explanationCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}
