package reid

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// HotCache is a bounded LRU index of recently active animal IDs. It does
// not limit how many identities the engine keeps in memory: it sits beside
// Engine's own map as a recency tracker, and eviction here
// does not delete the identity from Engine.identities (correctness is
// unaffected either way), it only bounds a separate "recently active"
// index used for cheap recency checks.
type HotCache struct {
	recent *lru.Cache[int64, struct{}]
}

func NewHotCache(size int) *HotCache {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[int64, struct{}](size)
	return &HotCache{recent: c}
}

func (h *HotCache) Touch(animalID int64) {
	h.recent.Add(animalID, struct{}{})
}

func (h *HotCache) IsHot(animalID int64) bool {
	_, ok := h.recent.Get(animalID)
	return ok
}
