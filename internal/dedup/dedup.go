// Package dedup provides a bounded per-leader signature cache so the
// stream ingest and fallback poller can share one at-most-once-delivery
// guarantee without coordinating directly with each other.
package dedup

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MinCapacityPerLeader is the minimum number of signatures retained per
// leader before the oldest entry is evicted (spec: "bounded per-leader
// signature dedup LRU, >=256 entries").
const MinCapacityPerLeader = 256

// SignatureSet deduplicates transaction signatures per leader pubkey. Safe
// for concurrent use by the stream ingest and fallback poller goroutines.
type SignatureSet struct {
	capacity int

	mu     sync.Mutex
	caches map[string]*lru.Cache[string, struct{}]
}

// New creates a SignatureSet with the given per-leader capacity. Capacity
// is raised to MinCapacityPerLeader if lower.
func New(capacity int) *SignatureSet {
	if capacity < MinCapacityPerLeader {
		capacity = MinCapacityPerLeader
	}
	return &SignatureSet{
		capacity: capacity,
		caches:   make(map[string]*lru.Cache[string, struct{}]),
	}
}

// SeenOrAdd reports whether signature was already recorded for leader. If
// not, it is added and false is returned — the caller should process the
// event exactly once per (leader, signature) pair.
func (s *SignatureSet) SeenOrAdd(leader, signature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.caches[leader]
	if !ok {
		cache, _ = lru.New[string, struct{}](s.capacity)
		s.caches[leader] = cache
	}

	if cache.Contains(signature) {
		return true
	}
	cache.Add(signature, struct{}{})
	return false
}

// Reset drops the dedup cache for a leader, used when a subscription is
// removed so its memory isn't held indefinitely.
func (s *SignatureSet) Reset(leader string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.caches, leader)
}
