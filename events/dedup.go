package events

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// lruDedupStore is an in-process DedupStore backed by a bounded LRU cache.
// A production deployment swaps this for one backed by ChainSafe/chaindb so
// the seen-set survives process restarts; this one is sufficient for a
// single long-lived process and for tests.
type lruDedupStore struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewLRUDedupStore returns a DedupStore holding up to size recently
// delivered event keys.
func NewLRUDedupStore(size int) DedupStore {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &lruDedupStore{cache: c}
}

func (s *lruDedupStore) Seen(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cache.Get(key)
	return ok, nil
}

func (s *lruDedupStore) MarkSeen(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(key, struct{}{})
	return nil
}
