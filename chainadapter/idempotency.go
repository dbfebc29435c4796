// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package chainadapter

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/quantumbridge/bridge/common"
)

// idempotencyCache is the "already-submitted" cache every submission
// method consults before broadcasting: on a duplicate (swapID,
// quantumHash) key it returns the cached tx hash instead of
// re-submitting.
type idempotencyCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newIdempotencyCache(size int) *idempotencyCache {
	c, err := lru.New(size)
	if err != nil {
		// only possible if size <= 0, which callers never pass.
		panic(fmt.Sprintf("chainadapter: invalid idempotency cache size %d: %s", size, err))
	}
	return &idempotencyCache{cache: c}
}

func idempotencyKey(swapID string, quantumHash [32]byte) string {
	return swapID + ":" + common.Hash32(quantumHash).String()
}

// lookup returns the cached tx hash for (swapID, quantumHash), if any.
func (c *idempotencyCache) lookup(swapID string, quantumHash [32]byte) (common.Hash32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(idempotencyKey(swapID, quantumHash))
	if !ok {
		return common.Hash32{}, false
	}
	return v.(common.Hash32), true
}

// record stores the tx hash broadcast for (swapID, quantumHash).
func (c *idempotencyCache) record(swapID string, quantumHash [32]byte, txHash common.Hash32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(idempotencyKey(swapID, quantumHash), txHash)
}
