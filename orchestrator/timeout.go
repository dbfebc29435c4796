// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/swap"
)

// TimeoutManager holds one timer per in-flight swap. A timer fires
// on_timeout; the manager keeps only a swap_id per timer, never a
// reference back into the orchestrator's in-memory state, so recovery
// after a restart is just "re-schedule from the store" rather than
// reconstructing a dependency cycle.
type TimeoutManager struct {
	store     swap.Store
	onTimeout func(ctx context.Context, swapID uuid.UUID) error

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

// NewTimeoutManager returns a TimeoutManager that invokes onTimeout when a
// swap's deadline fires.
func NewTimeoutManager(store swap.Store, onTimeout func(ctx context.Context, swapID uuid.UUID) error) *TimeoutManager {
	return &TimeoutManager{
		store:     store,
		onTimeout: onTimeout,
		timers:    map[uuid.UUID]*time.Timer{},
	}
}

// Schedule arms a timer for swapID firing at expiresAt. Scheduling the same
// swapID twice replaces the earlier timer.
func (tm *TimeoutManager) Schedule(swapID uuid.UUID, expiresAt time.Time) {
	delay := time.Until(expiresAt)
	if delay < 0 {
		delay = 0
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	if existing, ok := tm.timers[swapID]; ok {
		existing.Stop()
	}
	tm.timers[swapID] = time.AfterFunc(delay, func() {
		tm.fire(swapID)
	})
}

// Cancel disarms swapID's timer, if any -- called once a swap reaches a
// terminal status through any path other than the timeout itself.
func (tm *TimeoutManager) Cancel(swapID uuid.UUID) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if existing, ok := tm.timers[swapID]; ok {
		existing.Stop()
		delete(tm.timers, swapID)
	}
}

func (tm *TimeoutManager) fire(swapID uuid.UUID) {
	tm.mu.Lock()
	delete(tm.timers, swapID)
	tm.mu.Unlock()

	ctx := context.Background()
	row, err := tm.store.LoadSwap(ctx, swapID)
	if err != nil {
		log.Warnf("orchestrator: timeout fired for swap %s but it could not be loaded: %s", swapID, err)
		return
	}
	if row.Status.IsTerminal() {
		return
	}
	if err := tm.onTimeout(ctx, swapID); err != nil {
		log.Warnf("orchestrator: on_timeout failed for swap %s: %s", swapID, err)
	}
}

// OnTimeout drives swapID's current non-terminal status into TimedOut, then
// lets a subsequent ExecuteSwap call carry it through RollingBack.
func (o *Orchestrator) OnTimeout(ctx context.Context, swapID uuid.UUID) error {
	row, err := o.store.LoadSwap(ctx, swapID)
	if err != nil {
		return err
	}
	if row.Status.IsTerminal() {
		return nil
	}

	ok, err := o.store.ConditionalUpdate(ctx, swapID, row.Status, common.StatusTimedOut, swap.UpdateFields{}, "overall swap deadline exceeded", "timeout-manager", nil)
	if err != nil {
		return err
	}
	if !ok {
		// Already advanced by another path between the load and here.
		return nil
	}

	_, err = o.ExecuteSwap(ctx, swapID)
	return err
}

// Recover scans the store for non-terminal swaps on process restart and
// re-schedules their timeouts. It does not itself resume execution --
// callers typically fan this out to a worker pool calling ExecuteSwap for
// each returned ID.
func (o *Orchestrator) Recover(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := o.store.ListNonTerminal(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		o.timeouts.Schedule(row.SwapID, row.ExpiresAt)
		ids = append(ids, row.SwapID)
	}
	return ids, nil
}
