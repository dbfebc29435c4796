// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swap

import (
	"fmt"

	"github.com/quantumbridge/bridge/common"
)

// graph enumerates every edge the status machine permits. A transition not
// present here is rejected without mutating anything. TimedOut is reachable
// from every non-terminal status (added below) rather than listed per-entry.
var graph = map[common.Status][]common.Status{
	common.StatusInitialized: {
		common.StatusRiskRejected,
		common.StatusPendingReview,
		common.StatusSourceLocking,
	},
	common.StatusPendingReview: {
		common.StatusInitialized, // approved
		common.StatusCancelled,   // rejected
	},
	common.StatusSourceLocking: {
		common.StatusSourceLocked,
		common.StatusRollingBack,
	},
	common.StatusSourceLocked: {
		common.StatusDestinationApplying,
		common.StatusRollingBack,
	},
	common.StatusDestinationApplying: {
		common.StatusDestinationApplied,
		common.StatusRollingBack,
	},
	common.StatusDestinationApplied: {
		common.StatusCompleted,
		common.StatusRollingBack,
	},
	common.StatusRollingBack: {
		common.StatusRolledBack,
		common.StatusFailed,
	},
	common.StatusTimedOut: {
		common.StatusRollingBack,
	},
}

// nonTerminalStatuses is every status from which a TimedOut edge exists.
var nonTerminalStatuses = []common.Status{
	common.StatusInitialized,
	common.StatusPendingReview,
	common.StatusSourceLocking,
	common.StatusSourceLocked,
	common.StatusDestinationApplying,
	common.StatusDestinationApplied,
	common.StatusRollingBack,
}

func init() {
	for _, s := range nonTerminalStatuses {
		graph[s] = append(graph[s], common.StatusTimedOut)
	}
}

// CanTransition reports whether the edge from -> to is present in the
// status graph.
func CanTransition(from, to common.Status) bool {
	for _, candidate := range graph[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Transition validates the edge from -> to against the status graph,
// returning common.ErrInvalidStateTransition if the edge does not exist.
// It performs no I/O; the caller (Store.ConditionalUpdate) is responsible
// for atomically persisting the row and its audit entry.
func Transition(from, to common.Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", common.ErrInvalidStateTransition, from, to)
}
