// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swap

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/quantumbridge/bridge/common"
)

// UpdateFields carries the optional column updates a ConditionalUpdate may
// apply alongside the status transition itself. Zero-value fields are left
// untouched except where explicitly named (RiskScore, SourceTxHash,
// DestinationTxHash use pointer/IsZero sentinels to distinguish "no
// change" from "set to zero").
type UpdateFields struct {
	SourceTxHash      *common.Hash32
	DestinationTxHash *common.Hash32
	RiskScore         *float64
	QuantumKeyID      *uuid.UUID
	QuantumHash       *[32]byte
}

// Store is the transactional boundary the orchestrator and timeout manager
// depend on. The locking primitive is ConditionalUpdate: a caller that
// loses the compare-and-swap knows another task already advanced the row.
type Store interface {
	// InsertSwap atomically inserts row, failing if SwapID already exists
	// or if a non-terminal row already holds the same QuantumHash.
	InsertSwap(ctx context.Context, row *Operation) error

	// LoadSwap reads one row by ID, returning common.ErrSwapNotFound if
	// absent.
	LoadSwap(ctx context.Context, swapID uuid.UUID) (*Operation, error)

	// LoadSwapByQuantumHash reads the non-terminal row matching hash, for
	// the event pipeline's dispatch-by-quantum-hash step. Returns
	// common.ErrSwapNotFound if no non-terminal row matches.
	LoadSwapByQuantumHash(ctx context.Context, hash [32]byte) (*Operation, error)

	// ConditionalUpdate transitions swapID from expectedPrevStatus to
	// newStatus, applying fields and appending an audit row, all within a
	// single transaction. Returns false (no error) if the row's current
	// status did not match expectedPrevStatus -- the caller must treat
	// this as "another task already advanced this swap" and stop.
	ConditionalUpdate(
		ctx context.Context,
		swapID uuid.UUID,
		expectedPrevStatus common.Status,
		newStatus common.Status,
		fields UpdateFields,
		reason, actor string,
		metadata json.RawMessage,
	) (bool, error)

	// ListNonTerminal returns every row whose status is not yet terminal,
	// for the timeout manager's restart-recovery sweep.
	ListNonTerminal(ctx context.Context) ([]*Operation, error)
}
