// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantumbridge/bridge/common"
)

// MemStore is an in-process Store, used by the orchestrator's tests and by
// any deployment that hasn't wired Postgres yet. It applies the same
// compare-and-swap semantics as PGStore under a single mutex rather than a
// database transaction.
type MemStore struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*Operation
	audit []AuditRow
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{rows: map[uuid.UUID]*Operation{}}
}

func (s *MemStore) InsertSwap(ctx context.Context, row *Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[row.SwapID]; exists {
		return fmt.Errorf("swap: %s already exists", row.SwapID)
	}
	if row.QuantumHash != ([32]byte{}) {
		for _, r := range s.rows {
			if !r.Status.IsTerminal() && r.QuantumHash == row.QuantumHash {
				return common.ErrQuantumHashCollision
			}
		}
	}

	cp := *row
	s.rows[row.SwapID] = &cp
	return nil
}

func (s *MemStore) LoadSwap(ctx context.Context, swapID uuid.UUID) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[swapID]
	if !ok {
		return nil, common.ErrSwapNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *MemStore) LoadSwapByQuantumHash(ctx context.Context, hash [32]byte) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows {
		if !row.Status.IsTerminal() && row.QuantumHash == hash {
			cp := *row
			return &cp, nil
		}
	}
	return nil, common.ErrSwapNotFound
}

func (s *MemStore) ConditionalUpdate(
	ctx context.Context,
	swapID uuid.UUID,
	expectedPrevStatus common.Status,
	newStatus common.Status,
	fields UpdateFields,
	reason, actor string,
	metadata json.RawMessage,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[swapID]
	if !ok {
		return false, common.ErrSwapNotFound
	}
	if row.Status != expectedPrevStatus {
		return false, nil
	}

	now := time.Now()
	row.Status = newStatus
	row.UpdatedAt = now
	if fields.SourceTxHash != nil {
		row.SourceTxHash = *fields.SourceTxHash
	}
	if fields.DestinationTxHash != nil {
		row.DestinationTxHash = *fields.DestinationTxHash
	}
	if fields.RiskScore != nil {
		row.RiskScore = fields.RiskScore
	}
	if fields.QuantumKeyID != nil {
		row.QuantumKeyID = *fields.QuantumKeyID
	}
	if fields.QuantumHash != nil {
		row.QuantumHash = *fields.QuantumHash
	}

	s.audit = append(s.audit, AuditRow{
		SwapID:   swapID,
		From:     expectedPrevStatus,
		To:       newStatus,
		Reason:   reason,
		Actor:    actor,
		At:       now,
		Metadata: metadata,
	})
	return true, nil
}

func (s *MemStore) ListNonTerminal(ctx context.Context) ([]*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Operation
	for _, row := range s.rows {
		if !row.Status.IsTerminal() {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Audit returns a copy of every audit row written so far, for tests.
func (s *MemStore) Audit() []AuditRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditRow, len(s.audit))
	copy(out, s.audit)
	return out
}
