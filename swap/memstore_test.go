// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swap

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/common"
)

func newTestOperation() *Operation {
	now := time.Now()
	return &Operation{
		SwapID:            uuid.New(),
		UserID:            uuid.New(),
		FromChain:         common.ChainA,
		ToChain:           common.ChainB,
		FromToken:         "TA",
		ToToken:           "TB",
		AmountIn:          common.MustDecimal("10"),
		ExpectedAmountOut: common.MustDecimal("9.9"),
		Status:            common.StatusInitialized,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(time.Hour),
	}
}

func TestInsertAndLoadRoundTrip(t *testing.T) {
	store := NewMemStore()
	op := newTestOperation()

	require.NoError(t, store.InsertSwap(context.Background(), op))

	loaded, err := store.LoadSwap(context.Background(), op.SwapID)
	require.NoError(t, err)
	require.Equal(t, op.SwapID, loaded.SwapID)
	require.Equal(t, common.StatusInitialized, loaded.Status)
}

func TestLoadMissingSwapReturnsNotFound(t *testing.T) {
	store := NewMemStore()
	_, err := store.LoadSwap(context.Background(), uuid.New())
	require.ErrorIs(t, err, common.ErrSwapNotFound)
}

func TestConditionalUpdateRejectsStaleExpectedStatus(t *testing.T) {
	store := NewMemStore()
	op := newTestOperation()
	require.NoError(t, store.InsertSwap(context.Background(), op))

	ok, err := store.ConditionalUpdate(context.Background(), op.SwapID,
		common.StatusSourceLocking, common.StatusSourceLocked, UpdateFields{}, "racing caller", "orchestrator", nil)
	require.NoError(t, err)
	require.False(t, ok, "update against the wrong expected status must not apply")

	loaded, err := store.LoadSwap(context.Background(), op.SwapID)
	require.NoError(t, err)
	require.Equal(t, common.StatusInitialized, loaded.Status)
}

func TestConditionalUpdateAppliesFieldsAndAudit(t *testing.T) {
	store := NewMemStore()
	op := newTestOperation()
	require.NoError(t, store.InsertSwap(context.Background(), op))

	txHash := common.Hash32{0x01}
	ok, err := store.ConditionalUpdate(context.Background(), op.SwapID,
		common.StatusInitialized, common.StatusSourceLocking, UpdateFields{}, "advancing", "orchestrator", nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.ConditionalUpdate(context.Background(), op.SwapID,
		common.StatusSourceLocking, common.StatusSourceLocked,
		UpdateFields{SourceTxHash: &txHash}, "locked", "orchestrator", nil)
	require.NoError(t, err)
	require.True(t, ok)

	loaded, err := store.LoadSwap(context.Background(), op.SwapID)
	require.NoError(t, err)
	require.Equal(t, common.StatusSourceLocked, loaded.Status)
	require.Equal(t, txHash, loaded.SourceTxHash)

	audit := store.Audit()
	require.Len(t, audit, 2)
	require.Equal(t, common.StatusInitialized, audit[0].From)
	require.Equal(t, common.StatusSourceLocked, audit[1].To)
}

func TestInsertRejectsDuplicateActiveQuantumHash(t *testing.T) {
	store := NewMemStore()
	hash := [32]byte{0xaa}

	first := newTestOperation()
	first.QuantumHash = hash
	require.NoError(t, store.InsertSwap(context.Background(), first))

	second := newTestOperation()
	second.QuantumHash = hash
	err := store.InsertSwap(context.Background(), second)
	require.ErrorIs(t, err, common.ErrQuantumHashCollision)
}

func TestListNonTerminalExcludesCompletedSwaps(t *testing.T) {
	store := NewMemStore()
	active := newTestOperation()
	require.NoError(t, store.InsertSwap(context.Background(), active))

	completed := newTestOperation()
	completed.Status = common.StatusCompleted
	require.NoError(t, store.InsertSwap(context.Background(), completed))

	rows, err := store.ListNonTerminal(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, active.SwapID, rows[0].SwapID)
}
