// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package orchestrator

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/swap"
)

func TestTimeoutManagerFireSkipsWhenSwapAlreadyTerminal(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := swap.NewMockStore(ctrl)

	swapID := uuid.New()
	store.EXPECT().LoadSwap(gomock.Any(), swapID).
		Return(&swap.Operation{SwapID: swapID, Status: common.StatusCompleted}, nil)

	called := false
	tm := NewTimeoutManager(store, func(ctx context.Context, id uuid.UUID) error {
		called = true
		return nil
	})
	tm.fire(swapID)

	require.False(t, called, "on_timeout must not run once a swap already reached a terminal status")
}

func TestTimeoutManagerFireInvokesOnTimeoutForNonTerminalSwap(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := swap.NewMockStore(ctrl)

	swapID := uuid.New()
	store.EXPECT().LoadSwap(gomock.Any(), swapID).
		Return(&swap.Operation{SwapID: swapID, Status: common.StatusSourceLocked}, nil)

	var gotID uuid.UUID
	tm := NewTimeoutManager(store, func(ctx context.Context, id uuid.UUID) error {
		gotID = id
		return nil
	})
	tm.fire(swapID)

	require.Equal(t, swapID, gotID)
}

func TestTimeoutManagerFireSkipsOnTimeoutWhenLoadFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := swap.NewMockStore(ctrl)

	swapID := uuid.New()
	store.EXPECT().LoadSwap(gomock.Any(), swapID).
		Return(nil, common.ErrSwapNotFound)

	called := false
	tm := NewTimeoutManager(store, func(ctx context.Context, id uuid.UUID) error {
		called = true
		return nil
	})
	tm.fire(swapID)

	require.False(t, called, "on_timeout must not run when the row itself could not be loaded")
}

func TestRecoverSchedulesTimeoutsForEveryNonTerminalRow(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := swap.NewMockStore(ctrl)

	idA, idB := uuid.New(), uuid.New()
	store.EXPECT().ListNonTerminal(gomock.Any()).Return([]*swap.Operation{
		{SwapID: idA, Status: common.StatusSourceLocked},
		{SwapID: idB, Status: common.StatusInitialized},
	}, nil)

	o := &Orchestrator{store: store}
	o.timeouts = NewTimeoutManager(store, func(ctx context.Context, id uuid.UUID) error { return nil })

	ids, err := o.Recover(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{idA, idB}, ids)
}
