// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/orchestrator"
	"github.com/quantumbridge/bridge/swap"
)

// fakeOrchestrator is a BridgeOrchestrator test double driven entirely by
// its fields, avoiding a dependency on the real orchestrator's adapters,
// store, and quantum module.
type fakeOrchestrator struct {
	initResponse *orchestrator.InitResponse
	initErr      error

	executeResult *orchestrator.Result
	executeErr    error

	resolveErr error

	row     *swap.Operation
	loadErr error
}

func (f *fakeOrchestrator) InitSwap(ctx context.Context, params orchestrator.Params) (*orchestrator.InitResponse, error) {
	return f.initResponse, f.initErr
}

func (f *fakeOrchestrator) ExecuteSwap(ctx context.Context, swapID uuid.UUID) (*orchestrator.Result, error) {
	return f.executeResult, f.executeErr
}

func (f *fakeOrchestrator) ResolveReview(ctx context.Context, swapID uuid.UUID, allow bool) error {
	return f.resolveErr
}

func (f *fakeOrchestrator) LoadSwap(ctx context.Context, swapID uuid.UUID) (*swap.Operation, error) {
	return f.row, f.loadErr
}

var _ BridgeOrchestrator = (*fakeOrchestrator)(nil)

func decimal(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

func newTestRequest() *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", nil)
}

func TestInitSwapRejectsUnparseableAmount(t *testing.T) {
	svc := NewBridgeService(&fakeOrchestrator{})
	var resp InitSwapResponse
	err := svc.InitSwap(newTestRequest(), &InitSwapRequest{AmountIn: "not-a-number"}, &resp)
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestInitSwapTranslatesParamsAndResponse(t *testing.T) {
	swapID := uuid.New()
	userID := uuid.New()
	fake := &fakeOrchestrator{
		initResponse: &orchestrator.InitResponse{
			SwapID:        swapID,
			Status:        common.StatusInitialized,
			EstimatedTime: 90 * time.Second,
		},
	}
	svc := NewBridgeService(fake)

	var resp InitSwapResponse
	req := &InitSwapRequest{
		UserID:    userID,
		FromChain: string(common.ChainA),
		ToChain:   string(common.ChainB),
		FromToken: "ETH",
		ToToken:   "wETH.near",
		AmountIn:  "2.5",
		Recipient: "recipient.near",
	}
	require.NoError(t, svc.InitSwap(newTestRequest(), req, &resp))

	require.Equal(t, swapID, resp.SwapID)
	require.Equal(t, string(common.StatusInitialized), resp.Status)
	require.Equal(t, int64(90), resp.EstimatedTimeSecs)
}

func TestExecuteSwapPropagatesOrchestratorError(t *testing.T) {
	fake := &fakeOrchestrator{executeErr: common.ErrSwapNotFound}
	svc := NewBridgeService(fake)

	var resp ExecuteSwapResponse
	err := svc.ExecuteSwap(newTestRequest(), &ExecuteSwapRequest{SwapID: uuid.New()}, &resp)
	require.ErrorIs(t, err, common.ErrSwapNotFound)
}

func TestExecuteSwapFormatsTxHashesWhenPresent(t *testing.T) {
	var srcHash common.Hash32
	srcHash[0] = 0xab
	fake := &fakeOrchestrator{
		executeResult: &orchestrator.Result{
			SwapID:       uuid.New(),
			Status:       common.StatusSourceLocked,
			SourceTxHash: &srcHash,
		},
	}
	svc := NewBridgeService(fake)

	var resp ExecuteSwapResponse
	require.NoError(t, svc.ExecuteSwap(newTestRequest(), &ExecuteSwapRequest{}, &resp))
	require.Equal(t, srcHash.String(), resp.SourceTxHash)
	require.Empty(t, resp.DestinationTxHash)
}

func TestResolveReviewReturnsUpdatedStatus(t *testing.T) {
	swapID := uuid.New()
	row := &swap.Operation{SwapID: swapID, Status: common.StatusInitialized}
	fake := &fakeOrchestrator{row: row}
	svc := NewBridgeService(fake)

	var resp ResolveReviewResponse
	require.NoError(t, svc.ResolveReview(newTestRequest(), &ResolveReviewRequest{SwapID: swapID, Allow: true}, &resp))
	require.Equal(t, swapID, resp.SwapID)
	require.Equal(t, string(common.StatusInitialized), resp.Status)
}

func TestResolveReviewPropagatesOrchestratorError(t *testing.T) {
	fake := &fakeOrchestrator{resolveErr: common.ErrInvalidStateTransition}
	svc := NewBridgeService(fake)

	var resp ResolveReviewResponse
	err := svc.ResolveReview(newTestRequest(), &ResolveReviewRequest{SwapID: uuid.New()}, &resp)
	require.ErrorIs(t, err, common.ErrInvalidStateTransition)
}

func TestSwapStatusFormatsDecimalsAndHashes(t *testing.T) {
	swapID := uuid.New()
	row := &swap.Operation{
		SwapID:            swapID,
		FromChain:         common.ChainA,
		ToChain:           common.ChainB,
		AmountIn:          decimal(t, "1.5"),
		ExpectedAmountOut: decimal(t, "1.49"),
		Status:            common.StatusSourceLocked,
	}
	fake := &fakeOrchestrator{row: row}
	svc := NewBridgeService(fake)

	var resp SwapStatusResponse
	require.NoError(t, svc.SwapStatus(newTestRequest(), &SwapStatusRequest{SwapID: swapID}, &resp))
	require.Equal(t, "1.5", resp.AmountIn)
	require.Equal(t, "1.49", resp.ExpectedAmountOut)
	require.Empty(t, resp.SourceTxHash)
}
