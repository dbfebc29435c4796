// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/orchestrator"
	"github.com/quantumbridge/bridge/swap"
)

var validate = validator.New()

// BridgeOrchestrator is the subset of orchestrator.Orchestrator the RPC
// layer depends on.
type BridgeOrchestrator interface {
	InitSwap(ctx context.Context, params orchestrator.Params) (*orchestrator.InitResponse, error)
	ExecuteSwap(ctx context.Context, swapID uuid.UUID) (*orchestrator.Result, error)
	ResolveReview(ctx context.Context, swapID uuid.UUID, allow bool) error
	LoadSwap(ctx context.Context, swapID uuid.UUID) (*swap.Operation, error)
}

// BridgeService is the gorilla/rpc JSON-RPC 2.0 service exposing the
// orchestrator's operations under the "bridge" namespace.
type BridgeService struct {
	orchestrator BridgeOrchestrator
}

// NewBridgeService builds a BridgeService backed by o.
func NewBridgeService(o BridgeOrchestrator) *BridgeService {
	return &BridgeService{orchestrator: o}
}

// InitSwapRequest is bridge.InitSwap's request body.
type InitSwapRequest struct {
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	FromChain string    `json:"from_chain" validate:"required,oneof=chain_a chain_b"`
	ToChain   string    `json:"to_chain" validate:"required,oneof=chain_a chain_b"`
	FromToken string    `json:"from_token" validate:"required"`
	ToToken   string    `json:"to_token" validate:"required"`
	AmountIn  string    `json:"amount_in" validate:"required"`
	Recipient string    `json:"recipient" validate:"required"`
}

// InitSwapResponse is bridge.InitSwap's response body.
type InitSwapResponse struct {
	SwapID            uuid.UUID `json:"swap_id"`
	Status            string    `json:"status"`
	EstimatedTimeSecs int64     `json:"estimated_time_seconds"`
}

// InitSwap validates and prices a new swap, runs the risk gate, and
// persists it.
func (s *BridgeService) InitSwap(r *http.Request, req *InitSwapRequest, resp *InitSwapResponse) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", common.ErrValidation, err)
	}

	amountIn, _, err := apd.NewFromString(req.AmountIn)
	if err != nil {
		return fmt.Errorf("%w: amount_in %q is not a decimal", common.ErrValidation, req.AmountIn)
	}

	out, err := s.orchestrator.InitSwap(r.Context(), orchestrator.Params{
		UserID:    req.UserID,
		FromChain: common.Chain(req.FromChain),
		ToChain:   common.Chain(req.ToChain),
		FromToken: req.FromToken,
		ToToken:   req.ToToken,
		AmountIn:  amountIn,
		Recipient: req.Recipient,
	})
	if err != nil {
		return err
	}

	resp.SwapID = out.SwapID
	resp.Status = string(out.Status)
	resp.EstimatedTimeSecs = int64(out.EstimatedTime / time.Second)
	return nil
}

// ExecuteSwapRequest is bridge.ExecuteSwap's request body.
type ExecuteSwapRequest struct {
	SwapID uuid.UUID `json:"swap_id"`
}

// ExecuteSwapResponse is bridge.ExecuteSwap's response body.
type ExecuteSwapResponse struct {
	SwapID            uuid.UUID `json:"swap_id"`
	Status            string    `json:"status"`
	SourceTxHash      string    `json:"source_tx_hash,omitempty"`
	DestinationTxHash string    `json:"destination_tx_hash,omitempty"`
}

// ExecuteSwap drives swap_id forward from whatever status it is
// currently persisted in, up to a terminal status or a recoverable stop
// point.
func (s *BridgeService) ExecuteSwap(r *http.Request, req *ExecuteSwapRequest, resp *ExecuteSwapResponse) error {
	result, err := s.orchestrator.ExecuteSwap(r.Context(), req.SwapID)
	if err != nil {
		return err
	}
	resp.SwapID = result.SwapID
	resp.Status = string(result.Status)
	if result.SourceTxHash != nil {
		resp.SourceTxHash = result.SourceTxHash.String()
	}
	if result.DestinationTxHash != nil {
		resp.DestinationTxHash = result.DestinationTxHash.String()
	}
	return nil
}

// ResolveReviewRequest is bridge.ResolveReview's request body.
type ResolveReviewRequest struct {
	SwapID uuid.UUID `json:"swap_id"`
	Allow  bool      `json:"allow"`
}

// ResolveReviewResponse is bridge.ResolveReview's response body.
type ResolveReviewResponse struct {
	SwapID uuid.UUID `json:"swap_id"`
	Status string    `json:"status"`
}

// ResolveReview applies an operator's decision to a swap awaiting manual
// review.
func (s *BridgeService) ResolveReview(r *http.Request, req *ResolveReviewRequest, resp *ResolveReviewResponse) error {
	if err := s.orchestrator.ResolveReview(r.Context(), req.SwapID, req.Allow); err != nil {
		return err
	}
	row, err := s.orchestrator.LoadSwap(r.Context(), req.SwapID)
	if err != nil {
		return err
	}
	resp.SwapID = row.SwapID
	resp.Status = string(row.Status)
	return nil
}

// SwapStatusRequest is bridge.SwapStatus's request body.
type SwapStatusRequest struct {
	SwapID uuid.UUID `json:"swap_id"`
}

// SwapStatusResponse is bridge.SwapStatus's response body, mirroring the
// fields of a swap row a caller outside the bridge process may read.
type SwapStatusResponse struct {
	SwapID            uuid.UUID `json:"swap_id"`
	Status            string    `json:"status"`
	FromChain         string    `json:"from_chain"`
	ToChain           string    `json:"to_chain"`
	AmountIn          string    `json:"amount_in"`
	ExpectedAmountOut string    `json:"expected_amount_out"`
	SourceTxHash      string    `json:"source_tx_hash,omitempty"`
	DestinationTxHash string    `json:"destination_tx_hash,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SwapStatus reads a swap's current persisted state without attempting
// to advance it.
func (s *BridgeService) SwapStatus(r *http.Request, req *SwapStatusRequest, resp *SwapStatusResponse) error {
	row, err := s.orchestrator.LoadSwap(r.Context(), req.SwapID)
	if err != nil {
		return err
	}

	resp.SwapID = row.SwapID
	resp.Status = string(row.Status)
	resp.FromChain = string(row.FromChain)
	resp.ToChain = string(row.ToChain)
	resp.AmountIn = row.AmountIn.Text('f')
	resp.ExpectedAmountOut = row.ExpectedAmountOut.Text('f')
	if !row.SourceTxHash.IsZero() {
		resp.SourceTxHash = row.SourceTxHash.String()
	}
	if !row.DestinationTxHash.IsZero() {
		resp.DestinationTxHash = row.DestinationTxHash.String()
	}
	resp.CreatedAt = row.CreatedAt
	resp.UpdatedAt = row.UpdatedAt
	return nil
}
