// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package chainadapter provides a uniform interface over a single
// blockchain that the orchestrator drives without knowing which chain is
// underneath. Two concrete adapters satisfy Adapter -- an Ethereum-class
// adapter (ethereum.go) wrapping go-ethereum's ethclient, and a NEAR-class
// adapter (nearclass.go) speaking the chain's JSON-RPC directly.
// Idempotency is enforced uniformly by idempotency.go's bounded cache,
// shared by both adapters.
package chainadapter

import (
	"context"
	"math/big"

	"github.com/cockroachdb/apd/v3"

	"github.com/quantumbridge/bridge/common"
)

// RawLog is a chain-agnostic representation of one emitted event, enough
// for events.Pipeline to decode without depending on ethereum-specific
// types.
type RawLog struct {
	Topics      [][32]byte
	Data        []byte
	BlockHeight uint64
	TxHash      common.Hash32
	LogIndex    uint32
	Removed     bool
}

// LockResult is Adapter's return value for Lock.
type LockResult struct {
	TxHash      common.Hash32
	QuantumHash [32]byte
}

// UnlockResult is Adapter's return value for Unlock.
type UnlockResult struct {
	TxHash common.Hash32
}

// MintResult is Adapter's return value for Mint.
type MintResult struct {
	TxHash common.Hash32
}

// BurnResult is Adapter's return value for Burn.
type BurnResult struct {
	TxHash common.Hash32
}

// Adapter is the uniform per-chain interface the orchestrator drives.
// Each submission method is idempotent for a given (swapID, quantumHash)
// pair.
type Adapter interface {
	Chain() common.Chain

	Lock(ctx context.Context, swapID string, amount *apd.Decimal, quantumHash [32]byte, recipientOnOtherSide string) (*LockResult, error)
	Unlock(ctx context.Context, swapID string, amount *apd.Decimal, recipient string, quantumHash [32]byte) (*UnlockResult, error)
	Mint(ctx context.Context, recipient string, amount *apd.Decimal, sourceTxHash common.Hash32, quantumHash [32]byte) (*MintResult, error)
	Burn(ctx context.Context, swapID string, amount *apd.Decimal, quantumHash [32]byte, recipientOnOtherSide string) (*BurnResult, error)

	StreamEvents(ctx context.Context, fromBlock uint64) (<-chan RawLog, error)
	CurrentHeight(ctx context.Context) (uint64, error)
	GetTxConfirmations(ctx context.Context, txHash common.Hash32) (uint64, error)
}

// BigIntFromDecimal converts a non-negative arbitrary-precision amount into
// the integer base-unit representation on-chain calls expect (wei-like
// units), given the number of base-unit decimals the chain/token uses.
func BigIntFromDecimal(amount *apd.Decimal, decimals int32) (*big.Int, error) {
	scaled := new(apd.Decimal)
	_, err := apd.BaseContext.WithPrecision(60).Mul(scaled, amount, apd.New(1, decimals))
	if err != nil {
		return nil, err
	}
	rounded := new(apd.Decimal)
	_, err = apd.BaseContext.WithPrecision(60).RoundToIntegralValue(rounded, scaled)
	if err != nil {
		return nil, err
	}
	i, ok := new(big.Int).SetString(rounded.Text('f'), 10)
	if !ok {
		return nil, common.ErrValidation
	}
	return i, nil
}
