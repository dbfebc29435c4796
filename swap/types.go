// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package swap holds the bridge's durable data model: the SwapOperation
// row, its status graph, the append-only audit log, and the store
// interface the orchestrator drives through a conditional-update locking
// primitive.
package swap

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/quantumbridge/bridge/common"
)

// Operation is one bridge transfer's full persisted state, from
// initialization through a terminal status.
type Operation struct {
	SwapID   uuid.UUID
	UserID   uuid.UUID

	FromChain common.Chain
	ToChain   common.Chain
	FromToken string
	ToToken   string

	AmountIn          *apd.Decimal
	ExpectedAmountOut *apd.Decimal
	FeeBreakdown      FeeBreakdown
	ExchangeRate      *apd.Decimal
	QuoteID           uuid.UUID
	QuoteValidUntil   time.Time

	Recipient string

	Status    common.Status
	RiskScore *float64

	QuantumKeyID uuid.UUID
	QuantumHash  [32]byte

	SourceTxHash      common.Hash32
	DestinationTxHash common.Hash32

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// FeeBreakdown mirrors pricing.FeeBreakdown as plain decimal fields so the
// swap package has no dependency on the pricing package; the orchestrator
// converts between the two at the boundary.
type FeeBreakdown struct {
	BaseFee               *apd.Decimal
	GasFee                *apd.Decimal
	ProtocolFee           *apd.Decimal
	SlippageProtectionFee *apd.Decimal
}

// AuditRow is one append-only entry in a swap's transition history,
// written in the same transaction as the status update it records.
type AuditRow struct {
	SwapID   uuid.UUID
	From     common.Status
	To       common.Status
	Reason   string
	Actor    string
	At       time.Time
	Metadata json.RawMessage
}
