// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package common holds types and constants shared across every bridge
// component: chain identifiers, the swap status graph, and the sentinel
// errors components classify their failures into.
package common

// Chain identifies one side of a bridge operation. The orchestrator treats
// both sides uniformly; only the chain adapter bound to a Chain knows its
// concrete wire format.
type Chain string

const (
	// ChainA is the source/destination placeholder bound to an
	// Ethereum-class chain in this deployment.
	ChainA Chain = "chain-a"
	// ChainB is the source/destination placeholder bound to a
	// NEAR-class chain in this deployment.
	ChainB Chain = "chain-b"
)

// Other returns the counterparty chain in a two-chain bridge.
func (c Chain) Other() Chain {
	switch c {
	case ChainA:
		return ChainB
	case ChainB:
		return ChainA
	default:
		return ""
	}
}

// Valid reports whether c is a known chain identifier.
func (c Chain) Valid() bool {
	return c == ChainA || c == ChainB
}

// ConfirmationDepthDefaults gives the default finality depth per chain
// family: 12 blocks for Ethereum-class chains, 1 for NEAR-class chains.
var ConfirmationDepthDefaults = map[Chain]uint64{
	ChainA: 12,
	ChainB: 1,
}
