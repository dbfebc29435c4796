// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package common

import "errors"

// Sentinel errors shared across components, classified into a stable set
// of categories. Components wrap these with fmt.Errorf("%w: ...")
// rather than constructing new unclassified error values, so callers can
// dispatch on errors.Is/errors.As.
var (
	// ErrValidation is returned synchronously by init_swap for bad params;
	// no row is ever persisted for it.
	ErrValidation = errors.New("validation error")

	// ErrOracleUnavailable is the pricing engine's failure when a price
	// oracle query fails.
	ErrOracleUnavailable = errors.New("price oracle unavailable")

	// ErrQuoteExpired is returned by execute_swap when now > quote.ValidUntil.
	ErrQuoteExpired = errors.New("quote expired")

	// ErrRiskScorerUnavailable is the risk gate's failure when the external
	// scorer cannot be reached; resolved into Allow or a hard rejection
	// depending on config.RiskGate.FailurePolicy.
	ErrRiskScorerUnavailable = errors.New("risk scorer unavailable")

	// ErrRiskBlocked is returned when the risk gate's Block decision is not
	// overridden by an authorized admin override.
	ErrRiskBlocked = errors.New("risk gate blocked swap")

	// ErrAdapterNetwork classifies a recoverable chain-adapter failure.
	ErrAdapterNetwork = errors.New("chain adapter network error")

	// ErrAdapterInsufficientFunds classifies a non-retryable adapter failure.
	ErrAdapterInsufficientFunds = errors.New("insufficient funds")

	// ErrAdapterRejected classifies an on-chain revert.
	ErrAdapterRejected = errors.New("transaction rejected on-chain")

	// ErrAdapterTimeout classifies an adapter call that exceeded its
	// per-call timeout.
	ErrAdapterTimeout = errors.New("chain adapter timeout")

	// ErrQuantumHashMismatch is the destination-side verification failure:
	// the on-chain event's quantum hash does not match the stored row.
	ErrQuantumHashMismatch = errors.New("quantum hash mismatch")

	// ErrQuantumHashCollision is the hard error returned when a second
	// active swap matches the same quantum_hash.
	ErrQuantumHashCollision = errors.New("quantum hash collision across active swaps")

	// ErrInvalidStateTransition is the state machine's hard error: the
	// requested edge is not present in the status graph.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrConcurrentUpdate is returned when the store's conditional update
	// did not match the expected previous status -- another task already
	// advanced this swap.
	ErrConcurrentUpdate = errors.New("swap row was concurrently updated")

	// ErrSwapNotFound indicates no row exists for a given swap ID.
	ErrSwapNotFound = errors.New("swap not found")

	// ErrInvalidKey is the quantum module's failure when a stored KEM key
	// is absent, expired, or marked compromised.
	ErrInvalidKey = errors.New("invalid or expired quantum key")

	// ErrAlgorithmMismatch is the quantum module's failure when a stored
	// key's algorithm string does not match what the caller expects.
	ErrAlgorithmMismatch = errors.New("quantum key algorithm mismatch")

	// ErrMessageExpired/ErrMessageInvalid are the message authenticator's
	// verification failures.
	ErrMessageExpired = errors.New("authenticated message expired")
	ErrMessageInvalid = errors.New("authenticated message failed verification")

	// ErrRemediationRequired marks a terminal Failed swap that needs an
	// operator.
	ErrRemediationRequired = errors.New("swap requires manual remediation")
)
