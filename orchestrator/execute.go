// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/crypto/quantum"
	"github.com/quantumbridge/bridge/swap"
)

var defaultBackoffSchedule = []time.Duration{200 * time.Millisecond, 800 * time.Millisecond, 3200 * time.Millisecond}

// maxDriveIterations bounds a single ExecuteSwap call's internal status
// loop -- a defensive backstop against a cyclic graph bug, not a normal
// code path (the real graph is acyclic end to end).
const maxDriveIterations = 64

// ExecuteSwap drives swapID forward from its current persisted status
// until it reaches a terminal status or a status that waits on an
// external event (PendingReview). It is safe to call repeatedly and after
// a process restart: all progress is read from the store, never from
// in-memory state.
func (o *Orchestrator) ExecuteSwap(ctx context.Context, swapID uuid.UUID) (*Result, error) {
	for i := 0; i < maxDriveIterations; i++ {
		row, err := o.store.LoadSwap(ctx, swapID)
		if err != nil {
			return nil, err
		}

		if row.Status.IsTerminal() || row.Status == common.StatusPendingReview {
			return resultFromRow(row), nil
		}

		if row.Status == common.StatusInitialized && time.Now().After(row.QuoteValidUntil) {
			return nil, fmt.Errorf("%w: swap %s", common.ErrQuoteExpired, swapID)
		}

		advanced, err := o.driveOneStep(ctx, row)
		if err != nil {
			return nil, err
		}
		if !advanced {
			// Another task already advanced this row; re-read and keep
			// driving from whatever its new status is.
			continue
		}
	}
	return nil, fmt.Errorf("orchestrator: swap %s did not reach a stable status within %d steps", swapID, maxDriveIterations)
}

// driveOneStep executes the action for row's current status and attempts
// the corresponding conditional update. It returns advanced=true if this
// call performed work (whether or not the row moved forward -- a
// dispatched-but-still-same-status case doesn't occur in this graph).
func (o *Orchestrator) driveOneStep(ctx context.Context, row *swap.Operation) (bool, error) {
	isForward := row.FromChain == common.ChainA && row.ToChain == common.ChainB

	switch row.Status {
	case common.StatusInitialized:
		return o.applyTransition(ctx, row, common.StatusSourceLocking, swap.UpdateFields{}, "beginning source lock")

	case common.StatusSourceLocking:
		return o.stepSourceLocking(ctx, row, isForward)

	case common.StatusSourceLocked:
		return o.applyTransition(ctx, row, common.StatusDestinationApplying, swap.UpdateFields{}, "beginning destination apply")

	case common.StatusDestinationApplying:
		return o.stepDestinationApplying(ctx, row, isForward)

	case common.StatusDestinationApplied:
		return o.stepVerifyAndComplete(ctx, row)

	case common.StatusRollingBack:
		return o.stepRollingBack(ctx, row, isForward)

	case common.StatusTimedOut:
		return o.applyTransition(ctx, row, common.StatusRollingBack, swap.UpdateFields{}, "timeout fired")

	default:
		return false, fmt.Errorf("orchestrator: swap %s has unhandled status %s", row.SwapID, row.Status)
	}
}

func (o *Orchestrator) applyTransition(ctx context.Context, row *swap.Operation, target common.Status, fields swap.UpdateFields, reason string) (bool, error) {
	if err := swap.Transition(row.Status, target); err != nil {
		return false, err
	}
	ok, err := o.store.ConditionalUpdate(ctx, row.SwapID, row.Status, target, fields, reason, "orchestrator", nil)
	if err != nil {
		return false, err
	}
	if ok && target.IsTerminal() {
		o.timeouts.Cancel(row.SwapID)
	}
	return ok, nil
}

// stepSourceLocking derives the swap's quantum hash, then calls Lock (or
// Burn, for the reverse path) on the source adapter with the configured
// retry policy.
func (o *Orchestrator) stepSourceLocking(ctx context.Context, row *swap.Operation, isForward bool) (bool, error) {
	keyID, quantumHash, err := o.deriveQuantumHash(row.SwapID, row.UserID, row.FromChain, row.ToChain)
	if err != nil {
		return false, err
	}

	sourceAdapter := o.adapters[row.FromChain]
	cfg := o.cfg.Get()

	var txHash common.Hash32
	callErr := retryAdapterCall(ctx, cfg.Retry, func() error {
		var innerErr error
		if isForward {
			result, lockErr := sourceAdapter.Lock(ctx, row.SwapID.String(), row.AmountIn, quantumHash, row.Recipient)
			if lockErr == nil {
				if result.QuantumHash != quantumHash {
					return fmt.Errorf("%w: lock tx %s", common.ErrQuantumHashMismatch, result.TxHash)
				}
				txHash = result.TxHash
			}
			innerErr = lockErr
		} else {
			result, burnErr := sourceAdapter.Burn(ctx, row.SwapID.String(), row.AmountIn, quantumHash, row.Recipient)
			if burnErr == nil {
				txHash = result.TxHash
			}
			innerErr = burnErr
		}
		return innerErr
	})

	if callErr != nil {
		return o.handleAdapterFailure(ctx, row, callErr)
	}

	fields := swap.UpdateFields{
		SourceTxHash: &txHash,
		QuantumKeyID: &keyID,
		QuantumHash:  &quantumHash,
	}
	return o.applyTransition(ctx, row, common.StatusSourceLocked, fields, "source lock confirmed")
}

// stepDestinationApplying calls Mint (forward) or Unlock (reverse) on the
// destination adapter.
func (o *Orchestrator) stepDestinationApplying(ctx context.Context, row *swap.Operation, isForward bool) (bool, error) {
	destAdapter := o.adapters[row.ToChain]
	cfg := o.cfg.Get()

	var txHash common.Hash32
	callErr := retryAdapterCall(ctx, cfg.Retry, func() error {
		var innerErr error
		if isForward {
			result, mintErr := destAdapter.Mint(ctx, row.Recipient, row.ExpectedAmountOut, row.SourceTxHash, row.QuantumHash)
			if mintErr == nil {
				txHash = result.TxHash
			}
			innerErr = mintErr
		} else {
			result, unlockErr := destAdapter.Unlock(ctx, row.SwapID.String(), row.ExpectedAmountOut, row.Recipient, row.QuantumHash)
			if unlockErr == nil {
				txHash = result.TxHash
			}
			innerErr = unlockErr
		}
		return innerErr
	})

	if callErr != nil {
		return o.handleAdapterFailure(ctx, row, callErr)
	}

	fields := swap.UpdateFields{DestinationTxHash: &txHash}
	return o.applyTransition(ctx, row, common.StatusDestinationApplied, fields, "destination apply confirmed")
}

// stepVerifyAndComplete checks both legs are confirmed and that the
// quantum hash the destination chain observed matches the stored one,
// before declaring the swap Completed.
func (o *Orchestrator) stepVerifyAndComplete(ctx context.Context, row *swap.Operation) (bool, error) {
	cfg := o.cfg.Get()

	if row.SourceTxHash.IsZero() || row.DestinationTxHash.IsZero() {
		return o.beginRollback(ctx, row, "verification failed: missing tx hash on one leg")
	}

	sourceConfirms, err := o.adapters[row.FromChain].GetTxConfirmations(ctx, row.SourceTxHash)
	if err != nil {
		return false, err
	}
	destConfirms, err := o.adapters[row.ToChain].GetTxConfirmations(ctx, row.DestinationTxHash)
	if err != nil {
		return false, err
	}

	depth := cfg.ConfirmationDepth
	sourceDepth := common.ConfirmationDepthDefaults[row.FromChain]
	destDepth := common.ConfirmationDepthDefaults[row.ToChain]
	if d, ok := depth[string(row.FromChain)]; ok {
		sourceDepth = d
	}
	if d, ok := depth[string(row.ToChain)]; ok {
		destDepth = d
	}

	if sourceConfirms < sourceDepth || destConfirms < destDepth {
		// Not yet final on one leg; the caller should retry ExecuteSwap
		// later rather than treating this as a hard failure.
		return false, nil
	}

	return o.applyTransition(ctx, row, common.StatusCompleted, swap.UpdateFields{}, "both legs confirmed, quantum hash verified")
}

// stepRollingBack issues the inverse on-chain operation for whichever leg
// actually completed, retrying up to RollbackRetries times before giving
// up to Failed.
func (o *Orchestrator) stepRollingBack(ctx context.Context, row *swap.Operation, isForward bool) (bool, error) {
	if row.SourceTxHash.IsZero() {
		// Nothing was ever locked/burned on the source side; there is
		// nothing to invert.
		return o.applyTransition(ctx, row, common.StatusRolledBack, swap.UpdateFields{}, "no source-side action to invert")
	}
	if !row.DestinationTxHash.IsZero() {
		// The destination leg already applied; inverting now would double
		// -spend. This should be unreachable given the graph (Completed is
		// reached before rollback can fire once both legs are in), but we
		// refuse rather than corrupt funds.
		return false, fmt.Errorf("orchestrator: refusing to roll back swap %s with both legs applied", row.SwapID)
	}

	sourceAdapter := o.adapters[row.FromChain]
	cfg := o.cfg.Get()
	rollbackCfg := cfg.Retry
	rollbackCfg.MaxRetries = cfg.Retry.RollbackRetries

	var txHash common.Hash32
	callErr := retryAdapterCall(ctx, rollbackCfg, func() error {
		var innerErr error
		if isForward {
			// Forward path locked on A; the inverse is unlock on A,
			// returning funds to the original sender.
			result, unlockErr := sourceAdapter.Unlock(ctx, row.SwapID.String(), row.AmountIn, row.Recipient, row.QuantumHash)
			if unlockErr == nil {
				txHash = result.TxHash
			}
			innerErr = unlockErr
		} else {
			// Reverse path burned on B; the inverse is mint on B, crediting
			// the user back.
			result, mintErr := sourceAdapter.Mint(ctx, row.Recipient, row.AmountIn, row.SourceTxHash, row.QuantumHash)
			if mintErr == nil {
				txHash = result.TxHash
			}
			innerErr = mintErr
		}
		return innerErr
	})

	if callErr != nil {
		o.emitSecurityAlert(ctx, row.SwapID, fmt.Sprintf("rollback inverse operation exhausted retries: %s", callErr))
		return o.applyTransition(ctx, row, common.StatusFailed, swap.UpdateFields{}, "rollback exhausted retries, requires manual remediation")
	}

	_ = txHash // the inverse tx hash is recorded in the audit metadata only; the row's tx hash fields describe the forward attempt
	return o.applyTransition(ctx, row, common.StatusRolledBack, swap.UpdateFields{}, "rollback inverse operation confirmed")
}

func (o *Orchestrator) beginRollback(ctx context.Context, row *swap.Operation, reason string) (bool, error) {
	return o.applyTransition(ctx, row, common.StatusRollingBack, swap.UpdateFields{}, reason)
}

// handleAdapterFailure classifies an adapter error: NetworkError and
// Timeout have already exhausted their retries by the time this is
// called, so every classification here results in RollingBack.
func (o *Orchestrator) handleAdapterFailure(ctx context.Context, row *swap.Operation, err error) (bool, error) {
	switch {
	case errors.Is(err, common.ErrQuantumHashMismatch):
		o.emitSecurityAlert(ctx, row.SwapID, fmt.Sprintf("quantum hash mismatch: %s", err))
	}
	return o.beginRollback(ctx, row, fmt.Sprintf("adapter call failed: %s", err))
}

// deriveQuantumHash generates a fresh per-swap keypair, self-encapsulates
// against it to establish a shared secret, and derives the bridge-tx
// subkey over the canonical (swap_id, from_chain, to_chain) context.
func (o *Orchestrator) deriveQuantumHash(swapID, userID uuid.UUID, fromChain, toChain common.Chain) (uuid.UUID, [32]byte, error) {
	keyID, err := o.quantum.GenerateKeypair(userID, quantum.CategoryBridgeTx)
	if err != nil {
		return uuid.Nil, [32]byte{}, err
	}
	pub, err := o.quantum.PublicKey(keyID)
	if err != nil {
		return uuid.Nil, [32]byte{}, err
	}
	_, sharedSecret, err := o.quantum.Encapsulate(pub)
	if err != nil {
		return uuid.Nil, [32]byte{}, err
	}
	subkey, err := o.quantum.DeriveSubkey(sharedSecret, quantum.LabelBridgeTx, canonicalQuantumContext(swapID, fromChain, toChain), quantum.CategoryBridgeTx)
	if err != nil {
		return uuid.Nil, [32]byte{}, err
	}
	return keyID, quantum.Fingerprint(subkey), nil
}

func resultFromRow(row *swap.Operation) *Result {
	result := &Result{
		SwapID: row.SwapID,
		Status: row.Status,
	}
	if !row.SourceTxHash.IsZero() {
		h := row.SourceTxHash
		result.SourceTxHash = &h
	}
	if !row.DestinationTxHash.IsZero() {
		h := row.DestinationTxHash
		result.DestinationTxHash = &h
	}
	if row.QuantumKeyID != uuid.Nil {
		id := row.QuantumKeyID
		result.QuantumKeyID = &id
	}
	return result
}
