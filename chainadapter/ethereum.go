// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package chainadapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cockroachdb/apd/v3"
	ethereumgo "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	logging "github.com/ipfs/go-log"

	"github.com/quantumbridge/bridge/common"
)

var log = logging.Logger("chainadapter")

// Event signatures, bit-exact with the deployed bridge contracts. Topic 0
// is the keccak256 of the signature string.
const (
	SigTokensLocked      = "TokensLocked(address,uint256,string,string)"
	SigTokensUnlocked    = "TokensUnlocked(address,uint256,string,string)"
	SigBridgeDeposit     = "BridgeDeposit(address,uint256,string,string)"
	SigBridgeWithdrawal  = "BridgeWithdrawal(address,uint256,string,string)"
)

// Topic returns the keccak256 topic0 for one of the Sig* constants above.
func Topic(signature string) ethcommon.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

// EthereumBridge is the minimal generated-binding surface this adapter
// calls into; a real deployment supplies a go-ethereum abigen binding for
// the bridge contract with this method set.
type EthereumBridge interface {
	LockTokens(opts *bind.TransactOpts, amount *big.Int, quantumHash string, recipientChain string) (*types.Transaction, error)
	UnlockTokens(opts *bind.TransactOpts, amount *big.Int, recipient ethcommon.Address, sourceTxHash [32]byte, quantumHash string) (*types.Transaction, error)
	MintTokens(opts *bind.TransactOpts, recipient ethcommon.Address, amount *big.Int, sourceTxHash [32]byte, quantumHash string) (*types.Transaction, error)
	BurnTokens(opts *bind.TransactOpts, amount *big.Int, quantumHash string, recipientChain string) (*types.Transaction, error)
}

// EthereumAdapter implements Adapter over go-ethereum's ethclient,
// signing locally with a configured key rather than delegating to an
// external signer.
type EthereumAdapter struct {
	client       *ethclient.Client
	bridge       EthereumBridge
	contractAddr ethcommon.Address
	txOpts       func(ctx context.Context) (*bind.TransactOpts, error)
	tokenDecimals int32
	callTimeout  time.Duration

	idempotency *idempotencyCache
}

// NewEthereumAdapter returns an Adapter bound to Chain-A.
func NewEthereumAdapter(
	client *ethclient.Client,
	bridge EthereumBridge,
	contractAddr ethcommon.Address,
	txOpts func(ctx context.Context) (*bind.TransactOpts, error),
	tokenDecimals int32,
	callTimeout time.Duration,
) *EthereumAdapter {
	return &EthereumAdapter{
		client:        client,
		bridge:        bridge,
		contractAddr:  contractAddr,
		txOpts:        txOpts,
		tokenDecimals: tokenDecimals,
		callTimeout:   callTimeout,
		idempotency:   newIdempotencyCache(4096),
	}
}

// Chain returns ChainA: this adapter is always bound to the Ethereum-class
// side of the bridge.
func (a *EthereumAdapter) Chain() common.Chain { return common.ChainA }

// Lock submits a lock transaction, or returns the cached tx hash if this
// exact (swapID, quantumHash) pair already broadcast one.
func (a *EthereumAdapter) Lock(
	ctx context.Context,
	swapID string,
	amount *apd.Decimal,
	quantumHash [32]byte,
	recipientOnOtherSide string,
) (*LockResult, error) {
	if cached, ok := a.idempotency.lookup(swapID, quantumHash); ok {
		log.Debugf("ethereum adapter: lock for swap=%s already submitted, returning cached tx=%s", swapID, cached)
		return &LockResult{TxHash: cached, QuantumHash: quantumHash}, nil
	}

	amountWei, err := BigIntFromDecimal(amount, a.tokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	opts, err := a.txOpts(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	tx, err := a.bridge.LockTokens(opts, amountWei, common.Hash32(quantumHash).String(), recipientOnOtherSide)
	if err != nil {
		return nil, classifyError(err)
	}

	txHash := common.Hash32(tx.Hash())
	a.idempotency.record(swapID, quantumHash, txHash)
	return &LockResult{TxHash: txHash, QuantumHash: quantumHash}, nil
}

// Unlock submits an unlock (reverse-path) transaction.
func (a *EthereumAdapter) Unlock(
	ctx context.Context,
	swapID string,
	amount *apd.Decimal,
	recipient string,
	quantumHash [32]byte,
) (*UnlockResult, error) {
	if cached, ok := a.idempotency.lookup(swapID, quantumHash); ok {
		return &UnlockResult{TxHash: cached}, nil
	}

	amountWei, err := BigIntFromDecimal(amount, a.tokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	opts, err := a.txOpts(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	tx, err := a.bridge.UnlockTokens(opts, amountWei, ethcommon.HexToAddress(recipient), [32]byte{}, common.Hash32(quantumHash).String())
	if err != nil {
		return nil, classifyError(err)
	}

	txHash := common.Hash32(tx.Hash())
	a.idempotency.record(swapID, quantumHash, txHash)
	return &UnlockResult{TxHash: txHash}, nil
}

// Mint submits a mint transaction crediting recipient on Chain-A, used on
// the reverse (B->A) path's destination step.
func (a *EthereumAdapter) Mint(
	ctx context.Context,
	recipient string,
	amount *apd.Decimal,
	sourceTxHash common.Hash32,
	quantumHash [32]byte,
) (*MintResult, error) {
	swapKey := sourceTxHash.String()
	if cached, ok := a.idempotency.lookup(swapKey, quantumHash); ok {
		return &MintResult{TxHash: cached}, nil
	}

	amountWei, err := BigIntFromDecimal(amount, a.tokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	opts, err := a.txOpts(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	tx, err := a.bridge.MintTokens(opts, ethcommon.HexToAddress(recipient), amountWei, [32]byte(sourceTxHash), common.Hash32(quantumHash).String())
	if err != nil {
		return nil, classifyError(err)
	}

	txHash := common.Hash32(tx.Hash())
	a.idempotency.record(swapKey, quantumHash, txHash)
	return &MintResult{TxHash: txHash}, nil
}

// Burn submits a burn (forward-path source-side) transaction.
func (a *EthereumAdapter) Burn(
	ctx context.Context,
	swapID string,
	amount *apd.Decimal,
	quantumHash [32]byte,
	recipientOnOtherSide string,
) (*BurnResult, error) {
	if cached, ok := a.idempotency.lookup(swapID, quantumHash); ok {
		return &BurnResult{TxHash: cached}, nil
	}

	amountWei, err := BigIntFromDecimal(amount, a.tokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	opts, err := a.txOpts(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	tx, err := a.bridge.BurnTokens(opts, amountWei, common.Hash32(quantumHash).String(), recipientOnOtherSide)
	if err != nil {
		return nil, classifyError(err)
	}

	txHash := common.Hash32(tx.Hash())
	a.idempotency.record(swapID, quantumHash, txHash)
	return &BurnResult{TxHash: txHash}, nil
}

// StreamEvents subscribes to the bridge contract's logs starting at
// fromBlock, polling for new blocks (go-ethereum's FilterLogs) rather than
// relying on a websocket subscription, so it works against any JSON-RPC
// endpoint.
func (a *EthereumAdapter) StreamEvents(ctx context.Context, fromBlock uint64) (<-chan RawLog, error) {
	out := make(chan RawLog, 64)

	go func() {
		defer close(out)
		cursor := fromBlock
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			head, err := a.client.BlockNumber(ctx)
			if err != nil {
				log.Warnf("ethereum adapter: failed to fetch head: %s", err)
				continue
			}
			if head < cursor {
				continue
			}

			logs, err := a.client.FilterLogs(ctx, ethereumgo.FilterQuery{
				FromBlock: new(big.Int).SetUint64(cursor),
				ToBlock:   new(big.Int).SetUint64(head),
				Addresses: []ethcommon.Address{a.contractAddr},
			})
			if err != nil {
				log.Warnf("ethereum adapter: FilterLogs failed: %s", err)
				continue
			}

			for _, l := range logs {
				raw := RawLog{
					Data:        l.Data,
					BlockHeight: l.BlockNumber,
					TxHash:      common.Hash32(l.TxHash),
					LogIndex:    uint32(l.Index),
					Removed:     l.Removed,
				}
				for i, t := range l.Topics {
					if i >= len(raw.Topics) {
						break
					}
					raw.Topics[i] = [32]byte(t)
				}
				select {
				case out <- raw:
				case <-ctx.Done():
					return
				}
			}

			cursor = head + 1
		}
	}()

	return out, nil
}

// CurrentHeight returns the chain's current block height.
func (a *EthereumAdapter) CurrentHeight(ctx context.Context) (uint64, error) {
	return a.client.BlockNumber(ctx)
}

// GetTxConfirmations returns how many blocks have been mined on top of
// txHash's block, or 0 if the transaction is still pending/unknown.
func (a *EthereumAdapter) GetTxConfirmations(ctx context.Context, txHash common.Hash32) (uint64, error) {
	receipt, err := a.client.TransactionReceipt(ctx, ethcommon.Hash(txHash))
	if err != nil {
		return 0, nil //nolint:nilerr // pending/unknown tx: zero confirmations, not an error
	}
	head, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, classifyError(err)
	}
	if head < receipt.BlockNumber.Uint64() {
		return 0, nil
	}
	return head - receipt.BlockNumber.Uint64() + 1, nil
}

// classifyError maps a go-ethereum/transport error into one of the four
// adapter error categories. JSON-RPC error codes follow EIP-1474: code 3
// is "execution reverted", and -32000 is the generic server-error code
// go-ethereum's node uses for rejected sends (nonce too low, gas too low,
// and similar). Both are rolled back immediately rather than retried.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", common.ErrAdapterTimeout, err)
	}
	if errors.Is(err, ethereumgo.NotFound) {
		return fmt.Errorf("%w: %s", common.ErrAdapterNetwork, err)
	}
	if errors.Is(err, core.ErrInsufficientFunds) {
		return fmt.Errorf("%w: %s", common.ErrAdapterInsufficientFunds, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case 3, -32000:
			return fmt.Errorf("%w: %s", common.ErrAdapterRejected, err)
		}
	}

	return fmt.Errorf("%w: %s", common.ErrAdapterNetwork, err)
}
