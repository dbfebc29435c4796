// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package events

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/quantumbridge/bridge/chainadapter"
	"github.com/quantumbridge/bridge/common"
)

// bridgeEventsABI is the non-indexed argument shape shared by the four
// Chain-A bridge log kinds: the locked/unlocked/minted/burned amount, the
// swap's quantum hash, and the counterparty chain the contract was told
// to bridge to. The indexed `user` argument is read from topics[1].
const bridgeEventsABI = `[
	{"type":"event","name":"TokensLocked","inputs":[
	 {"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256"},
	 {"name":"quantumHash","type":"string"},{"name":"counterpartyChain","type":"string"}]},
	{"type":"event","name":"TokensUnlocked","inputs":[
	 {"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256"},
	 {"name":"quantumHash","type":"string"},{"name":"counterpartyChain","type":"string"}]},
	{"type":"event","name":"BridgeDeposit","inputs":[
	 {"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256"},
	 {"name":"quantumHash","type":"string"},{"name":"counterpartyChain","type":"string"}]},
	{"type":"event","name":"BridgeWithdrawal","inputs":[
	 {"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256"},
	 {"name":"quantumHash","type":"string"},{"name":"counterpartyChain","type":"string"}]}
]`

// nearLogData is the flat JSON payload chainadapter.NearClassAdapter
// extracts from a NEP-297 "EVENT_JSON:" receipt log and sets as
// RawLog.Data; it carries the same four fields bridgeEventsABI's indexed
// address plus non-indexed arguments carry for Chain-A.
type nearLogData struct {
	User              string `json:"user"`
	Amount            string `json:"amount"`
	QuantumHash       string `json:"quantum_hash"`
	CounterpartyChain string `json:"counterparty_chain"`
}

// BridgeDecoder decodes RawLogs emitted by the bridge contract/receiver on
// either chain, matching them against chainadapter's Sig* topic constants.
// Chain-A logs are unpacked as real Solidity event data via go-ethereum's
// abi package; Chain-B logs carry nearLogData's flat JSON, assembled by
// the NEAR adapter from its own transaction receipts.
type BridgeDecoder struct {
	abi   abi.ABI
	names map[[32]byte]string
	kinds map[[32]byte]Kind
}

// NewBridgeDecoder builds a BridgeDecoder bound to the bridge event ABI
// and chainadapter's Sig* topics.
func NewBridgeDecoder() *BridgeDecoder {
	parsed, err := abi.JSON(strings.NewReader(bridgeEventsABI))
	if err != nil {
		panic(fmt.Sprintf("events: invalid bridge events ABI: %s", err))
	}

	kindsByName := map[string]Kind{
		"TokensLocked":     KindTokensLocked,
		"TokensUnlocked":   KindTokensUnlocked,
		"BridgeDeposit":    KindTokensMinted,
		"BridgeWithdrawal": KindTokensBurned,
	}
	topicsByName := map[string][32]byte{
		"TokensLocked":     [32]byte(chainadapter.Topic(chainadapter.SigTokensLocked)),
		"TokensUnlocked":   [32]byte(chainadapter.Topic(chainadapter.SigTokensUnlocked)),
		"BridgeDeposit":    [32]byte(chainadapter.Topic(chainadapter.SigBridgeDeposit)),
		"BridgeWithdrawal": [32]byte(chainadapter.Topic(chainadapter.SigBridgeWithdrawal)),
	}

	d := &BridgeDecoder{abi: parsed, names: map[[32]byte]string{}, kinds: map[[32]byte]Kind{}}
	for name, topic := range topicsByName {
		d.names[topic] = name
		d.kinds[topic] = kindsByName[name]
	}
	return d
}

// Decode implements Decoder. Logs with zero topics, or a topic0 matching
// none of the four known signatures, are reported unmatched rather than
// erroring: unrelated contract events share the same log stream.
func (d *BridgeDecoder) Decode(chain common.Chain, raw chainadapter.RawLog) (*BridgeEvent, bool, error) {
	if len(raw.Topics) == 0 || raw.Topics[0] == ([32]byte{}) {
		return nil, false, nil
	}

	name, ok := d.names[raw.Topics[0]]
	if !ok {
		return nil, false, nil
	}
	kind := d.kinds[raw.Topics[0]]

	if chain == common.ChainB {
		return d.decodeNear(chain, kind, raw)
	}
	return d.decodeEthereum(chain, name, kind, raw)
}

func (d *BridgeDecoder) decodeEthereum(chain common.Chain, name string, kind Kind, raw chainadapter.RawLog) (*BridgeEvent, bool, error) {
	values, err := d.abi.Unpack(name, raw.Data)
	if err != nil {
		return nil, true, fmt.Errorf("events: decode %s log at tx=%s idx=%d: %w", kind, raw.TxHash, raw.LogIndex, err)
	}
	if len(values) != 3 {
		return nil, true, fmt.Errorf("events: %s log at tx=%s idx=%d: expected 3 decoded values, got %d", kind, raw.TxHash, raw.LogIndex, len(values))
	}

	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, true, fmt.Errorf("events: %s log at tx=%s idx=%d: amount field has unexpected type %T", kind, raw.TxHash, raw.LogIndex, values[0])
	}
	quantumHashHex, ok := values[1].(string)
	if !ok {
		return nil, true, fmt.Errorf("events: %s log at tx=%s idx=%d: quantumHash field has unexpected type %T", kind, raw.TxHash, raw.LogIndex, values[1])
	}
	counterpartyChain, ok := values[2].(string)
	if !ok {
		return nil, true, fmt.Errorf("events: %s log at tx=%s idx=%d: counterpartyChain field has unexpected type %T", kind, raw.TxHash, raw.LogIndex, values[2])
	}

	quantumHash, err := common.HashFromHex(quantumHashHex)
	if err != nil {
		return nil, true, fmt.Errorf("events: %s log at tx=%s idx=%d: malformed quantum hash %q: %w", kind, raw.TxHash, raw.LogIndex, quantumHashHex, err)
	}

	var user string
	if len(raw.Topics) > 1 {
		user = ethcommon.BytesToAddress(raw.Topics[1][:]).Hex()
	}

	return &BridgeEvent{
		Kind:              kind,
		Chain:             chain,
		UserOrRecipient:   user,
		Amount:            amount.String(),
		CounterpartyChain: counterpartyChain,
		QuantumHash:       [32]byte(quantumHash),
		SourceTxHash:      raw.TxHash,
		LogIndex:          raw.LogIndex,
		BlockHeight:       raw.BlockHeight,
	}, true, nil
}

func (d *BridgeDecoder) decodeNear(chain common.Chain, kind Kind, raw chainadapter.RawLog) (*BridgeEvent, bool, error) {
	var data nearLogData
	if err := json.Unmarshal(raw.Data, &data); err != nil {
		return nil, true, fmt.Errorf("events: decode %s log at tx=%s idx=%d: %w", kind, raw.TxHash, raw.LogIndex, err)
	}

	quantumHash, err := common.HashFromHex(data.QuantumHash)
	if err != nil {
		return nil, true, fmt.Errorf("events: %s log at tx=%s idx=%d: malformed quantum hash %q: %w", kind, raw.TxHash, raw.LogIndex, data.QuantumHash, err)
	}

	return &BridgeEvent{
		Kind:              kind,
		Chain:             chain,
		UserOrRecipient:   data.User,
		Amount:            data.Amount,
		CounterpartyChain: data.CounterpartyChain,
		QuantumHash:       [32]byte(quantumHash),
		SourceTxHash:      raw.TxHash,
		LogIndex:          raw.LogIndex,
		BlockHeight:       raw.BlockHeight,
	}, true, nil
}
