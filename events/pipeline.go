// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package events runs the bridge's ingestion pipeline: one long-running
// task per chain that waits for confirmation depth, decodes logs into
// typed BridgeEvents, deduplicates by (tx hash, log index), and forwards
// them over a single channel the orchestrator consumes.
package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/quantumbridge/bridge/chainadapter"
	"github.com/quantumbridge/bridge/common"
)

var log = logging.Logger("events")

// Kind enumerates the decoded event variants the pipeline understands.
type Kind string

const (
	KindTokensLocked   Kind = "tokens_locked"
	KindTokensUnlocked Kind = "tokens_unlocked"
	KindTokensMinted   Kind = "tokens_minted"
	KindTokensBurned   Kind = "tokens_burned"
)

// BridgeEvent is a decoded, finality-confirmed on-chain event.
type BridgeEvent struct {
	Kind                Kind
	Chain               common.Chain
	UserOrRecipient     string
	Amount              string // decimal string; decoded/parsed by the consumer with the token's precision
	CounterpartyChain    string
	QuantumHash         [32]byte
	SourceTxHash        common.Hash32
	LogIndex            uint32
	BlockHeight         uint64
}

func (e BridgeEvent) dedupKey() string {
	return fmt.Sprintf("%s:%d", e.SourceTxHash.String(), e.LogIndex)
}

// Decoder turns a chain-agnostic RawLog into a BridgeEvent, or reports that
// the log did not match any known bridge event signature. Malformed/
// unrecognized logs are dropped by the pipeline, never propagated.
type Decoder interface {
	Decode(chain common.Chain, raw chainadapter.RawLog) (*BridgeEvent, bool, error)
}

// DedupStore persists the bounded set of already-delivered
// (tx hash, log index) pairs across restarts.
type DedupStore interface {
	Seen(key string) (bool, error)
	MarkSeen(key string) error
}

// Pipeline runs one ingestion task per configured chain and dispatches
// decoded, deduplicated events to a single consumer channel.
type Pipeline struct {
	adapters          map[common.Chain]chainadapter.Adapter
	confirmationDepth map[common.Chain]uint64
	decoder           Decoder
	dedup             DedupStore

	out chan BridgeEvent

	mu      sync.Mutex
	cursors map[common.Chain]uint64
}

// NewPipeline constructs a Pipeline over the given per-chain adapters.
// confirmationDepth defaults to common.ConfirmationDepthDefaults for any
// chain not present in the map.
func NewPipeline(
	adapters map[common.Chain]chainadapter.Adapter,
	confirmationDepth map[common.Chain]uint64,
	decoder Decoder,
	dedup DedupStore,
) *Pipeline {
	depth := map[common.Chain]uint64{}
	for chain, d := range common.ConfirmationDepthDefaults {
		depth[chain] = d
	}
	for chain, d := range confirmationDepth {
		depth[chain] = d
	}

	return &Pipeline{
		adapters:          adapters,
		confirmationDepth: depth,
		decoder:           decoder,
		dedup:             dedup,
		out:               make(chan BridgeEvent, 256),
		cursors:           map[common.Chain]uint64{},
	}
}

// Events returns the single channel the orchestrator consumes decoded
// BridgeEvents from. Events from one chain arrive in block-height order
// (ties broken by log index); no ordering is guaranteed across chains.
func (p *Pipeline) Events() <-chan BridgeEvent {
	return p.out
}

// Run starts one ingestion goroutine per chain and blocks until ctx is
// cancelled or an unrecoverable error occurs. Each chain's goroutine
// reconnects with exponential backoff (1s, capped at 60s) on stream
// termination, resuming from the last acknowledged height.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for chain, adapter := range p.adapters {
		wg.Add(1)
		go func(chain common.Chain, adapter chainadapter.Adapter) {
			defer wg.Done()
			p.runChain(ctx, chain, adapter)
		}(chain, adapter)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		<-done
		close(p.out)
		return ctx.Err()
	case <-done:
		close(p.out)
		return nil
	}
}

// StartFrom sets the height a chain's ingestion goroutine resumes from
// (current_height at startup, or the last persisted cursor on restart).
func (p *Pipeline) StartFrom(chain common.Chain, height uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursors[chain] = height
}

func (p *Pipeline) runChain(ctx context.Context, chain common.Chain, adapter chainadapter.Adapter) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		p.mu.Lock()
		from, ok := p.cursors[chain]
		p.mu.Unlock()
		if !ok {
			height, err := adapter.CurrentHeight(ctx)
			if err != nil {
				log.Warnf("events: %s: failed to fetch current height: %s", chain, err)
				if !sleepBackoff(ctx, &backoff) {
					return
				}
				continue
			}
			from = height
		}

		rawLogs, err := adapter.StreamEvents(ctx, from)
		if err != nil {
			log.Warnf("events: %s: stream failed to start: %s", chain, err)
			if !sleepBackoff(ctx, &backoff) {
				return
			}
			continue
		}

		// A successful (re)connection resets the backoff schedule.
		backoff = time.Second
		p.consume(ctx, chain, adapter, rawLogs)

		if ctx.Err() != nil {
			return
		}
		log.Warnf("events: %s: stream terminated, reconnecting", chain)
		if !sleepBackoff(ctx, &backoff) {
			return
		}
	}
}

func sleepBackoff(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
	}
	*backoff *= 2
	if *backoff > 60*time.Second {
		*backoff = 60 * time.Second
	}
	return true
}

// pendingLog buffers a raw log until it reaches confirmation depth.
type pendingLog struct {
	raw       chainadapter.RawLog
	firstSeen time.Time
}

func (p *Pipeline) consume(ctx context.Context, chain common.Chain, adapter chainadapter.Adapter, rawLogs <-chan chainadapter.RawLog) {
	depth := p.confirmationDepth[chain]
	var pending []pendingLog
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	flush := func() {
		height, err := adapter.CurrentHeight(ctx)
		if err != nil {
			return
		}

		remaining := pending[:0]
		var ready []chainadapter.RawLog
		for _, pl := range pending {
			if height >= pl.raw.BlockHeight+depth-1 {
				ready = append(ready, pl.raw)
			} else {
				remaining = append(remaining, pl)
			}
		}
		pending = remaining

		sort.Slice(ready, func(i, j int) bool {
			if ready[i].BlockHeight != ready[j].BlockHeight {
				return ready[i].BlockHeight < ready[j].BlockHeight
			}
			return ready[i].LogIndex < ready[j].LogIndex
		})

		for _, raw := range ready {
			p.deliver(chain, raw)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawLogs:
			if !ok {
				flush()
				return
			}
			if raw.Removed {
				continue
			}
			pending = append(pending, pendingLog{raw: raw, firstSeen: time.Now()})
		case <-ticker.C:
			flush()
		}
	}
}

func (p *Pipeline) deliver(chain common.Chain, raw chainadapter.RawLog) {
	event, matched, err := p.decoder.Decode(chain, raw)
	if err != nil {
		log.Warnf("events: %s: malformed log at block %d index %d, dropping: %s", chain, raw.BlockHeight, raw.LogIndex, err)
		return
	}
	if !matched {
		return
	}

	key := event.dedupKey()
	seen, err := p.dedup.Seen(key)
	if err != nil {
		log.Warnf("events: %s: dedup lookup failed for %s, delivering anyway: %s", chain, key, err)
	} else if seen {
		log.Debugf("events: %s: dropping duplicate delivery for %s", chain, key)
		return
	}

	if err := p.dedup.MarkSeen(key); err != nil {
		log.Warnf("events: %s: failed to persist dedup marker for %s: %s", chain, key, err)
	}

	select {
	case p.out <- *event:
	default:
		log.Warnf("events: %s: dispatcher channel full, blocking delivery of %s", chain, key)
		p.out <- *event
	}
}
