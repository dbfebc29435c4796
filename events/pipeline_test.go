package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/chainadapter"
	"github.com/quantumbridge/bridge/common"
)

// fakeAdapter streams a fixed sequence of RawLogs and reports a
// caller-controlled current height, enough to exercise confirmation-depth
// gating without a real chain client. Only CurrentHeight and StreamEvents
// are exercised by these tests; the submission methods are unused stubs.
type fakeAdapter struct {
	chain  common.Chain
	logsCh chan chainadapter.RawLog

	mu     sync.Mutex
	height uint64
}

func newFakeAdapter(chain common.Chain) *fakeAdapter {
	return &fakeAdapter{chain: chain, logsCh: make(chan chainadapter.RawLog, 16)}
}

func (a *fakeAdapter) Chain() common.Chain { return a.chain }

func (a *fakeAdapter) Lock(context.Context, string, *apd.Decimal, [32]byte, string) (*chainadapter.LockResult, error) {
	return nil, nil
}

func (a *fakeAdapter) Unlock(context.Context, string, *apd.Decimal, string, [32]byte) (*chainadapter.UnlockResult, error) {
	return nil, nil
}

func (a *fakeAdapter) Mint(context.Context, string, *apd.Decimal, common.Hash32, [32]byte) (*chainadapter.MintResult, error) {
	return nil, nil
}

func (a *fakeAdapter) Burn(context.Context, string, *apd.Decimal, [32]byte, string) (*chainadapter.BurnResult, error) {
	return nil, nil
}

func (a *fakeAdapter) setHeight(h uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.height = h
}

func (a *fakeAdapter) CurrentHeight(context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.height, nil
}

func (a *fakeAdapter) GetTxConfirmations(context.Context, common.Hash32) (uint64, error) {
	return 0, nil
}

func (a *fakeAdapter) StreamEvents(ctx context.Context, fromBlock uint64) (<-chan chainadapter.RawLog, error) {
	return a.logsCh, nil
}

// stubDecoder decodes any RawLog with a non-zero first byte of Data into a
// TokensLocked event keyed by its block height, so tests can drive decoding
// deterministically without real ABI-encoded payloads.
type stubDecoder struct{}

func (stubDecoder) Decode(chain common.Chain, raw chainadapter.RawLog) (*BridgeEvent, bool, error) {
	if len(raw.Data) == 0 {
		return nil, false, nil
	}
	return &BridgeEvent{
		Kind:         KindTokensLocked,
		Chain:        chain,
		SourceTxHash: raw.TxHash,
		LogIndex:     raw.LogIndex,
		BlockHeight:  raw.BlockHeight,
	}, true, nil
}

func TestPipelineWaitsForConfirmationDepth(t *testing.T) {
	adapter := newFakeAdapter(common.ChainA)
	adapter.setHeight(100)

	p := &Pipeline{
		adapters:          map[common.Chain]chainadapter.Adapter{},
		confirmationDepth: map[common.Chain]uint64{common.ChainA: 12},
		decoder:           stubDecoder{},
		dedup:             NewLRUDedupStore(64),
		out:               make(chan BridgeEvent, 8),
		cursors:           map[common.Chain]uint64{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rawLogs := make(chan chainadapter.RawLog, 4)
	rawLogs <- chainadapter.RawLog{Data: []byte{0x01}, BlockHeight: 95, TxHash: common.Hash32{0xAA}, LogIndex: 0}
	close(rawLogs)

	done := make(chan struct{})
	go func() {
		p.consume(ctx, common.ChainA, adapter, rawLogs)
		close(done)
	}()

	select {
	case evt := <-p.out:
		require.Equal(t, uint64(95), evt.BlockHeight)
	case <-done:
		t.Fatal("consume returned before delivering the confirmed event")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for confirmed event")
	}
}

func TestPipelineDropsUnmatchedLogs(t *testing.T) {
	adapter := newFakeAdapter(common.ChainA)
	adapter.setHeight(200)

	p := &Pipeline{
		confirmationDepth: map[common.Chain]uint64{common.ChainA: 1},
		decoder:           stubDecoder{},
		dedup:             NewLRUDedupStore(64),
		out:               make(chan BridgeEvent, 8),
	}

	p.deliver(common.ChainA, chainadapter.RawLog{Data: nil, BlockHeight: 10})

	select {
	case <-p.out:
		t.Fatal("unmatched log should not be delivered")
	default:
	}
}

func TestPipelineDedupsRepeatedDelivery(t *testing.T) {
	p := &Pipeline{
		decoder: stubDecoder{},
		dedup:   NewLRUDedupStore(64),
		out:     make(chan BridgeEvent, 8),
	}

	raw := chainadapter.RawLog{Data: []byte{0x01}, BlockHeight: 5, TxHash: common.Hash32{0xBB}, LogIndex: 2}
	p.deliver(common.ChainA, raw)
	p.deliver(common.ChainA, raw)

	require.Len(t, p.out, 1)
}

func TestLRUDedupStoreSeenThenMarked(t *testing.T) {
	s := NewLRUDedupStore(4)
	seen, err := s.Seen("k1")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, s.MarkSeen("k1"))
	seen, err = s.Seen("k1")
	require.NoError(t, err)
	require.True(t, seen)
}
