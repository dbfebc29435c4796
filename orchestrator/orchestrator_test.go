// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/chainadapter"
	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/config"
	"github.com/quantumbridge/bridge/crypto/quantum"
	"github.com/quantumbridge/bridge/pricing"
	"github.com/quantumbridge/bridge/risk"
	"github.com/quantumbridge/bridge/swap"
)

// fakeAdapter lets each test script a scripted sequence of results per
// method, so scenarios like "reject once then succeed" (S2) are simple to
// express.
type fakeAdapter struct {
	chain common.Chain

	mu          sync.Mutex
	lockCalls   int
	mintCalls   int
	mintScript  []error
	confirmations uint64
}

func newFakeAdapter(chain common.Chain) *fakeAdapter {
	return &fakeAdapter{chain: chain, confirmations: 100}
}

func (a *fakeAdapter) Chain() common.Chain { return a.chain }

func (a *fakeAdapter) Lock(ctx context.Context, swapID string, amount *apd.Decimal, quantumHash [32]byte, recipient string) (*chainadapter.LockResult, error) {
	a.mu.Lock()
	a.lockCalls++
	a.mu.Unlock()
	return &chainadapter.LockResult{TxHash: common.Hash32{0x01}, QuantumHash: quantumHash}, nil
}

func (a *fakeAdapter) Unlock(ctx context.Context, swapID string, amount *apd.Decimal, recipient string, quantumHash [32]byte) (*chainadapter.UnlockResult, error) {
	return &chainadapter.UnlockResult{TxHash: common.Hash32{0x02}}, nil
}

func (a *fakeAdapter) Mint(ctx context.Context, recipient string, amount *apd.Decimal, sourceTxHash common.Hash32, quantumHash [32]byte) (*chainadapter.MintResult, error) {
	a.mu.Lock()
	idx := a.mintCalls
	a.mintCalls++
	var scriptedErr error
	if idx < len(a.mintScript) {
		scriptedErr = a.mintScript[idx]
	}
	a.mu.Unlock()
	if scriptedErr != nil {
		return nil, scriptedErr
	}
	return &chainadapter.MintResult{TxHash: common.Hash32{0x03}}, nil
}

func (a *fakeAdapter) Burn(ctx context.Context, swapID string, amount *apd.Decimal, quantumHash [32]byte, recipient string) (*chainadapter.BurnResult, error) {
	return &chainadapter.BurnResult{TxHash: common.Hash32{0x04}}, nil
}

func (a *fakeAdapter) StreamEvents(ctx context.Context, fromBlock uint64) (<-chan chainadapter.RawLog, error) {
	ch := make(chan chainadapter.RawLog)
	close(ch)
	return ch, nil
}

func (a *fakeAdapter) CurrentHeight(ctx context.Context) (uint64, error) { return 1000, nil }

func (a *fakeAdapter) GetTxConfirmations(ctx context.Context, txHash common.Hash32) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.confirmations, nil
}

// fakeQuantum is a minimal QuantumKeyer that always succeeds with fixed
// deterministic key material, enough to exercise deriveQuantumHash without
// a real KEM scheme.
type fakeQuantum struct{}

func (fakeQuantum) GenerateKeypair(userID uuid.UUID, category quantum.UsageCategory) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (fakeQuantum) PublicKey(keyID uuid.UUID) ([]byte, error) {
	return []byte("fake-public-key"), nil
}

func (fakeQuantum) Encapsulate(publicKeyBytes []byte) ([]byte, []byte, error) {
	return []byte("fake-ciphertext"), []byte("fake-shared-secret-32-bytes-long"), nil
}

func (fakeQuantum) DeriveSubkey(sharedSecret []byte, label quantum.Label, context []byte, category quantum.UsageCategory) ([]byte, error) {
	return []byte("fake-derived-subkey-32-bytes!!!!"), nil
}

// fakeRisk returns a fixed decision regardless of context.
type fakeRisk struct {
	decision risk.Decision
	err      error
}

func (f fakeRisk) Score(ctx context.Context, swapCtx risk.SwapContext) (risk.Decision, error) {
	return f.decision, f.err
}

func (f fakeRisk) OverrideBlock(reason string) (risk.Decision, error) {
	return risk.Decision{Outcome: risk.Allow, Reason: reason}, nil
}

// fakeReviewQueue captures enqueued records without an external dependency.
type fakeReviewQueue struct {
	mu      sync.Mutex
	records []risk.ReviewRecord
	decided []uuid.UUID
}

func (q *fakeReviewQueue) Enqueue(ctx context.Context, record risk.ReviewRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, record)
	return nil
}

func (q *fakeReviewQueue) Dequeue(ctx context.Context) (*risk.ReviewRecord, error) { return nil, nil }

func (q *fakeReviewQueue) MarkDecided(ctx context.Context, swapID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.decided = append(q.decided, swapID)
	return nil
}

// fakePricing returns a fixed quote.
type fakePricing struct {
	err error
}

func (f fakePricing) Quote(ctx context.Context, fromChain, toChain common.Chain, fromToken, toToken string, amountIn *apd.Decimal) (*pricing.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	rate := common.MustDecimal("500")
	out, _ := common.Mul(amountIn, rate)
	return &pricing.Quote{
		QuoteID:           uuid.New(),
		FromToken:         fromToken,
		ToToken:           toToken,
		AmountIn:          amountIn,
		ExpectedAmountOut: out,
		FinalRate:         rate,
		Fees: pricing.FeeBreakdown{
			BaseFee:               common.MustDecimal("0"),
			GasFee:                common.MustDecimal("0"),
			ProtocolFee:           common.MustDecimal("0"),
			SlippageProtectionFee: common.MustDecimal("0"),
		},
		ValidUntil: time.Now().Add(time.Minute),
	}, nil
}

func testConfig() *config.Bridge {
	return &config.Bridge{
		RiskGate: config.RiskGate{
			ManualReviewThreshold: 0.5,
			AutoBlockThreshold:    0.8,
			FailurePolicy:         config.FailOpen,
			CallTimeout:           time.Second,
		},
		Retry: config.RetryPolicy{
			MaxRetries:      2,
			BackoffSchedule: []time.Duration{time.Millisecond, time.Millisecond},
			RollbackRetries: 2,
		},
		ConfirmationDepth: map[string]uint64{
			string(common.ChainA): 1,
			string(common.ChainB): 1,
		},
		SwapDefaultExpiry: time.Hour,
	}
}

func newTestOrchestrator(t *testing.T, decision risk.Decision, mintScript []error) (*Orchestrator, *swap.MemStore, *fakeAdapter, *fakeAdapter, *fakeReviewQueue) {
	t.Helper()
	holder := &config.Holder{}
	holder.Set(testConfig())

	store := swap.NewMemStore()
	adapterA := newFakeAdapter(common.ChainA)
	adapterB := newFakeAdapter(common.ChainB)
	adapterB.mintScript = mintScript

	reviews := &fakeReviewQueue{}

	o := New(
		store,
		map[common.Chain]chainadapter.Adapter{common.ChainA: adapterA, common.ChainB: adapterB},
		fakeQuantum{},
		fakePricing{},
		fakeRisk{decision: decision},
		reviews,
		holder,
		nil,
		nil,
		nil,
	)
	return o, store, adapterA, adapterB, reviews
}

func testParams() Params {
	return Params{
		UserID:    uuid.New(),
		FromChain: common.ChainA,
		ToChain:   common.ChainB,
		FromToken: "TA",
		ToToken:   "TB",
		AmountIn:  common.MustDecimal("1.5"),
		Recipient: "recipient-on-b",
	}
}

func TestHappyPathForwardSwapCompletes(t *testing.T) {
	o, _, adapterA, adapterB, _ := newTestOrchestrator(t, risk.Decision{Outcome: risk.Allow, Score: 0.1}, nil)

	initResp, err := o.InitSwap(context.Background(), testParams())
	require.NoError(t, err)
	require.Equal(t, common.StatusInitialized, initResp.Status)

	result, err := o.ExecuteSwap(context.Background(), initResp.SwapID)
	require.NoError(t, err)
	require.Equal(t, common.StatusCompleted, result.Status)
	require.NotNil(t, result.SourceTxHash)
	require.NotNil(t, result.DestinationTxHash)
	require.Equal(t, 1, adapterA.lockCalls)
	require.Equal(t, 1, adapterB.mintCalls)
}

func TestRollbackAfterDestinationRejection(t *testing.T) {
	rejectOnce := []error{fmt.Errorf("%w: contract reverted", common.ErrAdapterRejected)}
	o, _, _, adapterB, _ := newTestOrchestrator(t, risk.Decision{Outcome: risk.Allow, Score: 0.1}, rejectOnce)

	initResp, err := o.InitSwap(context.Background(), testParams())
	require.NoError(t, err)

	result, err := o.ExecuteSwap(context.Background(), initResp.SwapID)
	require.NoError(t, err)
	require.Equal(t, common.StatusRolledBack, result.Status)
	require.Equal(t, 1, adapterB.mintCalls, "a Rejected mint must not be retried")
}

func TestRiskBlockStopsBeforeAnyOnChainCall(t *testing.T) {
	o, _, adapterA, adapterB, _ := newTestOrchestrator(t, risk.Decision{Outcome: risk.Block, Score: 0.9}, nil)

	initResp, err := o.InitSwap(context.Background(), testParams())
	require.NoError(t, err)
	require.Equal(t, common.StatusRiskRejected, initResp.Status)
	require.Equal(t, 0, adapterA.lockCalls)
	require.Equal(t, 0, adapterB.mintCalls)
}

func TestManualReviewApprovalResumesExecution(t *testing.T) {
	o, _, _, _, reviews := newTestOrchestrator(t, risk.Decision{Outcome: risk.ManualReview, Score: 0.6, Reason: "borderline"}, nil)

	initResp, err := o.InitSwap(context.Background(), testParams())
	require.NoError(t, err)
	require.Equal(t, common.StatusPendingReview, initResp.Status)
	require.Len(t, reviews.records, 1)

	require.NoError(t, o.ResolveReview(context.Background(), initResp.SwapID, true))

	result, err := o.ExecuteSwap(context.Background(), initResp.SwapID)
	require.NoError(t, err)
	require.Equal(t, common.StatusCompleted, result.Status)
	require.Contains(t, reviews.decided, initResp.SwapID)
}

func TestManualReviewRejectionCancelsSwap(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t, risk.Decision{Outcome: risk.ManualReview, Score: 0.6}, nil)

	initResp, err := o.InitSwap(context.Background(), testParams())
	require.NoError(t, err)

	require.NoError(t, o.ResolveReview(context.Background(), initResp.SwapID, false))

	result, err := o.ExecuteSwap(context.Background(), initResp.SwapID)
	require.NoError(t, err)
	require.Equal(t, common.StatusCancelled, result.Status)
}

func TestTimeoutFiresAndRollsBackAnUnstartedSwap(t *testing.T) {
	o, store, _, _, _ := newTestOrchestrator(t, risk.Decision{Outcome: risk.Allow, Score: 0.1}, nil)

	cfg := testConfig()
	cfg.SwapDefaultExpiry = 10 * time.Millisecond
	o.cfg.Set(cfg)

	initResp, err := o.InitSwap(context.Background(), testParams())
	require.NoError(t, err)
	require.Equal(t, common.StatusInitialized, initResp.Status)

	require.Eventually(t, func() bool {
		row, err := store.LoadSwap(context.Background(), initResp.SwapID)
		require.NoError(t, err)
		return row.Status == common.StatusRolledBack
	}, time.Second, 5*time.Millisecond, "the scheduled timeout must drive the swap through TimedOut -> RollingBack -> RolledBack")
}

func TestOnTimeoutIsANoOpForAnAlreadyTerminalSwap(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t, risk.Decision{Outcome: risk.Block, Score: 0.9}, nil)

	initResp, err := o.InitSwap(context.Background(), testParams())
	require.NoError(t, err)
	require.Equal(t, common.StatusRiskRejected, initResp.Status)

	require.NoError(t, o.OnTimeout(context.Background(), initResp.SwapID))
}

func TestValidationRejectsNonPositiveAmount(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t, risk.Decision{Outcome: risk.Allow}, nil)

	params := testParams()
	params.AmountIn = common.MustDecimal("0")
	_, err := o.InitSwap(context.Background(), params)
	require.ErrorIs(t, err, common.ErrValidation)
}
