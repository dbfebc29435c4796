package risk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/config"
)

func testHolder(t *testing.T, gateCfg config.RiskGate) *config.Holder {
	t.Helper()
	holder := &config.Holder{}
	holder.Set(&config.Bridge{RiskGate: gateCfg})
	return holder
}

func TestGateAllowsLowScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(scorerResponse{Score: 0.1})
	}))
	defer srv.Close()

	holder := testHolder(t, config.RiskGate{
		ManualReviewThreshold: 0.5,
		AutoBlockThreshold:    0.8,
		FailurePolicy:         config.FailClosed,
		CallTimeout:           time.Second,
	})

	gate := NewGate(srv.URL, holder)
	decision, err := gate.Score(context.Background(), SwapContext{SwapID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, Allow, decision.Outcome)
	require.False(t, decision.Degraded)
}

func TestGateRoutesBorderlineScoreToManualReview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(scorerResponse{Score: 0.6})
	}))
	defer srv.Close()

	holder := testHolder(t, config.RiskGate{
		ManualReviewThreshold: 0.5,
		AutoBlockThreshold:    0.8,
		FailurePolicy:         config.FailClosed,
		CallTimeout:           time.Second,
	})

	gate := NewGate(srv.URL, holder)
	decision, err := gate.Score(context.Background(), SwapContext{SwapID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, ManualReview, decision.Outcome)
}

func TestGateBlocksHighScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(scorerResponse{Score: 0.95})
	}))
	defer srv.Close()

	holder := testHolder(t, config.RiskGate{
		ManualReviewThreshold: 0.5,
		AutoBlockThreshold:    0.8,
		FailurePolicy:         config.FailClosed,
		CallTimeout:           time.Second,
	})

	gate := NewGate(srv.URL, holder)
	decision, err := gate.Score(context.Background(), SwapContext{SwapID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, Block, decision.Outcome)
}

func TestGateFailsOpenOnScorerUnavailable(t *testing.T) {
	holder := testHolder(t, config.RiskGate{
		ManualReviewThreshold: 0.5,
		AutoBlockThreshold:    0.8,
		FailurePolicy:         config.FailOpen,
		CallTimeout:           100 * time.Millisecond,
	})

	gate := NewGate("http://127.0.0.1:1", holder)
	decision, err := gate.Score(context.Background(), SwapContext{SwapID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, Allow, decision.Outcome)
	require.True(t, decision.Degraded)
	require.Equal(t, 0.5, decision.Score)
}

func TestGateFailsClosedOnScorerUnavailable(t *testing.T) {
	holder := testHolder(t, config.RiskGate{
		ManualReviewThreshold: 0.5,
		AutoBlockThreshold:    0.8,
		FailurePolicy:         config.FailClosed,
		CallTimeout:           100 * time.Millisecond,
	})

	gate := NewGate("http://127.0.0.1:1", holder)
	_, err := gate.Score(context.Background(), SwapContext{SwapID: uuid.New()})
	require.Error(t, err)
}

func TestOverrideBlockRequiresAdminOverrideEnabled(t *testing.T) {
	holder := testHolder(t, config.RiskGate{AllowAdminOverride: false})
	gate := NewGate("http://unused", holder)
	_, err := gate.OverrideBlock("operator judgement")
	require.Error(t, err)

	holder.Set(&config.Bridge{RiskGate: config.RiskGate{AllowAdminOverride: true}})
	decision, err := gate.OverrideBlock("operator judgement")
	require.NoError(t, err)
	require.Equal(t, Allow, decision.Outcome)
}
