package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/config"
)

func flatPricingConfig() *config.Bridge {
	one := common.MustDecimal("1.0")
	cfg := &config.Bridge{
		Pricing: config.Pricing{
			QuoteValiditySeconds: 30 * time.Second,
			VolatilityByPair:     map[string]*apd.Decimal{},
			VolatilityDefault:    one,
			MarketFactors: config.MarketFactors{
				LiquidityFactor: one,
				SpreadFactor:    one,
				VolumeFactor:    one,
				SentimentFactor: one,
			},
			CrossChainFactors: config.CrossChainFactors{
				BasePair:             one,
				Congestion:           one,
				SecurityPremium:      one,
				ExecutionTimePremium: one,
				AmountTier:           one,
			},
			FeeTable: config.FeeTable{
				BaseFeeRate:            common.MustDecimal("0.01"),
				GasFeeFlat:             common.MustDecimal("0"),
				ProtocolFeeRate:        common.MustDecimal("0"),
				SlippageProtectionRate: common.MustDecimal("0"),
			},
		},
	}
	for hour := 0; hour < 24; hour++ {
		cfg.Pricing.TimeOfDayByUTCHour[hour] = common.MustDecimal("1.0")
	}
	return cfg
}

func TestQuoteAppliesFlatAdjustmentsAndFee(t *testing.T) {
	holder := &config.Holder{}
	holder.Set(flatPricingConfig())

	oracle := NewStaticOracle(map[string]*apd.Decimal{
		"TA": common.MustDecimal("2500"),
		"TB": common.MustDecimal("5"),
	})

	engine := NewEngine(oracle, holder, NewMemQuoteCache())
	quote, err := engine.Quote(context.Background(), common.ChainA, common.ChainB, "TA", "TB", common.MustDecimal("1.5"))
	require.NoError(t, err)

	// base_rate = 2500/5 = 500; final_rate = 500 (all adjustments are 1.0)
	// gross = 1.5 * 500 = 750; fee = 1.5*0.01 = 0.015; net = 749.985
	require.Equal(t, "749.985", quote.ExpectedAmountOut.Text('f'))
}

func TestQuoteCachedWithinValidityWindow(t *testing.T) {
	holder := &config.Holder{}
	holder.Set(flatPricingConfig())

	oracle := NewStaticOracle(map[string]*apd.Decimal{
		"TA": common.MustDecimal("10"),
		"TB": common.MustDecimal("10"),
	})

	engine := NewEngine(oracle, holder, NewMemQuoteCache())
	first, err := engine.Quote(context.Background(), common.ChainA, common.ChainB, "TA", "TB", common.MustDecimal("2"))
	require.NoError(t, err)

	second, err := engine.Quote(context.Background(), common.ChainA, common.ChainB, "TA", "TB", common.MustDecimal("4"))
	require.NoError(t, err)

	require.Equal(t, first.FinalRate.Text('f'), second.FinalRate.Text('f'))
	require.NotEqual(t, first.QuoteID, second.QuoteID)
}

func TestQuoteFailsWhenOracleUnavailable(t *testing.T) {
	holder := &config.Holder{}
	holder.Set(flatPricingConfig())

	oracle := NewStaticOracle(map[string]*apd.Decimal{})
	engine := NewEngine(oracle, holder, NewMemQuoteCache())

	_, err := engine.Quote(context.Background(), common.ChainA, common.ChainB, "TA", "TB", common.MustDecimal("1"))
	require.ErrorIs(t, err, common.ErrOracleUnavailable)
}

func TestQuoteRejectsNonPositiveAmount(t *testing.T) {
	holder := &config.Holder{}
	holder.Set(flatPricingConfig())

	engine := NewEngine(NewStaticOracle(nil), holder, NewMemQuoteCache())
	_, err := engine.Quote(context.Background(), common.ChainA, common.ChainB, "TA", "TB", common.MustDecimal("0"))
	require.ErrorIs(t, err, common.ErrValidation)
}
