// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package pricing computes the guaranteed output amount and fee breakdown
// for a bridge operation, and caches the resulting quote for reuse within
// its validity window.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/config"
)

// FeeBreakdown itemizes total_fee's components.
type FeeBreakdown struct {
	BaseFee              *apd.Decimal
	GasFee               *apd.Decimal
	ProtocolFee          *apd.Decimal
	SlippageProtectionFee *apd.Decimal
	Total                *apd.Decimal
}

// Quote is a signed, time-bound price commitment for one bridge operation.
type Quote struct {
	QuoteID           uuid.UUID
	FromToken         string
	ToToken           string
	AmountIn          *apd.Decimal
	ExpectedAmountOut *apd.Decimal
	Fees              FeeBreakdown
	FinalRate         *apd.Decimal
	ValidUntil        time.Time
}

// Expired reports whether the quote is no longer usable at now.
func (q *Quote) Expired(now time.Time) bool {
	return now.After(q.ValidUntil)
}

// Engine computes quotes per the configured adjustment tables and caches
// them keyed on (from_token, to_token) for reuse within their validity
// window.
type Engine struct {
	oracle Oracle
	cfg    *config.Holder
	cache  QuoteCache
}

// NewEngine constructs an Engine over oracle, reading adjustment tables
// from cfg and caching quotes in cache.
func NewEngine(oracle Oracle, cfg *config.Holder, cache QuoteCache) *Engine {
	return &Engine{oracle: oracle, cfg: cfg, cache: cache}
}

// Quote computes expected_amount_out and the fee breakdown for moving
// amountIn of fromToken into toToken across fromChain/toChain, consulting
// the quote cache first.
func (e *Engine) Quote(
	ctx context.Context,
	fromChain, toChain common.Chain,
	fromToken, toToken string,
	amountIn *apd.Decimal,
) (*Quote, error) {
	if amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount_in must be positive", common.ErrValidation)
	}

	now := time.Now()
	if cached, ok := e.cache.Get(ctx, fromToken, toToken); ok && !cached.Expired(now) {
		rescaled, err := rescale(cached, amountIn)
		if err != nil {
			return nil, err
		}
		return rescaled, nil
	}

	quote, err := e.compute(ctx, fromChain, toChain, fromToken, toToken, amountIn)
	if err != nil {
		return nil, err
	}

	e.cache.Put(ctx, fromToken, toToken, quote)
	return quote, nil
}

// rescale reuses a cached quote's rate/fee-rate structure for a different
// amount_in, avoiding a redundant oracle round trip within the cache
// window. Flat fee components (gas_fee) are NOT rescaled.
func rescale(cached *Quote, amountIn *apd.Decimal) (*Quote, error) {
	grossOut, err := common.Mul(amountIn, cached.FinalRate)
	if err != nil {
		return nil, err
	}

	fees, totalFee, err := feesForAmount(cached.Fees, amountIn, cached.AmountIn)
	if err != nil {
		return nil, err
	}

	netOut, err := common.Sub(grossOut, totalFee)
	if err != nil {
		return nil, err
	}

	rescaled := *cached
	rescaled.QuoteID = uuid.New()
	rescaled.AmountIn = amountIn
	rescaled.ExpectedAmountOut = netOut
	rescaled.Fees = fees
	return &rescaled, nil
}

// feesForAmount scales rate-based fee components by the new/old amount_in
// ratio and keeps the flat gas fee unchanged.
func feesForAmount(fees FeeBreakdown, newAmount, oldAmount *apd.Decimal) (FeeBreakdown, *apd.Decimal, error) {
	if oldAmount.Sign() == 0 {
		return FeeBreakdown{}, nil, fmt.Errorf("%w: cached quote has zero amount_in", common.ErrValidation)
	}
	ratio, err := common.Quo(newAmount, oldAmount)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}

	scale := func(v *apd.Decimal) (*apd.Decimal, error) {
		return common.Mul(v, ratio)
	}

	baseFee, err := scale(fees.BaseFee)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}
	protocolFee, err := scale(fees.ProtocolFee)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}
	slippageFee, err := scale(fees.SlippageProtectionFee)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}

	total, err := common.Add(baseFee, fees.GasFee)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}
	total, err = common.Add(total, protocolFee)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}
	total, err = common.Add(total, slippageFee)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}

	return FeeBreakdown{
		BaseFee:               baseFee,
		GasFee:                fees.GasFee,
		ProtocolFee:           protocolFee,
		SlippageProtectionFee: slippageFee,
		Total:                 total,
	}, total, nil
}

func (e *Engine) compute(
	ctx context.Context,
	fromChain, toChain common.Chain,
	fromToken, toToken string,
	amountIn *apd.Decimal,
) (*Quote, error) {
	cfg := e.cfg.Get()

	fromPrice, err := e.oracle.Price(ctx, fromToken)
	if err != nil {
		return nil, err
	}
	toPrice, err := e.oracle.Price(ctx, toToken)
	if err != nil {
		return nil, err
	}
	if toPrice.Sign() == 0 {
		return nil, fmt.Errorf("%w: destination token price is zero", common.ErrOracleUnavailable)
	}

	baseRate, err := common.Quo(fromPrice, toPrice)
	if err != nil {
		return nil, err
	}

	volatility := volatilityFor(cfg.Pricing, fromToken, toToken)
	market, err := marketAdjustment(cfg.Pricing.MarketFactors)
	if err != nil {
		return nil, err
	}
	crossChain, err := crossChainAdjustment(cfg.Pricing.CrossChainFactors)
	if err != nil {
		return nil, err
	}
	timeOfDay := cfg.Pricing.TimeOfDayByUTCHour[time.Now().UTC().Hour()]

	allAdjustments, err := common.Mul(volatility, market)
	if err != nil {
		return nil, err
	}
	allAdjustments, err = common.Mul(allAdjustments, crossChain)
	if err != nil {
		return nil, err
	}
	allAdjustments, err = common.Mul(allAdjustments, timeOfDay)
	if err != nil {
		return nil, err
	}

	finalRate, err := common.Mul(baseRate, allAdjustments)
	if err != nil {
		return nil, err
	}

	grossOut, err := common.Mul(amountIn, finalRate)
	if err != nil {
		return nil, err
	}

	fees, totalFee, err := computeFees(cfg.Pricing.FeeTable, amountIn)
	if err != nil {
		return nil, err
	}

	netOut, err := common.Sub(grossOut, totalFee)
	if err != nil {
		return nil, err
	}

	validity := cfg.Pricing.QuoteValiditySeconds
	if validity <= 0 {
		validity = 30 * time.Second
	}

	return &Quote{
		QuoteID:           uuid.New(),
		FromToken:         fromToken,
		ToToken:           toToken,
		AmountIn:          amountIn,
		ExpectedAmountOut: netOut,
		Fees:              fees,
		FinalRate:         finalRate,
		ValidUntil:        time.Now().Add(validity),
	}, nil
}

func volatilityFor(p config.Pricing, fromToken, toToken string) *apd.Decimal {
	pairKey := fromToken + "/" + toToken
	if v, ok := p.VolatilityByPair[pairKey]; ok {
		return v
	}
	reverseKey := toToken + "/" + fromToken
	if v, ok := p.VolatilityByPair[reverseKey]; ok {
		return v
	}
	return p.VolatilityDefault
}

func marketAdjustment(m config.MarketFactors) (*apd.Decimal, error) {
	adj, err := common.Mul(m.LiquidityFactor, m.SpreadFactor)
	if err != nil {
		return nil, err
	}
	adj, err = common.Mul(adj, m.VolumeFactor)
	if err != nil {
		return nil, err
	}
	return common.Mul(adj, m.SentimentFactor)
}

func crossChainAdjustment(c config.CrossChainFactors) (*apd.Decimal, error) {
	adj, err := common.Mul(c.BasePair, c.Congestion)
	if err != nil {
		return nil, err
	}
	adj, err = common.Mul(adj, c.SecurityPremium)
	if err != nil {
		return nil, err
	}
	adj, err = common.Mul(adj, c.ExecutionTimePremium)
	if err != nil {
		return nil, err
	}
	return common.Mul(adj, c.AmountTier)
}

func computeFees(table config.FeeTable, amountIn *apd.Decimal) (FeeBreakdown, *apd.Decimal, error) {
	baseFee, err := common.Mul(amountIn, table.BaseFeeRate)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}
	protocolFee, err := common.Mul(amountIn, table.ProtocolFeeRate)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}
	slippageFee, err := common.Mul(amountIn, table.SlippageProtectionRate)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}

	total, err := common.Add(baseFee, table.GasFeeFlat)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}
	total, err = common.Add(total, protocolFee)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}
	total, err = common.Add(total, slippageFee)
	if err != nil {
		return FeeBreakdown{}, nil, err
	}

	return FeeBreakdown{
		BaseFee:               baseFee,
		GasFee:                table.GasFeeFlat,
		ProtocolFee:           protocolFee,
		SlippageProtectionFee: slippageFee,
		Total:                 total,
	}, total, nil
}
