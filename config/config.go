// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package config holds the single typed configuration record: risk
// thresholds, adjustment tables, confirmation depths, and fee parameters,
// reloadable as a whole without a restart. The active record lives behind
// an atomic.Pointer and is replaced wholesale by Watch on file change;
// readers never see a partially-updated record.
package config

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/fsnotify/fsnotify"
	logging "github.com/ipfs/go-log"
	"github.com/spf13/viper"
)

var log = logging.Logger("config")

// FailurePolicy is the risk gate's behavior when the external scorer is
// unreachable. There is deliberately no default -- operators must choose
// consciously between availability and caution.
type FailurePolicy string

const (
	FailOpen   FailurePolicy = "fail_open"
	FailClosed FailurePolicy = "fail_closed"
)

// RiskGate holds the risk gate's thresholds and failure policy.
type RiskGate struct {
	ManualReviewThreshold float64       `mapstructure:"manual_review_threshold"`
	AutoBlockThreshold    float64       `mapstructure:"auto_block_threshold"`
	FailurePolicy         FailurePolicy `mapstructure:"failure_policy"`
	CallTimeout           time.Duration `mapstructure:"call_timeout"`
	AllowAdminOverride    bool          `mapstructure:"allow_admin_override"`
}

// RetryPolicy is the chain adapters' and orchestrator's retry schedule.
type RetryPolicy struct {
	MaxRetries      int             `mapstructure:"max_retries"`
	BackoffSchedule []time.Duration `mapstructure:"backoff_schedule"`
	RollbackRetries int             `mapstructure:"rollback_retries"`
}

// Pricing holds the pricing engine's adjustment tables and cache/deadline
// parameters. All tables are data, never literals baked into algorithm
// code.
type Pricing struct {
	QuoteValiditySeconds time.Duration            `mapstructure:"quote_validity_seconds"`
	VolatilityByPair     map[string]*apd.Decimal  `mapstructure:"-"`
	VolatilityDefault    *apd.Decimal             `mapstructure:"-"`
	MarketFactors        MarketFactors            `mapstructure:"-"`
	CrossChainFactors    CrossChainFactors        `mapstructure:"-"`
	TimeOfDayByUTCHour   [24]*apd.Decimal         `mapstructure:"-"`
	FeeTable             FeeTable                 `mapstructure:"-"`
}

// MarketFactors is the liquidity/spread/volume/sentiment multiplier table.
type MarketFactors struct {
	LiquidityFactor *apd.Decimal
	SpreadFactor    *apd.Decimal
	VolumeFactor    *apd.Decimal
	SentimentFactor *apd.Decimal
}

// CrossChainFactors is the congestion/security/execution-time/amount-tier
// multiplier table, keyed by the (from_chain, to_chain) pair.
type CrossChainFactors struct {
	BasePair              *apd.Decimal
	Congestion            *apd.Decimal
	SecurityPremium       *apd.Decimal
	ExecutionTimePremium  *apd.Decimal
	AmountTier            *apd.Decimal
}

// FeeTable holds the fee breakdown inputs.
type FeeTable struct {
	BaseFeeRate            *apd.Decimal // fraction of amount_in
	GasFeeFlat             *apd.Decimal
	ProtocolFeeRate        *apd.Decimal
	SlippageProtectionRate *apd.Decimal
}

// Timeouts holds per-call and overall swap deadlines.
type Timeouts struct {
	AdapterCall    time.Duration `mapstructure:"adapter_call"`
	RiskGateCall   time.Duration `mapstructure:"risk_gate_call"`
	OracleCall     time.Duration `mapstructure:"oracle_call"`
	OverallSwap    time.Duration `mapstructure:"overall_swap"`
}

// OnChainLimits mirrors the bridge contracts' own configuration surface.
type OnChainLimits struct {
	MinBridgeAmount *apd.Decimal
	MaxBridgeAmount *apd.Decimal
	BridgeFeeBps    int `mapstructure:"bridge_fee_bps"`
}

// Bridge is the single configuration record read under a read-mostly lock
// (an atomic.Pointer swap, not a mutex) by every component.
type Bridge struct {
	RiskGate           RiskGate                `mapstructure:"risk_gate"`
	Retry              RetryPolicy             `mapstructure:"retry"`
	Pricing            Pricing                 `mapstructure:"pricing"`
	Timeouts           Timeouts                `mapstructure:"timeouts"`
	OnChainLimits      OnChainLimits           `mapstructure:"on_chain_limits"`
	ConfirmationDepth  map[string]uint64       `mapstructure:"confirmation_depth"`
	QuoteCacheTTL      time.Duration           `mapstructure:"quote_cache_ttl"`
	SwapDefaultExpiry  time.Duration           `mapstructure:"swap_default_expiry"`
}

// Holder exposes the live, atomically-swapped configuration record plus a
// Watch loop that hot-reloads it from disk.
type Holder struct {
	current atomic.Pointer[Bridge]
	path    string
}

// NewHolder loads the initial configuration from path and validates it.
func NewHolder(path string) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	h := &Holder{path: path}
	h.current.Store(cfg)
	return h, nil
}

// Get returns the current configuration record. The returned pointer must
// be treated as immutable by callers; replacement always happens wholesale.
func (h *Holder) Get() *Bridge {
	return h.current.Load()
}

// Set replaces the active record directly, bypassing Load/Validate. Used
// by tests and by callers constructing a Holder from an in-memory record
// rather than a config file.
func (h *Holder) Set(cfg *Bridge) {
	h.current.Store(cfg)
}

// Watch blocks, hot-reloading the configuration whenever path changes,
// until ctx is cancelled. A record that fails to load or validate is
// logged and discarded; the previously active record keeps serving.
func (h *Holder) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: failed to start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(h.path); err != nil {
		return fmt.Errorf("config: failed to watch %s: %w", h.path, err)
	}

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(h.path)
			if err != nil {
				log.Warnf("config: reload of %s failed, keeping previous record: %s", h.path, err)
				continue
			}
			h.current.Store(cfg)
			log.Infof("config: reloaded %s", h.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("config: watcher error: %s", err)
		}
	}
}

// Load reads and validates a Bridge record from a viper-compatible file
// (yaml/json/toml, matching viper's auto-detection).
func Load(path string) (*Bridge, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Bridge
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to decode %s: %w", path, err)
	}

	cfg.Pricing = decodePricingTables(v)
	cfg.OnChainLimits.MinBridgeAmount = decodeDecimal(v, "on_chain_limits.min_bridge_amount", "1")
	cfg.OnChainLimits.MaxBridgeAmount = decodeDecimal(v, "on_chain_limits.max_bridge_amount", "1000000")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the invariants that must be explicit rather than
// defaulted, plus basic sanity bounds on the on-chain configuration
// surface.
func (c *Bridge) Validate() error {
	if c.RiskGate.FailurePolicy != FailOpen && c.RiskGate.FailurePolicy != FailClosed {
		return fmt.Errorf("config: risk_gate.failure_policy must be set explicitly to %q or %q", FailOpen, FailClosed)
	}
	if c.RiskGate.ManualReviewThreshold <= 0 || c.RiskGate.ManualReviewThreshold >= c.RiskGate.AutoBlockThreshold {
		return fmt.Errorf("config: risk_gate thresholds must satisfy 0 < manual_review_threshold < auto_block_threshold")
	}
	if c.OnChainLimits.BridgeFeeBps < 0 || c.OnChainLimits.BridgeFeeBps > 10000 {
		return fmt.Errorf("config: on_chain_limits.bridge_fee_bps must be in [0, 10000]")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: retry.max_retries must be >= 0")
	}
	return nil
}

func decodeDecimal(v *viper.Viper, key, fallback string) *apd.Decimal {
	s := v.GetString(key)
	if s == "" {
		s = fallback
	}
	d, _, err := apd.NewFromString(s)
	if err != nil {
		log.Warnf("config: invalid decimal at %s=%q, using fallback %s", key, s, fallback)
		d, _, _ = apd.NewFromString(fallback)
	}
	return d
}

func decodePricingTables(v *viper.Viper) Pricing {
	p := Pricing{
		QuoteValiditySeconds: v.GetDuration("pricing.quote_validity_seconds"),
		VolatilityByPair:     map[string]*apd.Decimal{},
		VolatilityDefault:    decodeDecimal(v, "pricing.volatility_default", "1.20"),
		MarketFactors: MarketFactors{
			LiquidityFactor: decodeDecimal(v, "pricing.market.liquidity_factor", "1.0"),
			SpreadFactor:    decodeDecimal(v, "pricing.market.spread_factor", "1.0"),
			VolumeFactor:    decodeDecimal(v, "pricing.market.volume_factor", "1.0"),
			SentimentFactor: decodeDecimal(v, "pricing.market.sentiment_factor", "1.0"),
		},
		CrossChainFactors: CrossChainFactors{
			BasePair:             decodeDecimal(v, "pricing.cross_chain.base_pair", "1.0"),
			Congestion:           decodeDecimal(v, "pricing.cross_chain.congestion", "1.0"),
			SecurityPremium:      decodeDecimal(v, "pricing.cross_chain.security_premium", "1.0"),
			ExecutionTimePremium: decodeDecimal(v, "pricing.cross_chain.execution_time_premium", "1.0"),
			AmountTier:           decodeDecimal(v, "pricing.cross_chain.amount_tier", "1.0"),
		},
		FeeTable: FeeTable{
			BaseFeeRate:            decodeDecimal(v, "pricing.fees.base_fee_rate", "0.001"),
			GasFeeFlat:             decodeDecimal(v, "pricing.fees.gas_fee_flat", "0"),
			ProtocolFeeRate:        decodeDecimal(v, "pricing.fees.protocol_fee_rate", "0.0005"),
			SlippageProtectionRate: decodeDecimal(v, "pricing.fees.slippage_protection_rate", "0.002"),
		},
	}

	volatility := v.GetStringMapString("pricing.volatility_by_pair")
	for pair, s := range volatility {
		d, _, err := apd.NewFromString(s)
		if err != nil {
			log.Warnf("config: invalid volatility entry for %s=%q, skipping", pair, s)
			continue
		}
		p.VolatilityByPair[pair] = d
	}

	for hour := 0; hour < 24; hour++ {
		key := fmt.Sprintf("pricing.time_of_day.%d", hour)
		p.TimeOfDayByUTCHour[hour] = decodeDecimal(v, key, "1.0")
	}

	return p
}
