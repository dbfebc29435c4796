package pricing

import (
	"context"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/quantumbridge/bridge/common"
)

// Oracle reports the USD price of a token. A real deployment wraps an
// on-chain price feed or an off-chain aggregator; pricing never trusts a
// single quote without this indirection so a test double is trivial.
type Oracle interface {
	Price(ctx context.Context, token string) (*apd.Decimal, error)
}

// staticOracle is a fixed-price Oracle, useful for tests and for running
// the engine against tokens without a live feed configured.
type staticOracle struct {
	prices map[string]*apd.Decimal
}

// NewStaticOracle returns an Oracle that always returns the configured
// price for each token, or common.ErrOracleUnavailable for unknown tokens.
func NewStaticOracle(prices map[string]*apd.Decimal) Oracle {
	return &staticOracle{prices: prices}
}

func (o *staticOracle) Price(ctx context.Context, token string) (*apd.Decimal, error) {
	p, ok := o.prices[token]
	if !ok {
		return nil, fmt.Errorf("%w: no price configured for %s", common.ErrOracleUnavailable, token)
	}
	return p, nil
}
