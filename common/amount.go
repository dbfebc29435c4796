// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// decimalCtx is the arbitrary-precision context used for every monetary
// computation in the bridge. Amounts are never converted to float64;
// floating-point comparisons on monetary values are forbidden entirely.
var decimalCtx = apd.BaseContext.WithPrecision(60)

// ParseAmount parses a decimal string into an arbitrary-precision amount,
// rejecting non-positive values: both amount_in and expected_amount_out
// must be strictly positive.
func ParseAmount(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, s)
	}
	return d, nil
}

// Mul multiplies a and b using the bridge's shared decimal context.
func Mul(a, b *apd.Decimal) (*apd.Decimal, error) {
	result := new(apd.Decimal)
	_, err := decimalCtx.Mul(result, a, b)
	return result, err
}

// Sub subtracts b from a using the bridge's shared decimal context.
func Sub(a, b *apd.Decimal) (*apd.Decimal, error) {
	result := new(apd.Decimal)
	_, err := decimalCtx.Sub(result, a, b)
	return result, err
}

// Add adds a and b using the bridge's shared decimal context.
func Add(a, b *apd.Decimal) (*apd.Decimal, error) {
	result := new(apd.Decimal)
	_, err := decimalCtx.Add(result, a, b)
	return result, err
}

// Quo divides a by b using the bridge's shared decimal context.
func Quo(a, b *apd.Decimal) (*apd.Decimal, error) {
	if b.Sign() == 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrValidation)
	}
	result := new(apd.Decimal)
	_, err := decimalCtx.Quo(result, a, b)
	return result, err
}

// MustDecimal parses s and panics on error. Reserved for literal adjustment
// tables built at config-load time, never for user-supplied input.
func MustDecimal(s string) *apd.Decimal {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("common: invalid literal decimal %q: %s", s, err))
	}
	return d
}
