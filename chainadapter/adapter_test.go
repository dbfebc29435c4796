// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package chainadapter

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/common"
)

func TestBigIntFromDecimalScalesByDecimals(t *testing.T) {
	amount := common.MustDecimal("1.5")
	i, err := BigIntFromDecimal(amount, 18)
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", i.String())
}

func TestBigIntFromDecimalRejectsMalformed(t *testing.T) {
	_, err := BigIntFromDecimal(new(apd.Decimal), -999999999)
	require.Error(t, err)
}

func TestIdempotencyCacheReturnsSameEntry(t *testing.T) {
	c := newIdempotencyCache(8)
	swapID := "swap-1"
	var qh [32]byte
	qh[0] = 0xAB

	_, ok := c.lookup(swapID, qh)
	require.False(t, ok)

	txHash := common.Hash32{0x01}
	c.record(swapID, qh, txHash)

	got, ok := c.lookup(swapID, qh)
	require.True(t, ok)
	require.Equal(t, txHash, got)

	// a different quantum hash is a distinct idempotency key
	var otherQH [32]byte
	otherQH[0] = 0xCD
	_, ok = c.lookup(swapID, otherQH)
	require.False(t, ok)
}
