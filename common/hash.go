// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package common

import "encoding/hex"

// Hash32 is a chain-agnostic 32-byte identifier: an Ethereum-class
// transaction hash, or the hex digest a NEAR-class chain uses for the
// same purpose. Keeping it a fixed-size array (rather than go-ethereum's
// common.Hash) lets package common stay free of a go-ethereum dependency
// while the ethereum adapter converts at its boundary.
type Hash32 [32]byte

// String renders the hash as a 0x-prefixed hex string.
func (h Hash32) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash, i.e. unset.
func (h Hash32) IsZero() bool {
	return h == Hash32{}
}

// HashFromHex parses a 0x-prefixed or bare hex string into a Hash32.
func HashFromHex(s string) (Hash32, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	var h Hash32
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != 32 {
		return h, ErrValidation
	}
	copy(h[:], b)
	return h, nil
}
