// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package quantum

import (
	"crypto/sha256"
	"hash"
)

func newSHA256() hash.Hash {
	return sha256.New()
}

// Fingerprint derives the on-chain quantum_hash for a bridge operation: the
// SHA-256 digest of the "bridge-tx"-labeled subkey. It is what adapter.Lock
// and adapter.Mint/Unlock/Burn embed in their calls, and what the
// destination-side verification step re-derives to check against the
// on-chain event.
func Fingerprint(subkey []byte) [32]byte {
	return sha256.Sum256(subkey)
}
