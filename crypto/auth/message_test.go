// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package auth

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/common"
)

// fixedCodec fakes the asymmetric seal/open pair a real KEM provides: seal
// always returns the same subkey and ciphertext; open only reproduces that
// subkey if given the exact ciphertext seal produced, modeling the
// property that Verify(Create(...)) must carry and decapsulate the
// ciphertext rather than re-derive it independently.
func fixedCodec(key []byte) (SealFunc, OpenFunc) {
	const ciphertext = "fake-ciphertext"
	seal := func(_, _ []byte) ([]byte, []byte, error) {
		return key, []byte(ciphertext), nil
	}
	open := func(ct, _ []byte) ([]byte, error) {
		if string(ct) != ciphertext {
			return nil, fmt.Errorf("unexpected ciphertext %q", ct)
		}
		return key, nil
	}
	return seal, open
}

func TestCreateThenVerifySucceeds(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	a := NewAuthenticator(fixedCodec(key))

	payload, _ := json.Marshal(map[string]string{"tx_hash": "0xabc"})
	msg, err := a.Create([]byte("pubkey"), []byte("ctx"), TransactionConfirmation, payload, nil, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, msg.KEMCiphertext)

	result := a.Verify([]byte("ctx"), msg)
	require.True(t, result.IsValid)
	require.NoError(t, result.Err)
}

func TestCreateCallsAreDistinct(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	a := NewAuthenticator(fixedCodec(key))
	payload, _ := json.Marshal(map[string]string{"a": "b"})

	m1, err := a.Create([]byte("pub"), []byte("ctx"), StateSync, payload, nil, 0)
	require.NoError(t, err)
	m2, err := a.Create([]byte("pub"), []byte("ctx"), StateSync, payload, nil, 0)
	require.NoError(t, err)

	require.NotEqual(t, m1.Nonce, m2.Nonce)
	require.NotEqual(t, m1.Signature, m2.Signature)
}

func TestVerifyFailsOnFlippedSignature(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	a := NewAuthenticator(fixedCodec(key))
	payload, _ := json.Marshal(map[string]string{"a": "b"})

	msg, err := a.Create([]byte("pub"), []byte("ctx"), EventNotification, payload, nil, 0)
	require.NoError(t, err)

	msg.Signature = "00" + msg.Signature[2:]
	result := a.Verify([]byte("ctx"), msg)
	require.False(t, result.IsValid)
	require.Error(t, result.Err)
}

func TestVerifyFailsOnExpiry(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	a := NewAuthenticator(fixedCodec(key))
	payload, _ := json.Marshal(map[string]string{"a": "b"})

	msg, err := a.Create([]byte("pub"), []byte("ctx"), SecurityAlert, payload, nil, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	result := a.Verify([]byte("ctx"), msg)
	require.False(t, result.IsValid)
	require.ErrorIs(t, result.Err, common.ErrMessageExpired)
}

func TestVerifyFailsOnTamperedCiphertext(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	a := NewAuthenticator(fixedCodec(key))
	payload, _ := json.Marshal(map[string]string{"a": "b"})

	msg, err := a.Create([]byte("pub"), []byte("ctx"), StateSync, payload, nil, 0)
	require.NoError(t, err)

	msg.KEMCiphertext = "00"
	result := a.Verify([]byte("ctx"), msg)
	require.False(t, result.IsValid)
	require.Error(t, result.Err)
}
