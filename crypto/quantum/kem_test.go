// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package quantum

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quantumbridge/bridge/common"
)

var errNotFound = errors.New("keypair not found")

// memStore is a small hand-written in-memory Store for tests; the
// interface is narrow enough that a full mock would be overkill.
type memStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*Keypair
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[uuid.UUID]*Keypair)}
}

func (s *memStore) PutKeypair(k *Keypair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *k
	s.byID[k.KeyID] = &cp
	return nil
}

func (s *memStore) GetKeypair(keyID uuid.UUID) (*Keypair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byID[keyID]
	if !ok {
		return nil, errNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *memStore) GetActiveKeypair(userID uuid.UUID, category UsageCategory) (*Keypair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.byID {
		if k.UserID == userID && k.UsageCategory == category && k.IsActive {
			cp := *k
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (s *memStore) DeactivateAndInsert(old uuid.UUID, next *Keypair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[old]; ok {
		existing.IsActive = false
	}
	cp := *next
	s.byID[next.KeyID] = &cp
	return nil
}

func TestGenerateAndEncapsulateRoundTrip(t *testing.T) {
	store := newMemStore()
	m := NewModule(store)

	userID := uuid.New()
	keyID, err := m.GenerateKeypair(userID, CategoryBridgeTx)
	require.NoError(t, err)

	kp, err := store.GetKeypair(keyID)
	require.NoError(t, err)

	ciphertext, sharedSecretA, err := m.Encapsulate(kp.PublicKey)
	require.NoError(t, err)
	require.Len(t, sharedSecretA, 32)

	sharedSecretB, err := m.Decapsulate(keyID, ciphertext)
	require.NoError(t, err)
	require.Equal(t, sharedSecretA, sharedSecretB)
}

func TestDeriveSubkeyLabelsAreIndependent(t *testing.T) {
	store := newMemStore()
	m := NewModule(store)

	sharedSecret, err := RandomBytes(64)
	require.NoError(t, err)
	ctx := []byte("swap-context")

	bridgeKey, err := m.DeriveSubkey(sharedSecret, LabelBridgeTx, ctx, CategoryBridgeTx)
	require.NoError(t, err)
	authKey, err := m.DeriveSubkey(sharedSecret, LabelMessageAuth, ctx, CategoryBridgeTx)
	require.NoError(t, err)

	require.NotEqual(t, bridgeKey, authKey)

	// deterministic: same inputs, same output
	bridgeKeyAgain, err := m.DeriveSubkey(sharedSecret, LabelBridgeTx, ctx, CategoryBridgeTx)
	require.NoError(t, err)
	require.Equal(t, bridgeKey, bridgeKeyAgain)
}

func TestRotateAssignsNextGeneration(t *testing.T) {
	store := newMemStore()
	m := NewModule(store)

	userID := uuid.New()
	keyID, err := m.GenerateKeypair(userID, CategoryUserAuth)
	require.NoError(t, err)

	nextID, err := m.Rotate(keyID, "scheduled rotation")
	require.NoError(t, err)
	require.NotEqual(t, keyID, nextID)

	old, err := store.GetKeypair(keyID)
	require.NoError(t, err)
	require.False(t, old.IsActive)

	next, err := store.GetKeypair(nextID)
	require.NoError(t, err)
	require.Equal(t, old.RotationGeneration+1, next.RotationGeneration)
	require.True(t, next.IsActive)
}

func TestMessageSealerThenOpenerRoundTrip(t *testing.T) {
	store := newMemStore()
	m := NewModule(store)

	keyID, err := m.GenerateKeypair(uuid.New(), CategoryUserAuth)
	require.NoError(t, err)
	kp, err := store.GetKeypair(keyID)
	require.NoError(t, err)

	seal := m.MessageSealer(CategoryUserAuth)
	open := m.MessageOpener(keyID, CategoryUserAuth)

	ctx := []byte("swap-context")
	subkey, ciphertext, err := seal(kp.PublicKey, ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)

	opened, err := open(ciphertext, ctx)
	require.NoError(t, err)
	require.Equal(t, subkey, opened)
}

func TestMessageSealerIsRandomizedPerCall(t *testing.T) {
	store := newMemStore()
	m := NewModule(store)

	keyID, err := m.GenerateKeypair(uuid.New(), CategoryUserAuth)
	require.NoError(t, err)
	kp, err := store.GetKeypair(keyID)
	require.NoError(t, err)

	seal := m.MessageSealer(CategoryUserAuth)
	ctx := []byte("swap-context")

	_, ciphertext1, err := seal(kp.PublicKey, ctx)
	require.NoError(t, err)
	_, ciphertext2, err := seal(kp.PublicKey, ctx)
	require.NoError(t, err)

	// Each seal re-encapsulates, so a verifier must decapsulate the
	// specific ciphertext a message carried -- re-sealing independently
	// would not reproduce the same subkey.
	require.NotEqual(t, ciphertext1, ciphertext2)
}

func TestDecapsulateRejectsExpiredKey(t *testing.T) {
	store := newMemStore()
	m := NewModule(store)

	keyID, err := m.GenerateKeypair(uuid.New(), CategoryEventData)
	require.NoError(t, err)

	kp, err := store.GetKeypair(keyID)
	require.NoError(t, err)
	kp.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.PutKeypair(kp))

	ciphertext, _, err := (&Module{scheme: m.scheme}).Encapsulate(kp.PublicKey)
	require.NoError(t, err)

	_, err = m.Decapsulate(keyID, ciphertext)
	require.ErrorIs(t, err, common.ErrInvalidKey)
}
