// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package quantum implements post-quantum key encapsulation: keypair
// generation, encapsulation/decapsulation, and labeled subkey derivation.
// The KEM primitive is github.com/cloudflare/circl's ML-KEM-1024
// implementation.
package quantum

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	logging "github.com/ipfs/go-log"
	"golang.org/x/crypto/hkdf"

	circlkem "github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"

	"github.com/google/uuid"
	"github.com/quantumbridge/bridge/common"
)

var log = logging.Logger("quantum")

// Algorithm is the fixed KEM algorithm string stamped on every keypair.
const Algorithm = "ML-KEM-1024"

// UsageCategory scopes a keypair to one functional area, so a user can
// hold at most one active key per category at a time.
type UsageCategory string

const (
	CategoryBridgeTx   UsageCategory = "bridge-tx"
	CategoryUserAuth   UsageCategory = "user-auth"
	CategoryEventData  UsageCategory = "event-data"
	CategoryStateSync  UsageCategory = "state-sync"
)

// Label fixes the HKDF info prefix per derived-subkey purpose.
type Label string

const (
	LabelBridgeTx    Label = "bridge-tx"
	LabelUserAuth    Label = "user-auth"
	LabelEventData   Label = "event-data"
	LabelStateSync   Label = "state-sync"
	LabelMessageAuth Label = "message-auth"
)

// Keypair is the persisted record for one user's KEM key.
type Keypair struct {
	KeyID                uuid.UUID
	UserID                uuid.UUID
	Algorithm             string
	PublicKey             []byte
	EncryptedPrivateKey   []byte
	CreatedAt             time.Time
	ExpiresAt             time.Time
	IsActive              bool
	RotationGeneration    int
	UsageCategory         UsageCategory
	Compromised           bool
}

// NeedsRotation reports whether this key is close enough to its rotation
// interval to warrant a proactive rotate() call, rather than letting it
// expire mid-swap.
func (k *Keypair) NeedsRotation(window time.Duration, now time.Time) bool {
	return k.IsActive && now.Add(window).After(k.ExpiresAt)
}

// Store is the persistence boundary this package depends on. The concrete
// implementation shares the bridge's Postgres pool (see swap.Store), kept
// abstract here so the crypto logic has no storage-driver dependency.
type Store interface {
	PutKeypair(k *Keypair) error
	GetKeypair(keyID uuid.UUID) (*Keypair, error)
	GetActiveKeypair(userID uuid.UUID, category UsageCategory) (*Keypair, error)
	DeactivateAndInsert(old uuid.UUID, next *Keypair) error
}

// Module implements the KEM module over a pluggable KEM scheme
// (ML-KEM-1024 by default) and a Store.
type Module struct {
	scheme circlkem.Scheme
	store  Store

	mu sync.Mutex // serializes rotate()'s deactivate-then-insert sequence
}

// NewModule returns a Module using ML-KEM-1024 and the given store.
func NewModule(store Store) *Module {
	return &Module{scheme: mlkem1024.Scheme(), store: store}
}

// GenerateKeypair creates a fresh, randomized keypair for userID in the
// given usage category and persists it as the active key for that
// (userID, category) pair, deactivating any previous one.
func (m *Module) GenerateKeypair(userID uuid.UUID, category UsageCategory) (uuid.UUID, error) {
	pub, priv, err := m.scheme.GenerateKeyPair()
	if err != nil {
		return uuid.Nil, fmt.Errorf("quantum: keypair generation failed: %w", err)
	}

	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return uuid.Nil, fmt.Errorf("quantum: failed to marshal public key: %w", err)
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return uuid.Nil, fmt.Errorf("quantum: failed to marshal private key: %w", err)
	}

	now := time.Now()
	kp := &Keypair{
		KeyID:               uuid.New(),
		UserID:              userID,
		Algorithm:           Algorithm,
		PublicKey:           pubBytes,
		EncryptedPrivateKey: privBytes, // encrypted at rest by the store's column-level encryption
		CreatedAt:           now,
		ExpiresAt:           now.Add(30 * 24 * time.Hour),
		IsActive:            true,
		RotationGeneration:  0,
		UsageCategory:       category,
	}

	if existing, err := m.store.GetActiveKeypair(userID, category); err == nil && existing != nil {
		// invariant: at most one active key per (user, category).
		next := *kp
		next.RotationGeneration = existing.RotationGeneration + 1
		if err := m.store.DeactivateAndInsert(existing.KeyID, &next); err != nil {
			return uuid.Nil, fmt.Errorf("quantum: failed to rotate existing key: %w", err)
		}
		log.Infof("quantum: generated keypair %s superseding %s for user=%s category=%s", next.KeyID, existing.KeyID, userID, category)
		return next.KeyID, nil
	}

	if err := m.store.PutKeypair(kp); err != nil {
		return uuid.Nil, fmt.Errorf("quantum: failed to persist keypair: %w", err)
	}
	return kp.KeyID, nil
}

// PublicKey returns the stored public key bytes for keyID, for callers that
// need to encapsulate against a key they just generated.
func (m *Module) PublicKey(keyID uuid.UUID) ([]byte, error) {
	kp, err := m.store.GetKeypair(keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidKey, err)
	}
	return kp.PublicKey, nil
}

// Encapsulate derives a fresh shared secret against a public key, returning
// the ciphertext to send to the counterparty and the shared secret to keep
// locally.
func (m *Module) Encapsulate(publicKeyBytes []byte) (ciphertext, sharedSecret []byte, err error) {
	pub, err := m.scheme.UnmarshalBinaryPublicKey(publicKeyBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", common.ErrInvalidKey, err)
	}
	ct, ss, err := m.scheme.Encapsulate(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("quantum: encapsulation failed: %w", err)
	}
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from a ciphertext using the
// private key referenced by keyID.
func (m *Module) Decapsulate(keyID uuid.UUID, ciphertext []byte) ([]byte, error) {
	kp, err := m.store.GetKeypair(keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidKey, err)
	}
	if kp.Compromised || time.Now().After(kp.ExpiresAt) {
		return nil, fmt.Errorf("%w: key %s is expired or compromised", common.ErrInvalidKey, keyID)
	}
	if kp.Algorithm != Algorithm {
		return nil, fmt.Errorf("%w: stored=%s want=%s", common.ErrAlgorithmMismatch, kp.Algorithm, Algorithm)
	}

	priv, err := m.scheme.UnmarshalBinaryPrivateKey(kp.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidKey, err)
	}
	ss, err := m.scheme.Decapsulate(priv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("quantum: decapsulation failed: %w", err)
	}
	return ss, nil
}

// DeriveSubkey implements a labeled HKDF construction:
// output = KDF(secret=sharedSecret, salt=category, info=label||context).
// Different labels over the same shared secret yield independent keys.
func (m *Module) DeriveSubkey(sharedSecret []byte, label Label, context []byte, category UsageCategory) ([]byte, error) {
	info := append([]byte(label), context...)
	reader := hkdf.New(newSHA256, sharedSecret, []byte(category), info)
	subkey := make([]byte, 32)
	if _, err := io.ReadFull(reader, subkey); err != nil {
		return nil, fmt.Errorf("quantum: subkey derivation failed: %w", err)
	}
	return subkey, nil
}

// Rotate atomically deactivates the current keypair for (userID, category)
// and inserts a new one with generation = old + 1.
func (m *Module) Rotate(keyID uuid.UUID, reason string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := m.store.GetKeypair(keyID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", common.ErrInvalidKey, err)
	}

	pub, priv, err := m.scheme.GenerateKeyPair()
	if err != nil {
		return uuid.Nil, fmt.Errorf("quantum: keypair generation failed: %w", err)
	}
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()

	now := time.Now()
	next := &Keypair{
		KeyID:               uuid.New(),
		UserID:              old.UserID,
		Algorithm:           Algorithm,
		PublicKey:           pubBytes,
		EncryptedPrivateKey: privBytes,
		CreatedAt:           now,
		ExpiresAt:           now.Add(30 * 24 * time.Hour),
		IsActive:            true,
		RotationGeneration:  old.RotationGeneration + 1,
		UsageCategory:       old.UsageCategory,
	}

	if err := m.store.DeactivateAndInsert(old.KeyID, next); err != nil {
		return uuid.Nil, fmt.Errorf("quantum: rotation failed: %w", err)
	}
	log.Infof("quantum: rotated key %s -> %s (generation %d), reason=%s", old.KeyID, next.KeyID, next.RotationGeneration, reason)
	return next.KeyID, nil
}

// MessageSealer returns a closure suitable for auth.NewAuthenticator's seal
// role: given a counterparty public key and a canonical context, it
// encapsulates against that key and derives the "message-auth"-labeled
// subkey from the resulting shared secret, returning the subkey alongside
// the ciphertext the recipient needs in order to decapsulate and reproduce
// it. Wraps Encapsulate+DeriveSubkey so package auth never needs to know
// about the KEM scheme itself.
func (m *Module) MessageSealer(category UsageCategory) func(publicKeyBytes, context []byte) (subkey, ciphertext []byte, err error) {
	return func(publicKeyBytes, context []byte) ([]byte, []byte, error) {
		ciphertext, sharedSecret, err := m.Encapsulate(publicKeyBytes)
		if err != nil {
			return nil, nil, err
		}
		subkey, err := m.DeriveSubkey(sharedSecret, LabelMessageAuth, context, category)
		if err != nil {
			return nil, nil, err
		}
		return subkey, ciphertext, nil
	}
}

// MessageOpener returns a closure suitable for auth.NewAuthenticator's open
// role: it decapsulates an AuthMessage's carried ciphertext using keyID's
// private key and re-derives the same "message-auth" subkey MessageSealer
// produced, so Verify(Create(...)) reproduces the identical subkey instead
// of encapsulating a fresh, unrelated one.
func (m *Module) MessageOpener(keyID uuid.UUID, category UsageCategory) func(ciphertext, context []byte) ([]byte, error) {
	return func(ciphertext, context []byte) ([]byte, error) {
		sharedSecret, err := m.Decapsulate(keyID, ciphertext)
		if err != nil {
			return nil, err
		}
		return m.DeriveSubkey(sharedSecret, LabelMessageAuth, context, category)
	}
}

// RandomBytes is a small indirection over crypto/rand kept so tests can
// substitute a deterministic reader without touching call sites.
var RandomBytes = func(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := io.ReadFull(rand.Reader, b)
	return b, err
}
