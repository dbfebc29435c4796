// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package auth implements authenticated cross-chain messages keyed by a
// KEM-derived subkey (package quantum). The security property is: an
// adversary without the shared secret cannot produce a message that
// verifies -- a keyed MAC, not a signature scheme, is exactly that
// property, and the quantum label is the KEM that established the secret.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/quantumbridge/bridge/common"
)

// MessageType restricts AuthMessage.MessageType to a fixed set of known
// kinds; verify() rejects any other value.
type MessageType string

const (
	TransactionConfirmation MessageType = "transaction_confirmation"
	StateSync               MessageType = "state_sync"
	EventNotification        MessageType = "event_notification"
	SecurityAlert           MessageType = "security_alert"
)

func (t MessageType) valid() bool {
	switch t {
	case TransactionConfirmation, StateSync, EventNotification, SecurityAlert:
		return true
	default:
		return false
	}
}

// AuthMessage is the wire envelope chain adapters and the event pipeline
// pass between each other. The nonce plus CreatedAt guarantees two Create
// calls with identical inputs never produce the same message. KEMCiphertext
// is the encapsulation the recipient decapsulates, with their own private
// key, to recover the shared secret Create derived its subkey from.
type AuthMessage struct {
	MessageType   MessageType     `json:"message_type"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      json.RawMessage `json:"metadata"`
	Nonce         string          `json:"nonce"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	KEMCiphertext string          `json:"kem_ciphertext"`
	Signature     string          `json:"signature"`
}

// VerificationResult is Authenticator.Verify's return value.
type VerificationResult struct {
	IsValid    bool
	Err        error
	VerifiedAt time.Time
}

// SealFunc encapsulates against a counterparty's public key and derives
// the "message-auth"-labeled subkey Create signs with, returning the
// ciphertext the counterparty needs to reproduce that subkey.
type SealFunc func(publicKeyBytes, context []byte) (subkey, ciphertext []byte, err error)

// OpenFunc decapsulates a ciphertext carried on an AuthMessage, using the
// recipient's own private key, and re-derives the same subkey SealFunc
// produced.
type OpenFunc func(ciphertext, context []byte) (subkey []byte, err error)

// Authenticator signs and verifies AuthMessages over a KEM-established
// subkey. Seal and open are deliberately asymmetric -- sealing encapsulates
// against a public key, opening decapsulates with a private key -- so
// Verify(Create(...)) only reproduces the same subkey when open is the
// genuine counterpart of seal, never by re-running seal itself.
type Authenticator struct {
	seal SealFunc
	open OpenFunc
}

// NewAuthenticator returns an Authenticator backed by seal and open,
// typically quantum.Module.MessageSealer/.MessageOpener. open may be nil
// for an Authenticator that only ever creates messages (e.g. an alert
// publisher whose recipient verifies out of process); Verify returns an
// error if called on such an instance.
func NewAuthenticator(seal SealFunc, open OpenFunc) *Authenticator {
	return &Authenticator{seal: seal, open: open}
}

// Create produces a signed AuthMessage. validity, if non-zero, sets
// ExpiresAt relative to now.
func (a *Authenticator) Create(
	publicKeyBytes []byte,
	context []byte,
	messageType MessageType,
	payload, metadata json.RawMessage,
	validity time.Duration,
) (*AuthMessage, error) {
	if !messageType.valid() {
		return nil, fmt.Errorf("%w: unknown message type %q", common.ErrValidation, messageType)
	}

	nonce := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("auth: failed to generate nonce: %w", err)
	}

	msg := &AuthMessage{
		MessageType: messageType,
		Payload:     payload,
		Metadata:    metadata,
		Nonce:       hex.EncodeToString(nonce),
		CreatedAt:   time.Now().UTC(),
	}
	if validity > 0 {
		expiry := msg.CreatedAt.Add(validity)
		msg.ExpiresAt = &expiry
	}

	subkey, ciphertext, err := a.seal(publicKeyBytes, context)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to seal message-auth subkey: %w", err)
	}
	msg.KEMCiphertext = hex.EncodeToString(ciphertext)

	sig, err := computeMAC(subkey, msg)
	if err != nil {
		return nil, err
	}
	msg.Signature = sig
	return msg, nil
}

// Verify recomputes the MAC over msg's canonical encoding, decapsulating
// msg's carried ciphertext to recover the same subkey Create sealed with,
// and checks expiry/type.
func (a *Authenticator) Verify(context []byte, msg *AuthMessage) VerificationResult {
	now := time.Now().UTC()

	if a.open == nil {
		return VerificationResult{Err: fmt.Errorf("auth: authenticator has no open function configured"), VerifiedAt: now}
	}
	if !msg.MessageType.valid() {
		return VerificationResult{Err: fmt.Errorf("%w: unknown message type %q", common.ErrMessageInvalid, msg.MessageType), VerifiedAt: now}
	}
	if msg.ExpiresAt != nil && now.After(*msg.ExpiresAt) {
		return VerificationResult{Err: common.ErrMessageExpired, VerifiedAt: now}
	}

	ciphertext, err := hex.DecodeString(msg.KEMCiphertext)
	if err != nil {
		return VerificationResult{Err: fmt.Errorf("%w: malformed kem ciphertext: %s", common.ErrMessageInvalid, err), VerifiedAt: now}
	}

	subkey, err := a.open(ciphertext, context)
	if err != nil {
		return VerificationResult{Err: fmt.Errorf("auth: failed to open message-auth subkey: %w", err), VerifiedAt: now}
	}

	expected, err := computeMAC(subkey, msg)
	if err != nil {
		return VerificationResult{Err: err, VerifiedAt: now}
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(msg.Signature)) != 1 {
		return VerificationResult{Err: common.ErrMessageInvalid, VerifiedAt: now}
	}

	return VerificationResult{IsValid: true, VerifiedAt: now}
}

// canonicalFields is the deterministic struct computeMAC hashes, excluding
// Signature itself.
type canonicalFields struct {
	MessageType   MessageType     `json:"message_type"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      json.RawMessage `json:"metadata"`
	Nonce         string          `json:"nonce"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	KEMCiphertext string          `json:"kem_ciphertext"`
}

func computeMAC(subkey []byte, msg *AuthMessage) (string, error) {
	encoded, err := json.Marshal(canonicalFields{
		MessageType:   msg.MessageType,
		Payload:       msg.Payload,
		Metadata:      msg.Metadata,
		Nonce:         msg.Nonce,
		CreatedAt:     msg.CreatedAt,
		ExpiresAt:     msg.ExpiresAt,
		KEMCiphertext: msg.KEMCiphertext,
	})
	if err != nil {
		return "", fmt.Errorf("auth: failed to canonicalize message: %w", err)
	}

	mac := hmac.New(sha256.New, subkey)
	mac.Write(encoded)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
