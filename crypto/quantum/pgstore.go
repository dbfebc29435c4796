// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package quantum

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantumbridge/bridge/common"
)

// PGStore is a Store backed by the same Postgres pool as the swap store.
// A user holds at most one active keypair per usage category; rotation
// (DeactivateAndInsert) enforces this with a single transaction rather
// than a unique index, since "active" is a boolean the caller must flip
// atomically alongside inserting the replacement.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an already-connected pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Schema is the DDL PGStore expects.
const Schema = `
CREATE TABLE IF NOT EXISTS quantum_keypairs (
	key_id                uuid PRIMARY KEY,
	user_id               uuid NOT NULL,
	algorithm             text NOT NULL,
	public_key            bytea NOT NULL,
	encrypted_private_key bytea NOT NULL,
	created_at            timestamptz NOT NULL,
	expires_at            timestamptz NOT NULL,
	is_active             boolean NOT NULL,
	rotation_generation   int NOT NULL,
	usage_category        text NOT NULL,
	compromised           boolean NOT NULL DEFAULT false
);

CREATE UNIQUE INDEX IF NOT EXISTS quantum_keypairs_one_active_per_user_category
	ON quantum_keypairs (user_id, usage_category)
	WHERE is_active;
`

func (s *PGStore) PutKeypair(k *Keypair) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quantum_keypairs (
			key_id, user_id, algorithm, public_key, encrypted_private_key,
			created_at, expires_at, is_active, rotation_generation, usage_category, compromised
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		k.KeyID, k.UserID, k.Algorithm, k.PublicKey, k.EncryptedPrivateKey,
		k.CreatedAt, k.ExpiresAt, k.IsActive, k.RotationGeneration, string(k.UsageCategory), k.Compromised,
	)
	if err != nil {
		return fmt.Errorf("quantum: put_keypair failed: %w", err)
	}
	return nil
}

func (s *PGStore) GetKeypair(keyID uuid.UUID) (*Keypair, error) {
	ctx := context.Background()
	row := s.pool.QueryRow(ctx, `
		SELECT key_id, user_id, algorithm, public_key, encrypted_private_key,
			created_at, expires_at, is_active, rotation_generation, usage_category, compromised
		FROM quantum_keypairs WHERE key_id = $1
	`, keyID)
	return scanKeypair(row)
}

func (s *PGStore) GetActiveKeypair(userID uuid.UUID, category UsageCategory) (*Keypair, error) {
	ctx := context.Background()
	row := s.pool.QueryRow(ctx, `
		SELECT key_id, user_id, algorithm, public_key, encrypted_private_key,
			created_at, expires_at, is_active, rotation_generation, usage_category, compromised
		FROM quantum_keypairs WHERE user_id = $1 AND usage_category = $2 AND is_active
	`, userID, string(category))
	return scanKeypair(row)
}

// DeactivateAndInsert flips old's is_active off and inserts next, within
// one transaction, so a reader never observes either zero or two active
// keys for the same (user_id, usage_category) pair.
func (s *PGStore) DeactivateAndInsert(old uuid.UUID, next *Keypair) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("quantum: begin tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if old != uuid.Nil {
		if _, err := tx.Exec(ctx, `UPDATE quantum_keypairs SET is_active = false WHERE key_id = $1`, old); err != nil {
			return fmt.Errorf("quantum: deactivate failed: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO quantum_keypairs (
			key_id, user_id, algorithm, public_key, encrypted_private_key,
			created_at, expires_at, is_active, rotation_generation, usage_category, compromised
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		next.KeyID, next.UserID, next.Algorithm, next.PublicKey, next.EncryptedPrivateKey,
		next.CreatedAt, next.ExpiresAt, next.IsActive, next.RotationGeneration, string(next.UsageCategory), next.Compromised,
	)
	if err != nil {
		return fmt.Errorf("quantum: rotate insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("quantum: rotate commit failed: %w", err)
	}
	return nil
}

type row interface {
	Scan(dest ...any) error
}

func scanKeypair(r row) (*Keypair, error) {
	var (
		k        Keypair
		category string
	)
	err := r.Scan(
		&k.KeyID, &k.UserID, &k.Algorithm, &k.PublicKey, &k.EncryptedPrivateKey,
		&k.CreatedAt, &k.ExpiresAt, &k.IsActive, &k.RotationGeneration, &category, &k.Compromised,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: no matching keypair", common.ErrInvalidKey)
	}
	if err != nil {
		return nil, fmt.Errorf("quantum: scan failed: %w", err)
	}
	k.UsageCategory = UsageCategory(category)
	return &k, nil
}
