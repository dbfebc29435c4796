// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantumbridge/bridge/common"
)

// postgresUniqueViolation is the SQLSTATE code Postgres returns for a
// unique_violation (including our partial index on quantum_hash).
const postgresUniqueViolation = "23505"

// PGStore is a Store backed by a Postgres pool. The locking primitive
// (ConditionalUpdate) is a single `UPDATE ... WHERE id = $1 AND status =
// $2`, checking the affected row count rather than taking an explicit
// advisory lock: two concurrent callers racing the same swap_id will see
// exactly one UPDATE succeed.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an already-connected pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Schema is the DDL PGStore expects. The partial unique index enforces the
// quantum-hash collision invariant only across non-terminal rows, so a
// completed swap's hash can be reused in error-free bookkeeping paths.
const Schema = `
CREATE TABLE IF NOT EXISTS swap_operations (
	swap_id             uuid PRIMARY KEY,
	user_id             uuid NOT NULL,
	from_chain          text NOT NULL,
	to_chain            text NOT NULL,
	from_token          text NOT NULL,
	to_token            text NOT NULL,
	amount_in           numeric NOT NULL,
	expected_amount_out numeric NOT NULL,
	base_fee            numeric NOT NULL,
	gas_fee             numeric NOT NULL,
	protocol_fee        numeric NOT NULL,
	slippage_fee        numeric NOT NULL,
	exchange_rate       numeric NOT NULL,
	quote_id            uuid NOT NULL,
	quote_valid_until   timestamptz NOT NULL,
	recipient           text NOT NULL,
	status              text NOT NULL,
	risk_score          double precision,
	quantum_key_id      uuid,
	quantum_hash        bytea,
	source_tx_hash      bytea,
	destination_tx_hash bytea,
	created_at          timestamptz NOT NULL,
	updated_at          timestamptz NOT NULL,
	expires_at          timestamptz NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS swap_operations_quantum_hash_active
	ON swap_operations (quantum_hash)
	WHERE status NOT IN ('completed', 'rolled_back', 'cancelled', 'risk_rejected', 'failed');

CREATE TABLE IF NOT EXISTS swap_audit_rows (
	id        bigserial PRIMARY KEY,
	swap_id   uuid NOT NULL REFERENCES swap_operations(swap_id),
	from_status text NOT NULL,
	to_status   text NOT NULL,
	reason      text NOT NULL,
	actor       text NOT NULL,
	at          timestamptz NOT NULL,
	metadata    jsonb
);
`

func (s *PGStore) InsertSwap(ctx context.Context, row *Operation) error {
	var quantumHash any
	if row.QuantumHash != ([32]byte{}) {
		quantumHash = row.QuantumHash[:]
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO swap_operations (
			swap_id, user_id, from_chain, to_chain, from_token, to_token,
			amount_in, expected_amount_out, base_fee, gas_fee, protocol_fee,
			slippage_fee, exchange_rate, quote_id, quote_valid_until,
			recipient, status, risk_score, quantum_key_id, quantum_hash,
			source_tx_hash, destination_tx_hash, created_at, updated_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
	`,
		row.SwapID, row.UserID, row.FromChain, row.ToChain, row.FromToken, row.ToToken,
		decimalText(row.AmountIn), decimalText(row.ExpectedAmountOut),
		decimalText(row.FeeBreakdown.BaseFee), decimalText(row.FeeBreakdown.GasFee),
		decimalText(row.FeeBreakdown.ProtocolFee), decimalText(row.FeeBreakdown.SlippageProtectionFee),
		decimalText(row.ExchangeRate), row.QuoteID, row.QuoteValidUntil,
		row.Recipient, string(row.Status), row.RiskScore, nullUUID(row.QuantumKeyID), quantumHash,
		nullHash(row.SourceTxHash), nullHash(row.DestinationTxHash),
		row.CreatedAt, row.UpdatedAt, row.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: swap_id or active quantum_hash already exists", common.ErrQuantumHashCollision)
		}
		return fmt.Errorf("swap: insert failed: %w", err)
	}
	return nil
}

func (s *PGStore) LoadSwap(ctx context.Context, swapID uuid.UUID) (*Operation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT swap_id, user_id, from_chain, to_chain, from_token, to_token,
			amount_in, expected_amount_out, base_fee, gas_fee, protocol_fee,
			slippage_fee, exchange_rate, quote_id, quote_valid_until,
			recipient, status, risk_score, quantum_key_id, quantum_hash,
			source_tx_hash, destination_tx_hash, created_at, updated_at, expires_at
		FROM swap_operations WHERE swap_id = $1
	`, swapID)

	var (
		op               Operation
		amountIn, out    string
		baseFee, gasFee  string
		protocolFee, slp string
		rate             string
		quantumKeyID     *uuid.UUID
		quantumHash      []byte
		sourceTx, destTx []byte
		status           string
	)
	err := row.Scan(
		&op.SwapID, &op.UserID, &op.FromChain, &op.ToChain, &op.FromToken, &op.ToToken,
		&amountIn, &out, &baseFee, &gasFee, &protocolFee, &slp, &rate,
		&op.QuoteID, &op.QuoteValidUntil, &op.Recipient, &status, &op.RiskScore,
		&quantumKeyID, &quantumHash, &sourceTx, &destTx,
		&op.CreatedAt, &op.UpdatedAt, &op.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return nil, common.ErrSwapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("swap: load failed: %w", err)
	}

	op.Status = common.Status(status)
	op.AmountIn = mustDecimal(amountIn)
	op.ExpectedAmountOut = mustDecimal(out)
	op.FeeBreakdown = FeeBreakdown{
		BaseFee:               mustDecimal(baseFee),
		GasFee:                mustDecimal(gasFee),
		ProtocolFee:           mustDecimal(protocolFee),
		SlippageProtectionFee: mustDecimal(slp),
	}
	op.ExchangeRate = mustDecimal(rate)
	if quantumKeyID != nil {
		op.QuantumKeyID = *quantumKeyID
	}
	if len(quantumHash) == 32 {
		copy(op.QuantumHash[:], quantumHash)
	}
	if len(sourceTx) == 32 {
		copy(op.SourceTxHash[:], sourceTx)
	}
	if len(destTx) == 32 {
		copy(op.DestinationTxHash[:], destTx)
	}
	return &op, nil
}

func (s *PGStore) LoadSwapByQuantumHash(ctx context.Context, hash [32]byte) (*Operation, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT swap_id FROM swap_operations
		WHERE quantum_hash = $1
		AND status NOT IN ('completed', 'rolled_back', 'cancelled', 'risk_rejected', 'failed')
	`, hash[:]).Scan(&id)
	if err == pgx.ErrNoRows {
		return nil, common.ErrSwapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("swap: load_by_quantum_hash failed: %w", err)
	}
	return s.LoadSwap(ctx, id)
}

func (s *PGStore) ConditionalUpdate(
	ctx context.Context,
	swapID uuid.UUID,
	expectedPrevStatus common.Status,
	newStatus common.Status,
	fields UpdateFields,
	reason, actor string,
	metadata json.RawMessage,
) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("swap: begin tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	tag, err := tx.Exec(ctx, `
		UPDATE swap_operations SET
			status = $1,
			updated_at = $2,
			source_tx_hash = COALESCE($3, source_tx_hash),
			destination_tx_hash = COALESCE($4, destination_tx_hash),
			risk_score = COALESCE($5, risk_score),
			quantum_key_id = COALESCE($6, quantum_key_id),
			quantum_hash = COALESCE($7, quantum_hash)
		WHERE swap_id = $8 AND status = $9
	`,
		string(newStatus), now,
		hashPtrBytes(fields.SourceTxHash), hashPtrBytes(fields.DestinationTxHash),
		fields.RiskScore, uuidPtr(fields.QuantumKeyID), hash32PtrBytes(fields.QuantumHash),
		swapID, string(expectedPrevStatus),
	)
	if err != nil {
		return false, fmt.Errorf("swap: conditional update failed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO swap_audit_rows (swap_id, from_status, to_status, reason, actor, at, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, swapID, string(expectedPrevStatus), string(newStatus), reason, actor, now, metadata)
	if err != nil {
		return false, fmt.Errorf("swap: audit insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("swap: commit failed: %w", err)
	}
	return true, nil
}

func (s *PGStore) ListNonTerminal(ctx context.Context) ([]*Operation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT swap_id FROM swap_operations
		WHERE status NOT IN ('completed', 'rolled_back', 'cancelled', 'risk_rejected', 'failed')
	`)
	if err != nil {
		return nil, fmt.Errorf("swap: list_non_terminal query failed: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("swap: list_non_terminal scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*Operation, 0, len(ids))
	for _, id := range ids {
		op, err := s.LoadSwap(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	return result, nil
}

func decimalText(d *apd.Decimal) string {
	if d == nil {
		return "0"
	}
	return d.Text('f')
}

func mustDecimal(s string) *apd.Decimal {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return apd.New(0, 0)
	}
	return d
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullHash(h common.Hash32) any {
	if h.IsZero() {
		return nil
	}
	return h[:]
}

func hashPtrBytes(h *common.Hash32) any {
	if h == nil {
		return nil
	}
	return h[:]
}

func hash32PtrBytes(h *[32]byte) any {
	if h == nil {
		return nil
	}
	return h[:]
}

func uuidPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation
}
