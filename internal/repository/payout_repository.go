package repository

import (
	"context"
	"fmt"

	"underwriting-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PayoutRepository struct {
	db *sqlx.DB
}

func NewPayoutRepository(db *sqlx.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) Create(ctx context.Context, payout *models.Payout) error {
	query := `
		INSERT INTO payouts (
			id, policy_id, owner_id, damage_percentage_bps, amount,
			status, approved_by, processed_by, settlement_ref, failure_reason,
			initiated_at, calculated_at, approved_at, processed_at, completed_at
		) VALUES (
			:id, :policy_id, :owner_id, :damage_percentage_bps, :amount,
			:status, :approved_by, :processed_by, :settlement_ref, :failure_reason,
			:initiated_at, :calculated_at, :approved_at, :processed_at, :completed_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, payout); err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

func (r *PayoutRepository) Update(ctx context.Context, payout *models.Payout) error {
	query := `
		UPDATE payouts SET
			damage_percentage_bps = :damage_percentage_bps,
			amount = :amount,
			status = :status,
			approved_by = :approved_by,
			processed_by = :processed_by,
			settlement_ref = :settlement_ref,
			failure_reason = :failure_reason,
			calculated_at = :calculated_at,
			approved_at = :approved_at,
			processed_at = :processed_at,
			completed_at = :completed_at
		WHERE id = :id`

	if _, err := r.db.NamedExecContext(ctx, query, payout); err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	return nil
}

func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	query := `
		SELECT id, policy_id, owner_id, damage_percentage_bps, amount,
			status, approved_by, processed_by, settlement_ref, failure_reason,
			initiated_at, calculated_at, approved_at, processed_at, completed_at
		FROM payouts
		WHERE id = $1`

	if err := r.db.GetContext(ctx, &payout, query, id); err != nil {
		return nil, fmt.Errorf("failed to get payout by id: %w", err)
	}
	return &payout, nil
}

func (r *PayoutRepository) ListByPolicy(ctx context.Context, policyID uuid.UUID) ([]models.Payout, error) {
	var payouts []models.Payout
	query := `
		SELECT id, policy_id, owner_id, damage_percentage_bps, amount,
			status, approved_by, processed_by, settlement_ref, failure_reason,
			initiated_at, calculated_at, approved_at, processed_at, completed_at
		FROM payouts
		WHERE policy_id = $1
		ORDER BY initiated_at DESC`

	if err := r.db.SelectContext(ctx, &payouts, query, policyID); err != nil {
		return nil, fmt.Errorf("failed to list payouts by policy: %w", err)
	}
	return payouts, nil
}
