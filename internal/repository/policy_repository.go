package repository

import (
	"context"
	"fmt"

	"underwriting-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PolicyRepository struct {
	db *sqlx.DB
}

func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

func (r *PolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	query := `
		INSERT INTO policies (
			id, owner_id, external_ref, crop_type, coverage_type,
			coverage_amount, premium, premium_rate_bps, start_time, end_time,
			status, damage_threshold_bps, triggered_at, cancelled_at, refunded_amount,
			created_at
		) VALUES (
			:id, :owner_id, :external_ref, :crop_type, :coverage_type,
			:coverage_amount, :premium, :premium_rate_bps, :start_time, :end_time,
			:status, :damage_threshold_bps, :triggered_at, :cancelled_at, :refunded_amount,
			:created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, policy); err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

func (r *PolicyRepository) Update(ctx context.Context, policy *models.Policy) error {
	query := `
		UPDATE policies SET
			status = :status,
			triggered_at = :triggered_at,
			cancelled_at = :cancelled_at,
			refunded_amount = :refunded_amount
		WHERE id = :id`

	if _, err := r.db.NamedExecContext(ctx, query, policy); err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	return nil
}

func (r *PolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Policy, error) {
	var policy models.Policy
	query := `
		SELECT id, owner_id, external_ref, crop_type, coverage_type,
			coverage_amount, premium, premium_rate_bps, start_time, end_time,
			status, damage_threshold_bps, triggered_at, cancelled_at, refunded_amount,
			created_at
		FROM policies
		WHERE id = $1`

	if err := r.db.GetContext(ctx, &policy, query, id); err != nil {
		return nil, fmt.Errorf("failed to get policy by id: %w", err)
	}
	return &policy, nil
}

func (r *PolicyRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Policy, error) {
	var policies []models.Policy
	query := `
		SELECT id, owner_id, external_ref, crop_type, coverage_type,
			coverage_amount, premium, premium_rate_bps, start_time, end_time,
			status, damage_threshold_bps, triggered_at, cancelled_at, refunded_amount,
			created_at
		FROM policies
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &policies, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list policies by owner: %w", err)
	}
	return policies, nil
}
