package models

import (
	"time"

	"github.com/google/uuid"
)

// BpsScale is the fixed-point denominator: 10000 basis points = 100%.
// All monetary amounts are int64 in the smallest currency unit; all
// percentage-like fields are int64 basis points.
const BpsScale int64 = 10000

// Policy is a parametric coverage contract for a single grower.
type Policy struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	OwnerID         string       `db:"owner_id" json:"owner_id"`
	ExternalRef     string       `db:"external_ref" json:"external_ref"`
	CropType        CropType     `db:"crop_type" json:"crop_type"`
	CoverageType    CoverageType `db:"coverage_type" json:"coverage_type"`
	CoverageAmount  int64        `db:"coverage_amount" json:"coverage_amount"`
	Premium         int64        `db:"premium" json:"premium"`
	PremiumRateBps  int64        `db:"premium_rate_bps" json:"premium_rate_bps"`
	StartTime       time.Time    `db:"start_time" json:"start_time"`
	EndTime         time.Time    `db:"end_time" json:"end_time"`
	Status          PolicyStatus `db:"status" json:"status"`
	DamageThreshold int64        `db:"damage_threshold_bps" json:"damage_threshold_bps"`
	TriggeredAt     *time.Time   `db:"triggered_at" json:"triggered_at,omitempty"`
	CancelledAt     *time.Time   `db:"cancelled_at" json:"cancelled_at,omitempty"`
	RefundedAmount  int64        `db:"refunded_amount" json:"refunded_amount"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

// Payout tracks one disbursement pipeline for a triggered policy.
type Payout struct {
	ID                  uuid.UUID    `db:"id" json:"id"`
	PolicyID            uuid.UUID    `db:"policy_id" json:"policy_id"`
	OwnerID             string       `db:"owner_id" json:"owner_id"`
	DamagePercentageBps int64        `db:"damage_percentage_bps" json:"damage_percentage_bps"`
	Amount              int64        `db:"amount" json:"amount"`
	Status              PayoutStatus `db:"status" json:"status"`
	ApprovedBy          string       `db:"approved_by" json:"approved_by,omitempty"`
	ProcessedBy         string       `db:"processed_by" json:"processed_by,omitempty"`
	SettlementRef       string       `db:"settlement_ref" json:"settlement_ref,omitempty"`
	FailureReason       string       `db:"failure_reason" json:"failure_reason,omitempty"`
	InitiatedAt         time.Time    `db:"initiated_at" json:"initiated_at"`
	CalculatedAt        *time.Time   `db:"calculated_at" json:"calculated_at,omitempty"`
	ApprovedAt          *time.Time   `db:"approved_at" json:"approved_at,omitempty"`
	ProcessedAt         *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	CompletedAt         *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}

// PayoutBatch groups approved payouts for sequential processing.
type PayoutBatch struct {
	ID        uuid.UUID   `json:"id"`
	PayoutIDs []uuid.UUID `json:"payout_ids"`
	CreatedBy string      `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	Processed bool        `json:"processed"`
}

// BatchResult is the aggregate outcome of a non-atomic batch operation.
type BatchResult struct {
	SuccessCount int         `json:"success_count"`
	FailureCount int         `json:"failure_count"`
	FailedIDs    []uuid.UUID `json:"failed_ids,omitempty"`
}

// StakePosition is one underwriter's entry in the share ledger.
type StakePosition struct {
	StakerID         string `json:"staker_id"`
	Principal        int64  `json:"principal"`
	Shares           int64  `json:"shares"`
	RewardCheckpoint int64  `json:"reward_checkpoint"`
	AccruedRewards   int64  `json:"accrued_rewards"`
}

// PoolState is a read-model snapshot of the capital pool.
type PoolState struct {
	TotalStaked       int64 `json:"total_staked"`
	TotalShares       int64 `json:"total_shares"`
	LockedTotal       int64 `json:"locked_total"`
	UtilizationBps    int64 `json:"utilization_bps"`
	MaxUtilizationBps int64 `json:"max_utilization_bps"`
}

// ReserveState is a read-model snapshot of the treasury.
type ReserveState struct {
	TotalBalance    int64 `json:"total_balance"`
	ReserveBalance  int64 `json:"reserve_balance"`
	CollectedFees   int64 `json:"collected_fees"`
	ReserveRatioBps int64 `json:"reserve_ratio_bps"`
	MinRatioBps     int64 `json:"min_ratio_bps"`
	TargetRatioBps  int64 `json:"target_ratio_bps"`
	PremiumsTotal   int64 `json:"premiums_total"`
	PayoutsTotal    int64 `json:"payouts_total"`
}

// OwnerRecord tracks per-owner eligibility counters.
type OwnerRecord struct {
	OwnerID        string     `json:"owner_id"`
	ActivePolicies int        `json:"active_policies"`
	TrailingClaims int        `json:"trailing_claims"`
	LastClaimAt    *time.Time `json:"last_claim_at,omitempty"`
}

// CapitalLedgerEntry journals one pool mutation for audit.
type CapitalLedgerEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	EntryType string    `db:"entry_type" json:"entry_type"`
	EntityID  string    `db:"entity_id" json:"entity_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
