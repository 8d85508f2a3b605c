package models

import (
	"time"

	"github.com/google/uuid"
)

type CreatePolicyRequest struct {
	OwnerID         string       `json:"owner_id"`
	ExternalRef     string       `json:"external_ref"`
	CropType        CropType     `json:"crop_type"`
	CoverageType    CoverageType `json:"coverage_type"`
	CoverageAmount  int64        `json:"coverage_amount"`
	StartTime       time.Time    `json:"start_time"`
	EndTime         time.Time    `json:"end_time"`
	DamageThreshold int64        `json:"damage_threshold_bps"`
}

type StakeRequest struct {
	Amount int64 `json:"amount"`
}

type UnstakeRequest struct {
	Shares int64 `json:"shares"`
}

type DistributeRewardsRequest struct {
	Amount int64 `json:"amount"`
}

type ReserveRequest struct {
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient,omitempty"`
}

type ConfirmPayoutRequest struct {
	SettlementRef string `json:"settlement_ref"`
}

type CreateBatchRequest struct {
	PayoutIDs []uuid.UUID `json:"payout_ids"`
}

type BatchExpireRequest struct {
	PolicyIDs []uuid.UUID `json:"policy_ids"`
}

type UpdateParametersRequest struct {
	PlatformFeeBps    *int64 `json:"platform_fee_bps,omitempty"`
	MinReserveBps     *int64 `json:"min_reserve_bps,omitempty"`
	TargetReserveBps  *int64 `json:"target_reserve_bps,omitempty"`
	MaxUtilizationBps *int64 `json:"max_utilization_bps,omitempty"`
}
