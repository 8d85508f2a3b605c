package services

import (
	"context"
	"log/slog"

	"underwriting-service/internal/engine"
	"underwriting-service/internal/models"
	"underwriting-service/internal/repository"

	"github.com/google/uuid"
)

// UnderwritingService fronts the accounting engine. The engine's in-memory
// state is authoritative; Postgres is a write-through journal for reporting
// and audit, so journal failures are logged, never returned.
type UnderwritingService struct {
	engine     *engine.Engine
	policyRepo *repository.PolicyRepository
	payoutRepo *repository.PayoutRepository
	ledgerRepo *repository.LedgerRepository
}

func NewUnderwritingService(eng *engine.Engine, policyRepo *repository.PolicyRepository, payoutRepo *repository.PayoutRepository, ledgerRepo *repository.LedgerRepository) *UnderwritingService {
	return &UnderwritingService{
		engine:     eng,
		policyRepo: policyRepo,
		payoutRepo: payoutRepo,
		ledgerRepo: ledgerRepo,
	}
}

func (s *UnderwritingService) journalPolicy(ctx context.Context, policyID uuid.UUID, create bool) {
	if s.policyRepo == nil {
		return
	}
	policy, err := s.engine.GetPolicy(policyID)
	if err != nil {
		slog.Warn("policy journal skipped, engine lookup failed", "policy_id", policyID, "error", err)
		return
	}
	if create {
		err = s.policyRepo.Create(ctx, &policy)
	} else {
		err = s.policyRepo.Update(ctx, &policy)
	}
	if err != nil {
		slog.Warn("policy journal write failed", "policy_id", policyID, "error", err)
	}
}

func (s *UnderwritingService) journalPayout(ctx context.Context, payoutID uuid.UUID, create bool) {
	if s.payoutRepo == nil {
		return
	}
	payout, err := s.engine.GetPayout(payoutID)
	if err != nil {
		slog.Warn("payout journal skipped, engine lookup failed", "payout_id", payoutID, "error", err)
		return
	}
	if create {
		err = s.payoutRepo.Create(ctx, &payout)
	} else {
		err = s.payoutRepo.Update(ctx, &payout)
	}
	if err != nil {
		slog.Warn("payout journal write failed", "payout_id", payoutID, "error", err)
	}
}

func (s *UnderwritingService) journalLedger(ctx context.Context, entryType, entityID string, amount int64, detail string) {
	if s.ledgerRepo == nil {
		return
	}
	entry := &models.CapitalLedgerEntry{
		EntryType: entryType,
		EntityID:  entityID,
		Amount:    amount,
		Detail:    detail,
	}
	if err := s.ledgerRepo.Append(ctx, entry); err != nil {
		slog.Warn("ledger journal write failed", "entry_type", entryType, "entity_id", entityID, "error", err)
	}
}

// ---- capital pool ----

func (s *UnderwritingService) Stake(ctx context.Context, caller engine.Caller, amount int64) (int64, error) {
	shares, err := s.engine.Stake(caller, amount)
	if err != nil {
		return 0, err
	}
	s.journalLedger(ctx, "stake", caller.ID, amount, "")
	return shares, nil
}

func (s *UnderwritingService) Unstake(ctx context.Context, caller engine.Caller, shares int64) (int64, error) {
	amount, err := s.engine.Unstake(caller, shares)
	if err != nil {
		return 0, err
	}
	s.journalLedger(ctx, "unstake", caller.ID, amount, "")
	return amount, nil
}

func (s *UnderwritingService) ClaimRewards(ctx context.Context, caller engine.Caller) (int64, error) {
	amount, err := s.engine.ClaimRewards(caller)
	if err != nil {
		return 0, err
	}
	s.journalLedger(ctx, "rewards_claimed", caller.ID, amount, "")
	return amount, nil
}

func (s *UnderwritingService) DistributeRewards(ctx context.Context, caller engine.Caller, amount int64) error {
	if err := s.engine.DistributeRewards(caller, amount); err != nil {
		return err
	}
	s.journalLedger(ctx, "rewards_distributed", "pool", amount, "")
	return nil
}

func (s *UnderwritingService) PoolState() models.PoolState {
	return s.engine.PoolState()
}

func (s *UnderwritingService) Position(stakerID string) (models.StakePosition, error) {
	return s.engine.Position(stakerID)
}

func (s *UnderwritingService) PendingRewards(stakerID string) int64 {
	return s.engine.PendingRewards(stakerID)
}

// ---- policy lifecycle ----

func (s *UnderwritingService) CreatePolicy(ctx context.Context, caller engine.Caller, req models.CreatePolicyRequest) (*models.Policy, error) {
	policy, err := s.engine.CreatePolicy(caller, req)
	if err != nil {
		return nil, err
	}
	s.journalPolicy(ctx, policy.ID, true)
	return policy, nil
}

func (s *UnderwritingService) ActivatePolicy(ctx context.Context, caller engine.Caller, policyID uuid.UUID) error {
	if err := s.engine.ActivatePolicy(caller, policyID); err != nil {
		return err
	}
	s.journalPolicy(ctx, policyID, false)
	return nil
}

func (s *UnderwritingService) TriggerPolicy(ctx context.Context, caller engine.Caller, policyID uuid.UUID) error {
	if err := s.engine.TriggerPolicy(caller, policyID); err != nil {
		return err
	}
	s.journalPolicy(ctx, policyID, false)
	return nil
}

func (s *UnderwritingService) CancelPolicy(ctx context.Context, caller engine.Caller, policyID uuid.UUID) error {
	if err := s.engine.CancelPolicy(caller, policyID); err != nil {
		return err
	}
	s.journalPolicy(ctx, policyID, false)
	return nil
}

func (s *UnderwritingService) ExpirePolicy(ctx context.Context, caller engine.Caller, policyID uuid.UUID) error {
	if err := s.engine.ExpirePolicy(caller, policyID); err != nil {
		return err
	}
	s.journalPolicy(ctx, policyID, false)
	return nil
}

func (s *UnderwritingService) BatchExpirePolicies(ctx context.Context, caller engine.Caller, policyIDs []uuid.UUID) (models.BatchResult, error) {
	result, err := s.engine.BatchExpirePolicies(caller, policyIDs)
	if err != nil {
		return models.BatchResult{}, err
	}
	for _, id := range policyIDs {
		s.journalPolicy(ctx, id, false)
	}
	return result, nil
}

// ExpireDuePolicies sweeps every policy past its coverage window. Used by
// the scheduler.
func (s *UnderwritingService) ExpireDuePolicies(ctx context.Context, caller engine.Caller) (models.BatchResult, error) {
	due := s.engine.ExpirablePolicyIDs()
	if len(due) == 0 {
		return models.BatchResult{}, nil
	}
	return s.BatchExpirePolicies(ctx, caller, due)
}

func (s *UnderwritingService) GetPolicy(policyID uuid.UUID) (models.Policy, error) {
	return s.engine.GetPolicy(policyID)
}

func (s *UnderwritingService) PoliciesByOwner(ownerID string) []models.Policy {
	return s.engine.PoliciesByOwner(ownerID)
}

func (s *UnderwritingService) OwnerRecord(ownerID string) models.OwnerRecord {
	return s.engine.OwnerRecord(ownerID)
}

// ---- payout workflow ----

func (s *UnderwritingService) InitiatePayout(ctx context.Context, caller engine.Caller, policyID uuid.UUID) (*models.Payout, error) {
	payout, err := s.engine.InitiatePayout(caller, policyID)
	if err != nil {
		return nil, err
	}
	s.journalPayout(ctx, payout.ID, true)
	return payout, nil
}

func (s *UnderwritingService) CalculatePayout(ctx context.Context, caller engine.Caller, payoutID uuid.UUID) error {
	if err := s.engine.CalculatePayout(ctx, caller, payoutID); err != nil {
		return err
	}
	s.journalPayout(ctx, payoutID, false)
	return nil
}

func (s *UnderwritingService) ApprovePayout(ctx context.Context, caller engine.Caller, payoutID uuid.UUID) error {
	if err := s.engine.ApprovePayout(caller, payoutID); err != nil {
		return err
	}
	s.journalPayout(ctx, payoutID, false)
	return nil
}

func (s *UnderwritingService) ProcessPayout(ctx context.Context, caller engine.Caller, payoutID uuid.UUID) error {
	err := s.engine.ProcessPayout(caller, payoutID)
	// Process can leave the payout in a failed state; journal either way.
	s.journalPayout(ctx, payoutID, false)
	return err
}

func (s *UnderwritingService) ConfirmPayout(ctx context.Context, caller engine.Caller, payoutID uuid.UUID, settlementRef string) error {
	if err := s.engine.ConfirmPayout(caller, payoutID, settlementRef); err != nil {
		return err
	}
	s.journalPayout(ctx, payoutID, false)
	return nil
}

func (s *UnderwritingService) CreatePayoutBatch(caller engine.Caller, payoutIDs []uuid.UUID) (*models.PayoutBatch, error) {
	return s.engine.CreatePayoutBatch(caller, payoutIDs)
}

func (s *UnderwritingService) ProcessPayoutBatch(ctx context.Context, caller engine.Caller, batchID uuid.UUID) (models.BatchResult, error) {
	result, err := s.engine.ProcessPayoutBatch(caller, batchID)
	if err != nil {
		return models.BatchResult{}, err
	}
	s.journalLedger(ctx, "payout_batch_processed", batchID.String(), int64(result.SuccessCount), "")
	return result, nil
}

func (s *UnderwritingService) GetPayout(payoutID uuid.UUID) (models.Payout, error) {
	return s.engine.GetPayout(payoutID)
}

func (s *UnderwritingService) PayoutsByPolicy(policyID uuid.UUID) []models.Payout {
	return s.engine.PayoutsByPolicy(policyID)
}

// ---- treasury ----

func (s *UnderwritingService) FundReserves(ctx context.Context, caller engine.Caller, amount int64) error {
	if err := s.engine.FundReserves(caller, amount); err != nil {
		return err
	}
	s.journalLedger(ctx, "reserves_funded", caller.ID, amount, "")
	return nil
}

func (s *UnderwritingService) WithdrawReserves(ctx context.Context, caller engine.Caller, amount int64, recipient string) error {
	if err := s.engine.WithdrawReserves(caller, amount, recipient); err != nil {
		return err
	}
	s.journalLedger(ctx, "reserves_withdrawn", recipient, amount, "")
	return nil
}

func (s *UnderwritingService) WithdrawFees(ctx context.Context, caller engine.Caller, amount int64, recipient string) error {
	if err := s.engine.WithdrawFees(caller, amount, recipient); err != nil {
		return err
	}
	s.journalLedger(ctx, "fees_withdrawn", recipient, amount, "")
	return nil
}

func (s *UnderwritingService) RebalanceTreasury(ctx context.Context, caller engine.Caller) (int64, error) {
	moved, err := s.engine.RebalanceTreasury(caller)
	if err != nil {
		return 0, err
	}
	if moved != 0 {
		s.journalLedger(ctx, "treasury_rebalanced", "treasury", moved, "")
	}
	return moved, nil
}

func (s *UnderwritingService) TreasuryState() models.ReserveState {
	return s.engine.TreasuryState()
}

// ---- administration ----

func (s *UnderwritingService) Pause(caller engine.Caller) error {
	return s.engine.Pause(caller)
}

func (s *UnderwritingService) Unpause(caller engine.Caller) error {
	return s.engine.Unpause(caller)
}

func (s *UnderwritingService) Paused() bool {
	return s.engine.Paused()
}

func (s *UnderwritingService) UpdateParameters(caller engine.Caller, req models.UpdateParametersRequest) error {
	return s.engine.UpdateParameters(caller, req)
}

func (s *UnderwritingService) CheckInvariants() error {
	return s.engine.CheckInvariants()
}

func (s *UnderwritingService) LedgerEntries(ctx context.Context, limit int) ([]models.CapitalLedgerEntry, error) {
	if s.ledgerRepo == nil {
		return nil, models.NewResourceError("ledger journal is not configured")
	}
	return s.ledgerRepo.ListRecent(ctx, limit)
}

// ---- journal reads ----
//
// Audit views read from the Postgres journal instead of the engine, so an
// operator can diff the journal against the authoritative in-memory state.

func (s *UnderwritingService) JournaledPolicy(ctx context.Context, policyID uuid.UUID) (*models.Policy, error) {
	if s.policyRepo == nil {
		return nil, models.NewResourceError("policy journal is not configured")
	}
	return s.policyRepo.GetByID(ctx, policyID)
}

func (s *UnderwritingService) JournaledPoliciesByOwner(ctx context.Context, ownerID string) ([]models.Policy, error) {
	if s.policyRepo == nil {
		return nil, models.NewResourceError("policy journal is not configured")
	}
	return s.policyRepo.ListByOwner(ctx, ownerID)
}

func (s *UnderwritingService) JournaledPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if s.payoutRepo == nil {
		return nil, models.NewResourceError("payout journal is not configured")
	}
	return s.payoutRepo.GetByID(ctx, payoutID)
}

func (s *UnderwritingService) JournaledPayoutsByPolicy(ctx context.Context, policyID uuid.UUID) ([]models.Payout, error) {
	if s.payoutRepo == nil {
		return nil, models.NewResourceError("payout journal is not configured")
	}
	return s.payoutRepo.ListByPolicy(ctx, policyID)
}
