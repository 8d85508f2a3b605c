package engine

import (
	"context"
	"log/slog"
	"time"

	"underwriting-service/internal/models"

	"github.com/google/uuid"
)

// policyReader is the lifecycle surface the payout workflow needs.
type policyReader interface {
	Get(policyID uuid.UUID) (models.Policy, error)
}

// DamageOracle supplies the externally computed loss severity for a
// policy. Unavailability is a retryable failure, never zero damage.
type DamageOracle interface {
	DamagePercentageBps(ctx context.Context, policyID uuid.UUID) (int64, error)
}

// disburser is the treasury surface the payout workflow needs.
type disburser interface {
	ExecutePayout(payoutID uuid.UUID, recipient string, amount int64) error
}

// capitalReleaser is the pool surface the payout workflow needs.
type capitalReleaser interface {
	Unlock(policyID uuid.UUID, amount int64, reason models.UnlockReason) error
}

// PayoutWorkflow drives the five-stage disbursement pipeline:
// Pending -> Calculated -> Approved -> Processing -> Completed, with a
// Failed side-exit from Approved or Processing.
type PayoutWorkflow struct {
	payouts  map[uuid.UUID]*models.Payout
	byPolicy map[uuid.UUID]uuid.UUID
	batches  map[uuid.UUID]*models.PayoutBatch

	totalDisbursed int64
	completedCount int64

	policies policyReader
	oracle   DamageOracle
	treasury disburser
	pool     capitalReleaser
	emitter  Emitter
	now      func() time.Time
}

func NewPayoutWorkflow(policies policyReader, oracle DamageOracle, treasury disburser, pool capitalReleaser, emitter Emitter) *PayoutWorkflow {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &PayoutWorkflow{
		payouts:  make(map[uuid.UUID]*models.Payout),
		byPolicy: make(map[uuid.UUID]uuid.UUID),
		batches:  make(map[uuid.UUID]*models.PayoutBatch),
		policies: policies,
		oracle:   oracle,
		treasury: treasury,
		pool:     pool,
		emitter:  emitter,
		now:      time.Now,
	}
}

// SetClock overrides the time source; tests only.
func (w *PayoutWorkflow) SetClock(now func() time.Time) {
	w.now = now
}

func (w *PayoutWorkflow) emitStatus(p *models.Payout, actor string) {
	w.emitter.Emit(newEvent(EventPayoutStatus, p.ID.String(), string(p.Status), p.Amount, actor))
}

// Initiate opens a payout for a triggered policy. One live payout per
// policy: a previous payout must have reached Failed before a new one can
// be opened.
func (w *PayoutWorkflow) Initiate(policyID uuid.UUID, processor string) (*models.Payout, error) {
	policy, err := w.policies.Get(policyID)
	if err != nil {
		return nil, err
	}
	if policy.Status != models.PolicyTriggered {
		return nil, models.NewStateError("cannot initiate payout for policy in status %s", policy.Status)
	}
	if existingID, ok := w.byPolicy[policyID]; ok {
		if w.payouts[existingID].Status != models.PayoutFailed {
			return nil, models.NewStateError("policy %s already has payout %s in flight", policyID, existingID)
		}
	}

	payout := &models.Payout{
		ID:          uuid.New(),
		PolicyID:    policyID,
		OwnerID:     policy.OwnerID,
		Status:      models.PayoutPending,
		InitiatedAt: w.now(),
	}
	w.payouts[payout.ID] = payout
	w.byPolicy[policyID] = payout.ID

	w.emitStatus(payout, processor)
	return payout, nil
}

// Calculate asks the damage oracle for the loss severity and derives the
// payout amount, bounded by the policy coverage. An oracle failure leaves
// the payout Pending so the call can simply be re-invoked.
func (w *PayoutWorkflow) Calculate(ctx context.Context, payoutID uuid.UUID, processor string) error {
	payout, ok := w.payouts[payoutID]
	if !ok {
		return models.NewNotFoundError("payout %s not found", payoutID)
	}
	if payout.Status != models.PayoutPending {
		return models.NewStateError("cannot calculate payout in status %s", payout.Status)
	}
	policy, err := w.policies.Get(payout.PolicyID)
	if err != nil {
		return err
	}

	damageBps, err := w.oracle.DamagePercentageBps(ctx, payout.PolicyID)
	if err != nil {
		return models.NewResourceError("damage oracle unavailable for policy %s: %v", payout.PolicyID, err)
	}
	if damageBps < 0 || damageBps > models.BpsScale {
		return models.NewValidationError("oracle damage %d bps out of range [0, 10000]", damageBps)
	}

	amount := policy.CoverageAmount * damageBps / models.BpsScale
	if damageBps < policy.DamageThreshold {
		amount = 0
	}
	if amount > policy.CoverageAmount {
		amount = policy.CoverageAmount
	}

	payout.DamagePercentageBps = damageBps
	payout.Amount = amount
	payout.Status = models.PayoutCalculated
	at := w.now()
	payout.CalculatedAt = &at

	w.emitStatus(payout, processor)
	return nil
}

// Approve advances a calculated payout with a non-zero amount. The
// approver is recorded so processing can enforce separation of duties.
func (w *PayoutWorkflow) Approve(payoutID uuid.UUID, approver string) error {
	payout, ok := w.payouts[payoutID]
	if !ok {
		return models.NewNotFoundError("payout %s not found", payoutID)
	}
	if payout.Status != models.PayoutCalculated {
		return models.NewStateError("cannot approve payout in status %s", payout.Status)
	}
	if payout.Amount <= 0 {
		return models.NewValidationError("payout %s has zero amount, nothing to approve", payoutID)
	}

	payout.Status = models.PayoutApproved
	payout.ApprovedBy = approver
	at := w.now()
	payout.ApprovedAt = &at

	w.emitStatus(payout, approver)
	return nil
}

// Process disburses an approved payout through the treasury and releases
// the policy's locked capital. The payout stays in Processing until an
// explicit Confirm. A treasury failure marks the payout Failed; a capital
// release failure after a successful disbursement is logged only, because
// the pool independently rejects over-unlocks.
func (w *PayoutWorkflow) Process(payoutID uuid.UUID, processor string) error {
	payout, ok := w.payouts[payoutID]
	if !ok {
		return models.NewNotFoundError("payout %s not found", payoutID)
	}
	if payout.Status != models.PayoutApproved {
		return models.NewStateError("cannot process payout in status %s", payout.Status)
	}
	if processor == "" {
		return models.NewValidationError("processor id is required")
	}
	if processor == payout.ApprovedBy {
		return models.NewAuthorizationError(
			"processor %s approved payout %s, separation of duties requires a different principal", processor, payoutID)
	}
	policy, err := w.policies.Get(payout.PolicyID)
	if err != nil {
		return err
	}

	// Effects before interactions: the status moves before the external
	// disbursement is issued.
	payout.Status = models.PayoutProcessing
	payout.ProcessedBy = processor
	at := w.now()
	payout.ProcessedAt = &at

	if err := w.treasury.ExecutePayout(payout.ID, payout.OwnerID, payout.Amount); err != nil {
		payout.Status = models.PayoutFailed
		payout.FailureReason = err.Error()
		w.emitStatus(payout, processor)
		return err
	}

	if err := w.pool.Unlock(payout.PolicyID, policy.CoverageAmount, models.UnlockPayout); err != nil {
		slog.Error("capital release after payout failed, funds already disbursed",
			"payout_id", payout.ID, "policy_id", payout.PolicyID, "error", err)
	}

	w.emitStatus(payout, processor)
	return nil
}

// Confirm records the external settlement reference and completes the
// payout, bumping the running totals exactly once.
func (w *PayoutWorkflow) Confirm(payoutID uuid.UUID, settlementRef, processor string) error {
	payout, ok := w.payouts[payoutID]
	if !ok {
		return models.NewNotFoundError("payout %s not found", payoutID)
	}
	if payout.Status != models.PayoutProcessing {
		return models.NewStateError("cannot confirm payout in status %s", payout.Status)
	}
	if settlementRef == "" {
		return models.NewValidationError("settlement reference is required")
	}

	payout.Status = models.PayoutCompleted
	payout.SettlementRef = settlementRef
	at := w.now()
	payout.CompletedAt = &at

	w.totalDisbursed += payout.Amount
	w.completedCount++

	w.emitStatus(payout, processor)
	return nil
}

// CreateBatch groups approved payouts for sequential processing.
func (w *PayoutWorkflow) CreateBatch(payoutIDs []uuid.UUID, creator string) (*models.PayoutBatch, error) {
	if len(payoutIDs) == 0 {
		return nil, models.NewValidationError("batch contains no payouts")
	}
	for _, id := range payoutIDs {
		payout, ok := w.payouts[id]
		if !ok {
			return nil, models.NewNotFoundError("payout %s not found", id)
		}
		if payout.Status != models.PayoutApproved {
			return nil, models.NewStateError("payout %s is %s, batches take approved payouts only", id, payout.Status)
		}
	}

	batch := &models.PayoutBatch{
		ID:        uuid.New(),
		PayoutIDs: append([]uuid.UUID(nil), payoutIDs...),
		CreatedBy: creator,
		CreatedAt: w.now(),
	}
	w.batches[batch.ID] = batch
	return batch, nil
}

// ProcessBatch runs Process over a batch. An item whose status is no
// longer exactly Approved at execution time counts as a failure; the batch
// never aborts on a single item.
func (w *PayoutWorkflow) ProcessBatch(batchID uuid.UUID, processor string) (models.BatchResult, error) {
	var result models.BatchResult
	batch, ok := w.batches[batchID]
	if !ok {
		return result, models.NewNotFoundError("batch %s not found", batchID)
	}
	if batch.Processed {
		return result, models.NewStateError("batch %s was already processed", batchID)
	}

	for _, id := range batch.PayoutIDs {
		payout, ok := w.payouts[id]
		if !ok || payout.Status != models.PayoutApproved {
			result.FailureCount++
			result.FailedIDs = append(result.FailedIDs, id)
			continue
		}
		if err := w.Process(id, processor); err != nil {
			result.FailureCount++
			result.FailedIDs = append(result.FailedIDs, id)
			continue
		}
		result.SuccessCount++
	}
	batch.Processed = true
	return result, nil
}

func (w *PayoutWorkflow) Get(payoutID uuid.UUID) (models.Payout, error) {
	payout, ok := w.payouts[payoutID]
	if !ok {
		return models.Payout{}, models.NewNotFoundError("payout %s not found", payoutID)
	}
	return *payout, nil
}

func (w *PayoutWorkflow) ListByPolicy(policyID uuid.UUID) []models.Payout {
	var out []models.Payout
	for _, p := range w.payouts {
		if p.PolicyID == policyID {
			out = append(out, *p)
		}
	}
	return out
}

// Totals reports the completed disbursement running totals.
func (w *PayoutWorkflow) Totals() (totalDisbursed int64, completedCount int64) {
	return w.totalDisbursed, w.completedCount
}
