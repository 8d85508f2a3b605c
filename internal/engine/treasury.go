package engine

import (
	"fmt"

	"underwriting-service/internal/models"

	"github.com/google/uuid"
)

// maxPlatformFeeBps bounds the fee split on premium intake (20%).
const maxPlatformFeeBps int64 = 2000

// PayoutRequest is one disbursement item for a batch.
type PayoutRequest struct {
	PayoutID  uuid.UUID
	Recipient string
	Amount    int64
}

// Treasury is the custodian of settlement funds. Balances split into an
// available bucket and a reserve bucket; the reserve ratio (reserve /
// total, bps) must stay at or above minRatioBps after any withdrawal.
type Treasury struct {
	totalBalance   int64
	reserveBalance int64
	collectedFees  int64

	platformFeeBps        int64
	minRatioBps           int64
	targetRatioBps        int64
	rebalanceThresholdBps int64

	premiumsTotal int64
	payoutsTotal  int64

	emitter Emitter
}

type TreasuryConfig struct {
	PlatformFeeBps        int64
	MinRatioBps           int64
	TargetRatioBps        int64
	RebalanceThresholdBps int64
}

func NewTreasury(cfg TreasuryConfig, emitter Emitter) (*Treasury, error) {
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps > maxPlatformFeeBps {
		return nil, models.NewValidationError("platform fee %d bps exceeds cap %d", cfg.PlatformFeeBps, maxPlatformFeeBps)
	}
	if cfg.MinRatioBps < 0 || cfg.TargetRatioBps < cfg.MinRatioBps || cfg.TargetRatioBps > models.BpsScale {
		return nil, models.NewValidationError(
			"reserve ratios invalid: min %d, target %d", cfg.MinRatioBps, cfg.TargetRatioBps)
	}
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &Treasury{
		platformFeeBps:        cfg.PlatformFeeBps,
		minRatioBps:           cfg.MinRatioBps,
		targetRatioBps:        cfg.TargetRatioBps,
		rebalanceThresholdBps: cfg.RebalanceThresholdBps,
		emitter:               emitter,
	}, nil
}

func (t *Treasury) available() int64 {
	return t.totalBalance - t.reserveBalance
}

func (t *Treasury) ratioBps() int64 {
	if t.totalBalance == 0 {
		return 0
	}
	return t.reserveBalance * models.BpsScale / t.totalBalance
}

// ReceivePremium takes in a premium, extracts the platform fee and books
// the net amount, then runs a rebalance check.
func (t *Treasury) ReceivePremium(policyID uuid.UUID, payer string, amount int64) error {
	if amount <= 0 {
		return models.NewValidationError("premium must be positive, got %d", amount)
	}

	fee := amount * t.platformFeeBps / models.BpsScale
	net := amount - fee

	t.collectedFees += fee
	t.totalBalance += net
	t.premiumsTotal += amount

	t.emitter.Emit(newEvent(EventPremiumReceived, policyID.String(), "", amount, payer))
	t.Rebalance()
	return nil
}

// RefundPremium returns funds to a payer out of the available balance.
// Used for activation compensation and cancellation refunds.
func (t *Treasury) RefundPremium(policyID uuid.UUID, recipient string, amount int64) error {
	if amount <= 0 {
		return models.NewValidationError("refund must be positive, got %d", amount)
	}
	if amount > t.available() {
		return models.NewResourceError("refund %d exceeds available balance %d", amount, t.available())
	}
	t.totalBalance -= amount
	t.emitter.Emit(newEvent(EventPayoutExecuted, policyID.String(), "refund", amount, recipient))
	return nil
}

// ReversePremium undoes a premium intake within the same logical action,
// restoring both the fee and the net amount. Used when the capital lock of
// an activation fails after the premium was already pulled.
func (t *Treasury) ReversePremium(policyID uuid.UUID, payer string, amount int64) error {
	fee := amount * t.platformFeeBps / models.BpsScale
	net := amount - fee
	if net > t.totalBalance || fee > t.collectedFees {
		return models.NewResourceError("cannot reverse premium %d for policy %s", amount, policyID)
	}
	t.collectedFees -= fee
	t.totalBalance -= net
	t.premiumsTotal -= amount
	if t.reserveBalance > t.totalBalance {
		t.reserveBalance = t.totalBalance
	}
	t.emitter.Emit(newEvent(EventPayoutExecuted, policyID.String(), "premium_reversal", amount, payer))
	return nil
}

// canDisburse applies the collective solvency guard: the amount must fit
// in the non-reserve available bucket, or the reserve pays it whole and
// the post-payment reserve ratio must stay at or above minRatioBps.
func (t *Treasury) canDisburse(amount int64) error {
	if amount <= t.available() {
		return nil
	}
	if amount > t.reserveBalance {
		return models.NewResourceError(
			"payout %d exceeds available %d and reserve %d", amount, t.available(), t.reserveBalance)
	}
	postReserve := t.reserveBalance - amount
	postTotal := t.totalBalance - amount
	if postTotal == 0 {
		if t.minRatioBps == 0 {
			return nil
		}
		return models.NewResourceError("payout %d would empty the treasury", amount)
	}
	if postReserve*models.BpsScale/postTotal < t.minRatioBps {
		return models.NewResourceError(
			"payout %d would drop reserve ratio below %d bps", amount, t.minRatioBps)
	}
	return nil
}

// ExecutePayout disburses to a recipient under the solvency guard.
func (t *Treasury) ExecutePayout(payoutID uuid.UUID, recipient string, amount int64) error {
	if amount <= 0 {
		return models.NewValidationError("payout amount must be positive, got %d", amount)
	}
	if recipient == "" {
		return models.NewValidationError("payout recipient is required")
	}
	if err := t.canDisburse(amount); err != nil {
		return err
	}

	if amount > t.available() {
		t.reserveBalance -= amount
	}
	t.totalBalance -= amount
	t.payoutsTotal += amount

	t.emitter.Emit(newEvent(EventPayoutExecuted, payoutID.String(), "", amount, recipient))
	return nil
}

// ExecuteBatchPayouts validates the sum of all requested amounts up front,
// then disburses sequentially. Per-item failures after that point do not
// roll back earlier successes: the batch is deliberately at-least-once,
// non-atomic.
func (t *Treasury) ExecuteBatchPayouts(requests []PayoutRequest) (models.BatchResult, error) {
	var result models.BatchResult
	if len(requests) == 0 {
		return result, models.NewValidationError("batch contains no payout requests")
	}

	var sum int64
	for _, r := range requests {
		if r.Amount <= 0 {
			return result, models.NewValidationError("batch item %s has non-positive amount", r.PayoutID)
		}
		sum += r.Amount
	}
	if err := t.canDisburse(sum); err != nil {
		return result, err
	}

	for _, r := range requests {
		if err := t.ExecutePayout(r.PayoutID, r.Recipient, r.Amount); err != nil {
			result.FailureCount++
			result.FailedIDs = append(result.FailedIDs, r.PayoutID)
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

// FundReserves moves external admin funding straight into the reserve.
func (t *Treasury) FundReserves(amount int64) error {
	if amount <= 0 {
		return models.NewValidationError("reserve funding must be positive, got %d", amount)
	}
	t.totalBalance += amount
	t.reserveBalance += amount
	t.emitter.Emit(newEvent(EventReservesFunded, "treasury", "", amount, ""))
	return nil
}

// WithdrawReserves releases reserve funds externally; rejected when the
// post-withdrawal ratio would fall below minRatioBps.
func (t *Treasury) WithdrawReserves(amount int64, recipient string) error {
	if amount <= 0 {
		return models.NewValidationError("reserve withdrawal must be positive, got %d", amount)
	}
	if amount > t.reserveBalance {
		return models.NewResourceError("withdrawal %d exceeds reserve balance %d", amount, t.reserveBalance)
	}
	postReserve := t.reserveBalance - amount
	postTotal := t.totalBalance - amount
	if postTotal > 0 && postReserve*models.BpsScale/postTotal < t.minRatioBps {
		return models.NewResourceError(
			"withdrawal %d would drop reserve ratio below %d bps", amount, t.minRatioBps)
	}
	t.reserveBalance = postReserve
	t.totalBalance = postTotal
	t.emitter.Emit(newEvent(EventReservesWithdrawn, "treasury", "", amount, recipient))
	return nil
}

// WithdrawFees releases accumulated platform fees; fees sit outside the
// insurable balance so no reserve guard applies.
func (t *Treasury) WithdrawFees(amount int64, recipient string) error {
	if amount <= 0 {
		return models.NewValidationError("fee withdrawal must be positive, got %d", amount)
	}
	if amount > t.collectedFees {
		return models.NewResourceError("withdrawal %d exceeds collected fees %d", amount, t.collectedFees)
	}
	t.collectedFees -= amount
	t.emitter.Emit(newEvent(EventReservesWithdrawn, "fees", "", amount, recipient))
	return nil
}

// Rebalance shifts funds between the available and reserve buckets toward
// targetRatioBps, but only when the deviation exceeds the hysteresis
// threshold. Returns the signed amount moved into reserve.
func (t *Treasury) Rebalance() int64 {
	if t.totalBalance == 0 {
		return 0
	}
	current := t.ratioBps()
	deviation := current - t.targetRatioBps
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation <= t.rebalanceThresholdBps {
		return 0
	}

	target := t.totalBalance * t.targetRatioBps / models.BpsScale
	moved := target - t.reserveBalance
	t.reserveBalance = target

	t.emitter.Emit(newEvent(EventRebalanced, "treasury", "", moved, ""))
	return moved
}

func (t *Treasury) State() models.ReserveState {
	return models.ReserveState{
		TotalBalance:    t.totalBalance,
		ReserveBalance:  t.reserveBalance,
		CollectedFees:   t.collectedFees,
		ReserveRatioBps: t.ratioBps(),
		MinRatioBps:     t.minRatioBps,
		TargetRatioBps:  t.targetRatioBps,
		PremiumsTotal:   t.premiumsTotal,
		PayoutsTotal:    t.payoutsTotal,
	}
}

func (t *Treasury) SetPlatformFee(bps int64) error {
	if bps < 0 || bps > maxPlatformFeeBps {
		return models.NewValidationError("platform fee %d bps exceeds cap %d", bps, maxPlatformFeeBps)
	}
	t.platformFeeBps = bps
	return nil
}

func (t *Treasury) SetReserveRatios(minBps, targetBps int64) error {
	if minBps < 0 || targetBps < minBps || targetBps > models.BpsScale {
		return models.NewValidationError("reserve ratios invalid: min %d, target %d", minBps, targetBps)
	}
	t.minRatioBps = minBps
	t.targetRatioBps = targetBps
	return nil
}

// CheckInvariants verifies reserve containment.
func (t *Treasury) CheckInvariants() error {
	if t.reserveBalance < 0 || t.totalBalance < 0 {
		return fmt.Errorf("negative balance: total %d, reserve %d", t.totalBalance, t.reserveBalance)
	}
	if t.reserveBalance > t.totalBalance {
		return fmt.Errorf("reserve %d exceeds total balance %d", t.reserveBalance, t.totalBalance)
	}
	return nil
}
