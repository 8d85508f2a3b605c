package engine

import (
	"fmt"

	"underwriting-service/internal/models"

	"github.com/google/uuid"
)

// rewardPrecision scales the per-share reward accumulator so integer
// division keeps sub-unit reward amounts.
const rewardPrecision int64 = 1_000_000_000_000

// CapitalPool is the share-based ledger for underwriting capital.
// Shares convert at the pool valuation (totalStaked/totalShares); locked
// capital backs active policies and is excluded from withdrawals.
type CapitalPool struct {
	totalStaked       int64
	totalShares       int64
	lockedTotal       int64
	maxUtilizationBps int64

	rewardPerShare int64 // scaled by rewardPrecision
	positions      map[string]*models.StakePosition
	locks          map[uuid.UUID]int64

	emitter Emitter
}

func NewCapitalPool(maxUtilizationBps int64, emitter Emitter) *CapitalPool {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &CapitalPool{
		maxUtilizationBps: maxUtilizationBps,
		positions:         make(map[string]*models.StakePosition),
		locks:             make(map[uuid.UUID]int64),
		emitter:           emitter,
	}
}

// accrue folds the pending reward of a position into its accrued bucket
// and moves the checkpoint forward. Must run before any share change.
func (p *CapitalPool) accrue(pos *models.StakePosition) {
	if pos.Shares > 0 {
		pending := pos.Shares * (p.rewardPerShare - pos.RewardCheckpoint) / rewardPrecision
		pos.AccruedRewards += pending
	}
	pos.RewardCheckpoint = p.rewardPerShare
}

// Stake deposits capital and mints shares. An empty pool mints 1:1 to
// establish the baseline valuation.
func (p *CapitalPool) Stake(stakerID string, amount int64) (int64, error) {
	if stakerID == "" {
		return 0, models.NewValidationError("staker id is required")
	}
	if amount <= 0 {
		return 0, models.NewValidationError("stake amount must be positive, got %d", amount)
	}

	var shares int64
	if p.totalShares == 0 {
		shares = amount
	} else {
		shares = amount * p.totalShares / p.totalStaked
	}
	if shares <= 0 {
		return 0, models.NewValidationError("stake amount %d too small to mint shares", amount)
	}

	pos, ok := p.positions[stakerID]
	if !ok {
		pos = &models.StakePosition{StakerID: stakerID}
		p.positions[stakerID] = pos
	}
	p.accrue(pos)

	pos.Principal += amount
	pos.Shares += shares
	p.totalStaked += amount
	p.totalShares += shares

	p.emitter.Emit(newEvent(EventStaked, stakerID, "", amount, stakerID))
	return shares, nil
}

// Unstake burns shares and returns the proportional amount. Fails when the
// amount exceeds unlocked capital or would push utilization over the cap.
func (p *CapitalPool) Unstake(stakerID string, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, models.NewValidationError("share count must be positive, got %d", shares)
	}
	pos, ok := p.positions[stakerID]
	if !ok {
		return 0, models.NewNotFoundError("no stake position for %s", stakerID)
	}
	if pos.Shares < shares {
		return 0, models.NewResourceError("insufficient shares: have %d, want %d", pos.Shares, shares)
	}

	amount := shares * p.totalStaked / p.totalShares
	if amount > p.totalStaked-p.lockedTotal {
		return 0, models.NewResourceError(
			"withdrawal %d exceeds unlocked capital %d", amount, p.totalStaked-p.lockedTotal)
	}
	if p.lockedTotal*models.BpsScale > (p.totalStaked-amount)*p.maxUtilizationBps {
		return 0, models.NewResourceError(
			"withdrawal %d would push utilization over the %d bps cap", amount, p.maxUtilizationBps)
	}

	p.accrue(pos)

	pos.Shares -= shares
	if amount >= pos.Principal {
		pos.Principal = 0
	} else {
		pos.Principal -= amount
	}
	p.totalShares -= shares
	p.totalStaked -= amount
	if pos.Shares == 0 && pos.AccruedRewards == 0 {
		delete(p.positions, stakerID)
	}

	p.emitter.Emit(newEvent(EventUnstaked, stakerID, "", amount, stakerID))
	return amount, nil
}

// Lock reserves capital against a policy. Exactly one lock record per
// policy; a second lock attempt is an error.
func (p *CapitalPool) Lock(policyID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return models.NewValidationError("lock amount must be positive, got %d", amount)
	}
	if _, exists := p.locks[policyID]; exists {
		return models.NewStateError("capital already locked for policy %s", policyID)
	}
	available := p.totalStaked - p.lockedTotal
	if amount > available {
		return models.NewResourceError("lock %d exceeds available capital %d", amount, available)
	}
	if p.totalStaked == 0 ||
		(p.lockedTotal+amount)*models.BpsScale > p.totalStaked*p.maxUtilizationBps {
		return models.NewResourceError(
			"lock %d would breach utilization cap %d bps", amount, p.maxUtilizationBps)
	}

	p.locks[policyID] = amount
	p.lockedTotal += amount

	p.emitter.Emit(newEvent(EventCapitalLocked, policyID.String(), "", amount, ""))
	return nil
}

// Unlock releases up to the recorded amount for a policy. Requesting more
// than recorded is an error; releasing the full amount removes the record.
func (p *CapitalPool) Unlock(policyID uuid.UUID, amount int64, reason models.UnlockReason) error {
	if amount <= 0 {
		return models.NewValidationError("unlock amount must be positive, got %d", amount)
	}
	locked, ok := p.locks[policyID]
	if !ok {
		return models.NewNotFoundError("no locked capital for policy %s", policyID)
	}
	if amount > locked {
		return models.NewResourceError(
			"unlock %d exceeds locked amount %d for policy %s", amount, locked, policyID)
	}

	if amount == locked {
		delete(p.locks, policyID)
	} else {
		p.locks[policyID] = locked - amount
	}
	p.lockedTotal -= amount

	p.emitter.Emit(newEvent(EventCapitalUnlocked, policyID.String(), string(reason), amount, ""))
	return nil
}

// DistributeRewards spreads a reward amount over current shareholders via
// the per-share accumulator, so distribution never iterates stakers.
func (p *CapitalPool) DistributeRewards(total int64) error {
	if total <= 0 {
		return models.NewValidationError("reward amount must be positive, got %d", total)
	}
	if p.totalShares == 0 {
		return models.NewStateError("cannot distribute rewards to an empty pool")
	}

	p.rewardPerShare += total * rewardPrecision / p.totalShares

	p.emitter.Emit(newEvent(EventRewardsDistributed, "pool", "", total, ""))
	return nil
}

// ClaimRewards pays out a staker's accrued rewards and resets them.
func (p *CapitalPool) ClaimRewards(stakerID string) (int64, error) {
	pos, ok := p.positions[stakerID]
	if !ok {
		return 0, models.NewNotFoundError("no stake position for %s", stakerID)
	}
	p.accrue(pos)

	amount := pos.AccruedRewards
	if amount == 0 {
		return 0, models.NewResourceError("no rewards accrued for %s", stakerID)
	}
	pos.AccruedRewards = 0
	if pos.Shares == 0 {
		delete(p.positions, stakerID)
	}

	p.emitter.Emit(newEvent(EventRewardsClaimed, stakerID, "", amount, stakerID))
	return amount, nil
}

// PendingRewards reports claimable rewards without mutating the position.
func (p *CapitalPool) PendingRewards(stakerID string) int64 {
	pos, ok := p.positions[stakerID]
	if !ok {
		return 0
	}
	pending := pos.AccruedRewards
	if pos.Shares > 0 {
		pending += pos.Shares * (p.rewardPerShare - pos.RewardCheckpoint) / rewardPrecision
	}
	return pending
}

func (p *CapitalPool) Position(stakerID string) (models.StakePosition, error) {
	pos, ok := p.positions[stakerID]
	if !ok {
		return models.StakePosition{}, models.NewNotFoundError("no stake position for %s", stakerID)
	}
	return *pos, nil
}

func (p *CapitalPool) LockedFor(policyID uuid.UUID) int64 {
	return p.locks[policyID]
}

func (p *CapitalPool) State() models.PoolState {
	var utilization int64
	if p.totalStaked > 0 {
		utilization = p.lockedTotal * models.BpsScale / p.totalStaked
	}
	return models.PoolState{
		TotalStaked:       p.totalStaked,
		TotalShares:       p.totalShares,
		LockedTotal:       p.lockedTotal,
		UtilizationBps:    utilization,
		MaxUtilizationBps: p.maxUtilizationBps,
	}
}

// SetMaxUtilization updates the cap; the new cap applies to future locks
// only, existing locks are never force-released.
func (p *CapitalPool) SetMaxUtilization(bps int64) error {
	if bps <= 0 || bps > models.BpsScale {
		return models.NewValidationError("utilization cap %d bps out of range (0, 10000]", bps)
	}
	p.maxUtilizationBps = bps
	return nil
}

// CheckInvariants verifies the conservation properties of the share ledger
// and the locked-capital table. Used by tests and the admin inspection
// endpoint.
func (p *CapitalPool) CheckInvariants() error {
	var shareSum, lockSum int64
	for _, pos := range p.positions {
		shareSum += pos.Shares
	}
	if shareSum != p.totalShares {
		return fmt.Errorf("share ledger mismatch: positions sum %d, totalShares %d", shareSum, p.totalShares)
	}
	for _, amt := range p.locks {
		lockSum += amt
	}
	if lockSum != p.lockedTotal {
		return fmt.Errorf("lock table mismatch: locks sum %d, lockedTotal %d", lockSum, p.lockedTotal)
	}
	if p.lockedTotal*models.BpsScale > p.totalStaked*p.maxUtilizationBps {
		return fmt.Errorf("utilization %d over cap %d bps", p.lockedTotal, p.maxUtilizationBps)
	}
	return nil
}
