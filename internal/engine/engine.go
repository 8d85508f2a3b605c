package engine

import (
	"context"
	"sync"
	"time"

	"underwriting-service/internal/models"

	"github.com/google/uuid"
)

// Caller identifies the principal behind an operation.
type Caller struct {
	ID   string
	Role models.Role
}

type Config struct {
	MaxUtilizationBps int64
	Treasury          TreasuryConfig
	Lifecycle         LifecycleConfig
}

func DefaultConfig() Config {
	return Config{
		MaxUtilizationBps: 8000,
		Treasury: TreasuryConfig{
			PlatformFeeBps:        1000,
			MinRatioBps:           1000,
			TargetRatioBps:        2000,
			RebalanceThresholdBps: 500,
		},
		Lifecycle: DefaultLifecycleConfig(),
	}
}

// Engine is the single-writer facade over the pool, treasury, lifecycle
// manager and payout workflow. Every externally invoked operation takes
// the engine mutex and runs to completion before the next begins; no
// component state is reachable except through here.
type Engine struct {
	mu     sync.Mutex
	guard  reentrancyGuard
	paused bool

	pool      *CapitalPool
	treasury  *Treasury
	lifecycle *PolicyLifecycleManager
	payouts   *PayoutWorkflow
	emitter   Emitter
}

func New(cfg Config, oracle DamageOracle, emitter Emitter) (*Engine, error) {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	pool := NewCapitalPool(cfg.MaxUtilizationBps, emitter)
	treasury, err := NewTreasury(cfg.Treasury, emitter)
	if err != nil {
		return nil, err
	}
	lifecycle := NewPolicyLifecycleManager(cfg.Lifecycle, treasury, pool, emitter)
	payouts := NewPayoutWorkflow(lifecycle, oracle, treasury, pool, emitter)
	return &Engine{
		pool:      pool,
		treasury:  treasury,
		lifecycle: lifecycle,
		payouts:   payouts,
		emitter:   emitter,
	}, nil
}

// SetClock overrides the time source of the time-dependent components;
// tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.lifecycle.SetClock(now)
	e.payouts.SetClock(now)
}

func (e *Engine) authorize(caller Caller, op Operation) error {
	if !Allowed(caller.Role, op) {
		return models.NewAuthorizationError("role %s may not perform %s", caller.Role, op)
	}
	return nil
}

// gate runs the common preamble for a mutating operation: authorization,
// pause switch, and the reentrancy guard for value-moving entry points.
// The caller must already hold e.mu.
func (e *Engine) gate(caller Caller, op Operation) (func(), error) {
	if err := e.authorize(caller, op); err != nil {
		return nil, err
	}
	if e.paused {
		return nil, models.NewStateError("engine is paused, %s rejected", op)
	}
	if err := e.guard.enter(op); err != nil {
		return nil, err
	}
	return e.guard.exit, nil
}

// ---- capital pool ----

func (e *Engine) Stake(caller Caller, amount int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpStake)
	if err != nil {
		return 0, err
	}
	defer exit()
	return e.pool.Stake(caller.ID, amount)
}

func (e *Engine) Unstake(caller Caller, shares int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpUnstake)
	if err != nil {
		return 0, err
	}
	defer exit()
	return e.pool.Unstake(caller.ID, shares)
}

func (e *Engine) ClaimRewards(caller Caller) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpClaimRewards)
	if err != nil {
		return 0, err
	}
	defer exit()
	return e.pool.ClaimRewards(caller.ID)
}

func (e *Engine) DistributeRewards(caller Caller, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpDistributeRewards)
	if err != nil {
		return err
	}
	defer exit()
	return e.pool.DistributeRewards(amount)
}

func (e *Engine) PoolState() models.PoolState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.State()
}

func (e *Engine) Position(stakerID string) (models.StakePosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Position(stakerID)
}

func (e *Engine) PendingRewards(stakerID string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.PendingRewards(stakerID)
}

// ---- policy lifecycle ----

func (e *Engine) CreatePolicy(caller Caller, req models.CreatePolicyRequest) (*models.Policy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpCreatePolicy)
	if err != nil {
		return nil, err
	}
	defer exit()
	return e.lifecycle.Create(req)
}

func (e *Engine) ActivatePolicy(caller Caller, policyID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpActivatePolicy)
	if err != nil {
		return err
	}
	defer exit()
	return e.lifecycle.Activate(policyID)
}

func (e *Engine) TriggerPolicy(caller Caller, policyID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpTriggerPolicy)
	if err != nil {
		return err
	}
	defer exit()
	return e.lifecycle.Trigger(policyID)
}

// CancelPolicy is callable by the policy owner or any principal holding
// the cancel capability.
func (e *Engine) CancelPolicy(caller Caller, policyID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	isAdmin := Allowed(caller.Role, OpCancelPolicy)
	if e.paused {
		return models.NewStateError("engine is paused, %s rejected", OpCancelPolicy)
	}
	if err := e.guard.enter(OpCancelPolicy); err != nil {
		return err
	}
	defer e.guard.exit()
	return e.lifecycle.Cancel(policyID, caller.ID, isAdmin)
}

func (e *Engine) ExpirePolicy(caller Caller, policyID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpExpirePolicy)
	if err != nil {
		return err
	}
	defer exit()
	return e.lifecycle.Expire(policyID)
}

func (e *Engine) BatchExpirePolicies(caller Caller, policyIDs []uuid.UUID) (models.BatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpExpirePolicy)
	if err != nil {
		return models.BatchResult{}, err
	}
	defer exit()
	return e.lifecycle.BatchExpire(policyIDs), nil
}

func (e *Engine) GetPolicy(policyID uuid.UUID) (models.Policy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle.Get(policyID)
}

func (e *Engine) PoliciesByOwner(ownerID string) []models.Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle.ListByOwner(ownerID)
}

func (e *Engine) ExpirablePolicyIDs() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle.ExpirablePolicyIDs()
}

func (e *Engine) OwnerRecord(ownerID string) models.OwnerRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle.OwnerRecord(ownerID)
}

// ---- payout workflow ----

func (e *Engine) InitiatePayout(caller Caller, policyID uuid.UUID) (*models.Payout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpInitiatePayout)
	if err != nil {
		return nil, err
	}
	defer exit()
	return e.payouts.Initiate(policyID, caller.ID)
}

func (e *Engine) CalculatePayout(ctx context.Context, caller Caller, payoutID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpCalculatePayout)
	if err != nil {
		return err
	}
	defer exit()
	return e.payouts.Calculate(ctx, payoutID, caller.ID)
}

func (e *Engine) ApprovePayout(caller Caller, payoutID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpApprovePayout)
	if err != nil {
		return err
	}
	defer exit()
	return e.payouts.Approve(payoutID, caller.ID)
}

func (e *Engine) ProcessPayout(caller Caller, payoutID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpProcessPayout)
	if err != nil {
		return err
	}
	defer exit()
	return e.payouts.Process(payoutID, caller.ID)
}

func (e *Engine) ConfirmPayout(caller Caller, payoutID uuid.UUID, settlementRef string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpConfirmPayout)
	if err != nil {
		return err
	}
	defer exit()
	return e.payouts.Confirm(payoutID, settlementRef, caller.ID)
}

func (e *Engine) CreatePayoutBatch(caller Caller, payoutIDs []uuid.UUID) (*models.PayoutBatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpBatchPayouts)
	if err != nil {
		return nil, err
	}
	defer exit()
	return e.payouts.CreateBatch(payoutIDs, caller.ID)
}

func (e *Engine) ProcessPayoutBatch(caller Caller, batchID uuid.UUID) (models.BatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpBatchPayouts)
	if err != nil {
		return models.BatchResult{}, err
	}
	defer exit()
	return e.payouts.ProcessBatch(batchID, caller.ID)
}

func (e *Engine) GetPayout(payoutID uuid.UUID) (models.Payout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payouts.Get(payoutID)
}

func (e *Engine) PayoutsByPolicy(policyID uuid.UUID) []models.Payout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payouts.ListByPolicy(policyID)
}

func (e *Engine) PayoutTotals() (totalDisbursed int64, completedCount int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payouts.Totals()
}

// ---- treasury ----

func (e *Engine) FundReserves(caller Caller, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpFundReserves)
	if err != nil {
		return err
	}
	defer exit()
	return e.treasury.FundReserves(amount)
}

func (e *Engine) WithdrawReserves(caller Caller, amount int64, recipient string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpWithdrawReserves)
	if err != nil {
		return err
	}
	defer exit()
	return e.treasury.WithdrawReserves(amount, recipient)
}

func (e *Engine) WithdrawFees(caller Caller, amount int64, recipient string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpWithdrawReserves)
	if err != nil {
		return err
	}
	defer exit()
	return e.treasury.WithdrawFees(amount, recipient)
}

func (e *Engine) RebalanceTreasury(caller Caller) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exit, err := e.gate(caller, OpRebalance)
	if err != nil {
		return 0, err
	}
	defer exit()
	return e.treasury.Rebalance(), nil
}

func (e *Engine) TreasuryState() models.ReserveState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.treasury.State()
}

// ---- administration ----

// Pause blocks every mutating operation; reads stay available.
func (e *Engine) Pause(caller Caller) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(caller, OpPause); err != nil {
		return err
	}
	if e.paused {
		return models.NewStateError("engine is already paused")
	}
	e.paused = true
	e.emitter.Emit(newEvent(EventPaused, "engine", "paused", 0, caller.ID))
	return nil
}

func (e *Engine) Unpause(caller Caller) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(caller, OpPause); err != nil {
		return err
	}
	if !e.paused {
		return models.NewStateError("engine is not paused")
	}
	e.paused = false
	e.emitter.Emit(newEvent(EventUnpaused, "engine", "running", 0, caller.ID))
	return nil
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// UpdateParameters applies runtime parameter changes with validation; a
// nil field leaves the parameter untouched.
func (e *Engine) UpdateParameters(caller Caller, req models.UpdateParametersRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(caller, OpUpdateParameters); err != nil {
		return err
	}
	if req.PlatformFeeBps != nil {
		if err := e.treasury.SetPlatformFee(*req.PlatformFeeBps); err != nil {
			return err
		}
	}
	if req.MinReserveBps != nil || req.TargetReserveBps != nil {
		state := e.treasury.State()
		minBps, targetBps := state.MinRatioBps, state.TargetRatioBps
		if req.MinReserveBps != nil {
			minBps = *req.MinReserveBps
		}
		if req.TargetReserveBps != nil {
			targetBps = *req.TargetReserveBps
		}
		if err := e.treasury.SetReserveRatios(minBps, targetBps); err != nil {
			return err
		}
	}
	if req.MaxUtilizationBps != nil {
		if err := e.pool.SetMaxUtilization(*req.MaxUtilizationBps); err != nil {
			return err
		}
	}
	return nil
}

// CheckInvariants verifies the conservation properties of every component.
func (e *Engine) CheckInvariants() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.pool.CheckInvariants(); err != nil {
		return err
	}
	return e.treasury.CheckInvariants()
}
