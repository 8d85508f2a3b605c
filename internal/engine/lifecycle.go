package engine

import (
	"time"

	"underwriting-service/internal/models"

	"github.com/google/uuid"
)

// claimWindow is the trailing period for the per-owner claim counter.
const claimWindow = 365 * 24 * time.Hour

// premiumCollector is the treasury surface the lifecycle manager needs.
type premiumCollector interface {
	ReceivePremium(policyID uuid.UUID, payer string, amount int64) error
	ReversePremium(policyID uuid.UUID, payer string, amount int64) error
	RefundPremium(policyID uuid.UUID, recipient string, amount int64) error
}

// capitalLocker is the pool surface the lifecycle manager needs.
type capitalLocker interface {
	Lock(policyID uuid.UUID, amount int64) error
	Unlock(policyID uuid.UUID, amount int64, reason models.UnlockReason) error
}

type LifecycleConfig struct {
	MinCoverage       int64
	MaxCoverage       int64
	MaxActivePerOwner int
	MaxTrailingClaims int

	// CancelRefundBps is the fixed share of unused premium returned on
	// cancellation of an active policy.
	CancelRefundBps int64

	// Final-rate clip: the hard contract. Per-factor weights below are
	// tunable without moving these bounds.
	MinRateBps int64
	MaxRateBps int64

	BaseRates             map[models.CropType]map[models.CoverageType]int64
	DurationWeightBps     int64 // added per 30 days of coverage beyond the first
	ThresholdWeightBps    int64 // added per 1000 bps the damage threshold sits below 50%
	ClaimHistoryWeightBps int64 // added per trailing-12-month claim of the owner
}

func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		MinCoverage:       100,
		MaxCoverage:       100_000_000,
		MaxActivePerOwner: 5,
		MaxTrailingClaims: 3,
		CancelRefundBps:   8000,
		MinRateBps:        100,
		MaxRateBps:        2000,
		BaseRates: map[models.CropType]map[models.CoverageType]int64{
			models.CropRice:   {models.CoverageDrought: 500, models.CoverageFlood: 700, models.CoverageHeat: 400},
			models.CropCoffee: {models.CoverageDrought: 600, models.CoverageFlood: 500, models.CoverageHeat: 550},
			models.CropMaize:  {models.CoverageDrought: 550, models.CoverageFlood: 600, models.CoverageHeat: 450},
			models.CropCotton: {models.CoverageDrought: 450, models.CoverageFlood: 650, models.CoverageHeat: 500},
		},
		DurationWeightBps:     25,
		ThresholdWeightBps:    50,
		ClaimHistoryWeightBps: 150,
	}
}

// PolicyLifecycleManager owns the policy state machine and the per-owner
// eligibility counters. Transitions are monotonic: a policy never returns
// to a prior status.
type PolicyLifecycleManager struct {
	cfg      LifecycleConfig
	policies map[uuid.UUID]*models.Policy
	byRef    map[string]uuid.UUID
	owners   map[string]*models.OwnerRecord

	treasury premiumCollector
	pool     capitalLocker
	emitter  Emitter
	now      func() time.Time
}

func NewPolicyLifecycleManager(cfg LifecycleConfig, treasury premiumCollector, pool capitalLocker, emitter Emitter) *PolicyLifecycleManager {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &PolicyLifecycleManager{
		cfg:      cfg,
		policies: make(map[uuid.UUID]*models.Policy),
		byRef:    make(map[string]uuid.UUID),
		owners:   make(map[string]*models.OwnerRecord),
		treasury: treasury,
		pool:     pool,
		emitter:  emitter,
		now:      time.Now,
	}
}

// SetClock overrides the time source; tests only.
func (m *PolicyLifecycleManager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *PolicyLifecycleManager) owner(ownerID string) *models.OwnerRecord {
	rec, ok := m.owners[ownerID]
	if !ok {
		rec = &models.OwnerRecord{OwnerID: ownerID}
		m.owners[ownerID] = rec
	}
	return rec
}

// trailingClaims returns the owner's claim count, resetting it when the
// previous claim is older than the trailing window.
func (m *PolicyLifecycleManager) trailingClaims(rec *models.OwnerRecord) int {
	if rec.LastClaimAt != nil && m.now().Sub(*rec.LastClaimAt) > claimWindow {
		rec.TrailingClaims = 0
		rec.LastClaimAt = nil
	}
	return rec.TrailingClaims
}

// recordClaim funnels all claim-counter mutation through one place.
func (m *PolicyLifecycleManager) recordClaim(rec *models.OwnerRecord) {
	m.trailingClaims(rec)
	rec.TrailingClaims++
	at := m.now()
	rec.LastClaimAt = &at
}

// effectiveRateBps blends the base rate with the configured risk weights
// and clips the result to [MinRateBps, MaxRateBps].
func (m *PolicyLifecycleManager) effectiveRateBps(req models.CreatePolicyRequest, trailingClaims int) (int64, error) {
	byType, ok := m.cfg.BaseRates[req.CropType]
	if !ok {
		return 0, models.NewValidationError("unknown crop type %q", req.CropType)
	}
	rate, ok := byType[req.CoverageType]
	if !ok {
		return 0, models.NewValidationError("unknown coverage type %q", req.CoverageType)
	}

	months := int64(req.EndTime.Sub(req.StartTime) / (30 * 24 * time.Hour))
	if months > 0 {
		rate += (months - 1) * m.cfg.DurationWeightBps
	}
	if req.DamageThreshold < 5000 {
		rate += (5000 - req.DamageThreshold) / 1000 * m.cfg.ThresholdWeightBps
	}
	rate += int64(trailingClaims) * m.cfg.ClaimHistoryWeightBps

	if rate < m.cfg.MinRateBps {
		rate = m.cfg.MinRateBps
	}
	if rate > m.cfg.MaxRateBps {
		rate = m.cfg.MaxRateBps
	}
	return rate, nil
}

// Create validates the request, prices the premium and stores the policy
// in Pending.
func (m *PolicyLifecycleManager) Create(req models.CreatePolicyRequest) (*models.Policy, error) {
	if req.OwnerID == "" {
		return nil, models.NewValidationError("owner id is required")
	}
	if req.ExternalRef == "" {
		return nil, models.NewValidationError("external reference is required")
	}
	if req.CoverageAmount < m.cfg.MinCoverage || req.CoverageAmount > m.cfg.MaxCoverage {
		return nil, models.NewValidationError(
			"coverage %d outside bounds [%d, %d]", req.CoverageAmount, m.cfg.MinCoverage, m.cfg.MaxCoverage)
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, models.NewValidationError("coverage end must be after start")
	}
	if req.DamageThreshold < 0 || req.DamageThreshold > models.BpsScale {
		return nil, models.NewValidationError("damage threshold %d bps out of range", req.DamageThreshold)
	}
	if _, dup := m.byRef[req.ExternalRef]; dup {
		return nil, models.NewValidationError("duplicate external reference %q", req.ExternalRef)
	}

	rec := m.owner(req.OwnerID)
	if rec.ActivePolicies >= m.cfg.MaxActivePerOwner {
		return nil, models.NewResourceError(
			"owner %s has %d open policies, cap is %d", req.OwnerID, rec.ActivePolicies, m.cfg.MaxActivePerOwner)
	}
	if m.trailingClaims(rec) >= m.cfg.MaxTrailingClaims {
		return nil, models.NewResourceError(
			"owner %s has %d claims in the trailing year, cap is %d", req.OwnerID, rec.TrailingClaims, m.cfg.MaxTrailingClaims)
	}

	rate, err := m.effectiveRateBps(req, rec.TrailingClaims)
	if err != nil {
		return nil, err
	}
	premium := req.CoverageAmount * rate / models.BpsScale
	if premium <= 0 {
		return nil, models.NewValidationError("computed premium is zero for coverage %d", req.CoverageAmount)
	}

	policy := &models.Policy{
		ID:              uuid.New(),
		OwnerID:         req.OwnerID,
		ExternalRef:     req.ExternalRef,
		CropType:        req.CropType,
		CoverageType:    req.CoverageType,
		CoverageAmount:  req.CoverageAmount,
		Premium:         premium,
		PremiumRateBps:  rate,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Status:          models.PolicyPending,
		DamageThreshold: req.DamageThreshold,
		CreatedAt:       m.now(),
	}
	m.policies[policy.ID] = policy
	m.byRef[req.ExternalRef] = policy.ID
	rec.ActivePolicies++

	m.emitter.Emit(newEvent(EventPolicyStatus, policy.ID.String(), string(policy.Status), policy.CoverageAmount, req.OwnerID))
	return policy, nil
}

// Activate pulls the premium and locks coverage capital as one logical
// action: a lock failure reverses the premium intake before returning, so
// a failed activation has no net effect.
func (m *PolicyLifecycleManager) Activate(policyID uuid.UUID) error {
	policy, ok := m.policies[policyID]
	if !ok {
		return models.NewNotFoundError("policy %s not found", policyID)
	}
	if policy.Status != models.PolicyPending {
		return models.NewStateError("cannot activate policy in status %s", policy.Status)
	}
	if !m.now().Before(policy.StartTime) {
		return models.NewStateError("activation window closed for policy %s", policyID)
	}

	if err := m.treasury.ReceivePremium(policy.ID, policy.OwnerID, policy.Premium); err != nil {
		return err
	}
	if err := m.pool.Lock(policy.ID, policy.CoverageAmount); err != nil {
		if rerr := m.treasury.ReversePremium(policy.ID, policy.OwnerID, policy.Premium); rerr != nil {
			return models.NewResourceError(
				"activation lock failed (%v) and premium reversal failed (%v)", err, rerr)
		}
		return err
	}

	policy.Status = models.PolicyActive
	m.emitter.Emit(newEvent(EventPolicyStatus, policy.ID.String(), string(policy.Status), policy.Premium, policy.OwnerID))
	return nil
}

// Trigger advances an active policy once the external damage assessment
// fires, and counts the claim against the owner's trailing window.
func (m *PolicyLifecycleManager) Trigger(policyID uuid.UUID) error {
	policy, ok := m.policies[policyID]
	if !ok {
		return models.NewNotFoundError("policy %s not found", policyID)
	}
	if policy.Status != models.PolicyActive {
		return models.NewStateError("cannot trigger policy in status %s", policy.Status)
	}
	now := m.now()
	if now.Before(policy.StartTime) || now.After(policy.EndTime) {
		return models.NewStateError("policy %s is outside its coverage window", policyID)
	}

	policy.Status = models.PolicyTriggered
	at := now
	policy.TriggeredAt = &at

	rec := m.owner(policy.OwnerID)
	m.recordClaim(rec)
	rec.ActivePolicies--

	m.emitter.Emit(newEvent(EventPolicyStatus, policy.ID.String(), string(policy.Status), 0, policy.OwnerID))
	return nil
}

// Cancel closes a pending or active policy. An active cancellation refunds
// a fixed share of the unused premium and unlocks the coverage capital
// before the status flips.
func (m *PolicyLifecycleManager) Cancel(policyID uuid.UUID, caller string, isAdmin bool) error {
	policy, ok := m.policies[policyID]
	if !ok {
		return models.NewNotFoundError("policy %s not found", policyID)
	}
	if !isAdmin && caller != policy.OwnerID {
		return models.NewAuthorizationError("caller %s may not cancel policy %s", caller, policyID)
	}
	if policy.Status != models.PolicyPending && policy.Status != models.PolicyActive {
		return models.NewStateError("cannot cancel policy in status %s", policy.Status)
	}

	if policy.Status == models.PolicyActive {
		refund := m.proRataRefund(policy)
		if refund > 0 {
			if err := m.treasury.RefundPremium(policy.ID, policy.OwnerID, refund); err != nil {
				return err
			}
			policy.RefundedAmount = refund
		}
		if err := m.pool.Unlock(policy.ID, policy.CoverageAmount, models.UnlockCancellation); err != nil {
			return err
		}
	}

	policy.Status = models.PolicyCancelled
	at := m.now()
	policy.CancelledAt = &at
	m.owner(policy.OwnerID).ActivePolicies--

	m.emitter.Emit(newEvent(EventPolicyStatus, policy.ID.String(), string(policy.Status), policy.RefundedAmount, caller))
	return nil
}

// proRataRefund returns CancelRefundBps of the premium share covering the
// remaining coverage time.
func (m *PolicyLifecycleManager) proRataRefund(policy *models.Policy) int64 {
	now := m.now()
	if !now.Before(policy.EndTime) {
		return 0
	}
	total := policy.EndTime.Sub(policy.StartTime)
	remaining := policy.EndTime.Sub(now)
	if remaining > total {
		remaining = total
	}
	unused := policy.Premium * int64(remaining) / int64(total)
	return unused * m.cfg.CancelRefundBps / models.BpsScale
}

// Expire closes an active policy past its end time and releases capital.
func (m *PolicyLifecycleManager) Expire(policyID uuid.UUID) error {
	policy, ok := m.policies[policyID]
	if !ok {
		return models.NewNotFoundError("policy %s not found", policyID)
	}
	if policy.Status != models.PolicyActive {
		return models.NewStateError("cannot expire policy in status %s", policy.Status)
	}
	if !m.now().After(policy.EndTime) {
		return models.NewStateError("policy %s has not reached its end time", policyID)
	}

	if err := m.pool.Unlock(policy.ID, policy.CoverageAmount, models.UnlockExpiration); err != nil {
		return err
	}
	policy.Status = models.PolicyExpired
	m.owner(policy.OwnerID).ActivePolicies--

	m.emitter.Emit(newEvent(EventPolicyStatus, policy.ID.String(), string(policy.Status), 0, policy.OwnerID))
	return nil
}

// BatchExpire expires every listed policy that still qualifies, skipping
// the rest. A stale caller-side view never fails the batch.
func (m *PolicyLifecycleManager) BatchExpire(policyIDs []uuid.UUID) models.BatchResult {
	var result models.BatchResult
	for _, id := range policyIDs {
		if err := m.Expire(id); err != nil {
			result.FailureCount++
			result.FailedIDs = append(result.FailedIDs, id)
			continue
		}
		result.SuccessCount++
	}
	return result
}

func (m *PolicyLifecycleManager) Get(policyID uuid.UUID) (models.Policy, error) {
	policy, ok := m.policies[policyID]
	if !ok {
		return models.Policy{}, models.NewNotFoundError("policy %s not found", policyID)
	}
	return *policy, nil
}

func (m *PolicyLifecycleManager) ListByOwner(ownerID string) []models.Policy {
	var out []models.Policy
	for _, p := range m.policies {
		if p.OwnerID == ownerID {
			out = append(out, *p)
		}
	}
	return out
}

// ExpirablePolicyIDs lists active policies past their end time; feeds the
// expiration worker.
func (m *PolicyLifecycleManager) ExpirablePolicyIDs() []uuid.UUID {
	now := m.now()
	var out []uuid.UUID
	for id, p := range m.policies {
		if p.Status == models.PolicyActive && now.After(p.EndTime) {
			out = append(out, id)
		}
	}
	return out
}

func (m *PolicyLifecycleManager) OwnerRecord(ownerID string) models.OwnerRecord {
	rec := m.owner(ownerID)
	m.trailingClaims(rec)
	return *rec
}
