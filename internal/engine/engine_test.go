package engine

import (
	"context"
	"testing"
	"time"

	"underwriting-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	operator  = Caller{ID: "op-1", Role: models.RoleOperator}
	oracle    = Caller{ID: "orc-1", Role: models.RoleOracle}
	approver  = Caller{ID: "appr-1", Role: models.RoleApprover}
	processor = Caller{ID: "proc-1", Role: models.RoleProcessor}
	admin     = Caller{ID: "adm-1", Role: models.RoleAdministrator}
	staker    = Caller{ID: "alice", Role: models.RoleStaker}
)

// flatRateConfig prices every policy at a flat 5% with no platform fee,
// so scenario arithmetic stays exact.
func flatRateConfig() Config {
	cfg := DefaultConfig()
	cfg.Treasury.PlatformFeeBps = 0
	cfg.Treasury.MinRatioBps = 0
	cfg.Treasury.TargetRatioBps = 0
	cfg.Treasury.RebalanceThresholdBps = models.BpsScale
	cfg.Lifecycle.BaseRates = map[models.CropType]map[models.CoverageType]int64{
		models.CropRice: {models.CoverageDrought: 500},
	}
	cfg.Lifecycle.DurationWeightBps = 0
	cfg.Lifecycle.ThresholdWeightBps = 0
	cfg.Lifecycle.ClaimHistoryWeightBps = 0
	return cfg
}

func newTestEngine(t *testing.T, oracleStub DamageOracle) *Engine {
	t.Helper()
	e, err := New(flatRateConfig(), oracleStub, NopEmitter{})
	require.NoError(t, err)
	return e
}

type stubOracle struct{ damageBps int64 }

func (s stubOracle) DamagePercentageBps(ctx context.Context, policyID uuid.UUID) (int64, error) {
	return s.damageBps, nil
}

func engineRequest(now time.Time) models.CreatePolicyRequest {
	return models.CreatePolicyRequest{
		OwnerID:        "farmer-1",
		ExternalRef:    "REF-1",
		CropType:       models.CropRice,
		CoverageType:   models.CoverageDrought,
		CoverageAmount: 1000,
		StartTime:      now.Add(24 * time.Hour),
		EndTime:        now.Add(31 * 24 * time.Hour),
	}
}

// TestPolicyLifecycleEndToEnd covers the premium/lock/expire flow:
// coverage 1000 at 5% books a 50 premium, locks 1000, and expiration
// releases the lock.
func TestPolicyLifecycleEndToEnd(t *testing.T) {
	e := newTestEngine(t, stubOracle{})
	now := time.Now()
	e.SetClock(fixedClock(now))

	_, err := e.Stake(staker, 2000)
	require.NoError(t, err)

	policy, err := e.CreatePolicy(operator, engineRequest(now))
	require.NoError(t, err)
	assert.Equal(t, int64(50), policy.Premium)

	require.NoError(t, e.ActivatePolicy(operator, policy.ID))
	assert.Equal(t, int64(50), e.TreasuryState().TotalBalance)
	assert.Equal(t, int64(1000), e.PoolState().LockedTotal)

	e.SetClock(fixedClock(policy.EndTime.Add(time.Hour)))
	require.NoError(t, e.ExpirePolicy(operator, policy.ID))

	got, err := e.GetPolicy(policy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyExpired, got.Status)
	assert.Zero(t, e.PoolState().LockedTotal)
	assert.NoError(t, e.CheckInvariants())
}

// TestPayoutPipelineEndToEnd drives trigger -> initiate -> calculate ->
// approve -> process -> confirm through the role-gated facade.
func TestPayoutPipelineEndToEnd(t *testing.T) {
	e := newTestEngine(t, stubOracle{damageBps: 6000})
	now := time.Now()
	e.SetClock(fixedClock(now))

	_, err := e.Stake(staker, 2000)
	require.NoError(t, err)

	policy, err := e.CreatePolicy(operator, engineRequest(now))
	require.NoError(t, err)
	require.NoError(t, e.ActivatePolicy(operator, policy.ID))

	e.SetClock(fixedClock(now.Add(48 * time.Hour)))
	require.NoError(t, e.TriggerPolicy(oracle, policy.ID))

	payout, err := e.InitiatePayout(processor, policy.ID)
	require.NoError(t, err)

	require.NoError(t, e.CalculatePayout(context.Background(), processor, payout.ID))
	got, _ := e.GetPayout(payout.ID)
	assert.Equal(t, int64(600), got.Amount)

	require.NoError(t, e.ApprovePayout(approver, payout.ID))

	// The treasury only holds the 50 premium; reserves cover the rest.
	require.NoError(t, e.FundReserves(admin, 1000))
	require.NoError(t, e.ProcessPayout(processor, payout.ID))

	assert.Zero(t, e.PoolState().LockedTotal, "capital released on process")

	require.NoError(t, e.ConfirmPayout(processor, payout.ID, "ref123"))
	total, count := e.PayoutTotals()
	assert.Equal(t, int64(600), total)
	assert.Equal(t, int64(1), count)
	assert.NoError(t, e.CheckInvariants())
}

func TestRBAC_WrongRoleRejected(t *testing.T) {
	e := newTestEngine(t, stubOracle{})
	now := time.Now()
	e.SetClock(fixedClock(now))

	_, err := e.CreatePolicy(processor, engineRequest(now))
	assert.True(t, models.IsKind(err, models.ErrAuthorization))

	err = e.TriggerPolicy(operator, uuid.New())
	assert.True(t, models.IsKind(err, models.ErrAuthorization))

	err = e.ApprovePayout(processor, uuid.New())
	assert.True(t, models.IsKind(err, models.ErrAuthorization))

	_, err = e.Stake(operator, 100)
	assert.True(t, models.IsKind(err, models.ErrAuthorization))

	err = e.FundReserves(operator, 100)
	assert.True(t, models.IsKind(err, models.ErrAuthorization))
}

func TestRBAC_AllowedTable(t *testing.T) {
	assert.True(t, Allowed(models.RoleOperator, OpCreatePolicy))
	assert.True(t, Allowed(models.RoleOracle, OpTriggerPolicy))
	assert.True(t, Allowed(models.RoleApprover, OpApprovePayout))
	assert.True(t, Allowed(models.RoleProcessor, OpProcessPayout))
	assert.True(t, Allowed(models.RoleAdministrator, OpPause))
	assert.True(t, Allowed(models.RoleAdministrator, OpCreatePolicy), "admin covers operator duties")

	assert.False(t, Allowed(models.RoleOracle, OpApprovePayout))
	assert.False(t, Allowed(models.RoleApprover, OpProcessPayout))
	assert.False(t, Allowed(models.RoleStaker, OpDistributeRewards))
	assert.False(t, Allowed(models.Role("ghost"), OpStake))
}

func TestPause_BlocksMutationsLeavesReads(t *testing.T) {
	e := newTestEngine(t, stubOracle{})
	now := time.Now()
	e.SetClock(fixedClock(now))

	_, err := e.Stake(staker, 1000)
	require.NoError(t, err)

	err = e.Pause(operator)
	assert.True(t, models.IsKind(err, models.ErrAuthorization), "only administrators pause")
	require.NoError(t, e.Pause(admin))
	assert.True(t, e.Paused())

	_, err = e.Stake(staker, 100)
	assert.True(t, models.IsKind(err, models.ErrState))
	_, err = e.CreatePolicy(operator, engineRequest(now))
	assert.True(t, models.IsKind(err, models.ErrState))
	err = e.FundReserves(admin, 100)
	assert.True(t, models.IsKind(err, models.ErrState))

	// Reads stay available while paused.
	assert.Equal(t, int64(1000), e.PoolState().TotalStaked)
	_ = e.TreasuryState()

	require.NoError(t, e.Unpause(admin))
	_, err = e.Stake(staker, 100)
	assert.NoError(t, err)
}

func TestReentrancyGuard(t *testing.T) {
	var g reentrancyGuard
	require.NoError(t, g.enter(OpStake))

	err := g.enter(OpProcessPayout)
	assert.True(t, models.IsKind(err, models.ErrState), "nested entry rejected while in flight")

	g.exit()
	assert.NoError(t, g.enter(OpProcessPayout))
}

func TestCancelPolicy_OwnerWithoutRole(t *testing.T) {
	e := newTestEngine(t, stubOracle{})
	now := time.Now()
	e.SetClock(fixedClock(now))

	policy, err := e.CreatePolicy(operator, engineRequest(now))
	require.NoError(t, err)

	// The owner cancels their own pending policy with no special role.
	owner := Caller{ID: "farmer-1", Role: models.RoleStaker}
	require.NoError(t, e.CancelPolicy(owner, policy.ID))

	got, _ := e.GetPolicy(policy.ID)
	assert.Equal(t, models.PolicyCancelled, got.Status)
}

func TestUpdateParameters(t *testing.T) {
	e := newTestEngine(t, stubOracle{})

	fee := int64(1500)
	util := int64(7000)
	require.NoError(t, e.UpdateParameters(admin, models.UpdateParametersRequest{
		PlatformFeeBps:    &fee,
		MaxUtilizationBps: &util,
	}))
	assert.Equal(t, int64(7000), e.PoolState().MaxUtilizationBps)

	bad := int64(9000)
	err := e.UpdateParameters(admin, models.UpdateParametersRequest{PlatformFeeBps: &bad})
	assert.True(t, models.IsKind(err, models.ErrValidation))

	err = e.UpdateParameters(operator, models.UpdateParametersRequest{})
	assert.True(t, models.IsKind(err, models.ErrAuthorization))
}

// TestConservationAcrossMixedWorkload runs a small randomized-ish
// workload and asserts the conservation invariants at the end.
func TestConservationAcrossMixedWorkload(t *testing.T) {
	e := newTestEngine(t, stubOracle{damageBps: 5000})
	now := time.Now()
	e.SetClock(fixedClock(now))

	_, err := e.Stake(staker, 10_000)
	require.NoError(t, err)
	_, err = e.Stake(Caller{ID: "bob", Role: models.RoleStaker}, 5_000)
	require.NoError(t, err)

	req := engineRequest(now)
	var policies []*models.Policy
	for i, ref := range []string{"W-1", "W-2", "W-3"} {
		r := req
		r.ExternalRef = ref
		r.OwnerID = "farmer-" + ref
		r.CoverageAmount = int64(1000 * (i + 1))
		p, err := e.CreatePolicy(operator, r)
		require.NoError(t, err)
		require.NoError(t, e.ActivatePolicy(operator, p.ID))
		policies = append(policies, p)
	}
	require.NoError(t, e.DistributeRewards(admin, 300))
	require.NoError(t, e.FundReserves(admin, 2000))

	e.SetClock(fixedClock(now.Add(48 * time.Hour)))
	require.NoError(t, e.TriggerPolicy(oracle, policies[0].ID))
	payout, err := e.InitiatePayout(processor, policies[0].ID)
	require.NoError(t, err)
	require.NoError(t, e.CalculatePayout(context.Background(), processor, payout.ID))
	require.NoError(t, e.ApprovePayout(approver, payout.ID))
	require.NoError(t, e.ProcessPayout(processor, payout.ID))
	require.NoError(t, e.ConfirmPayout(processor, payout.ID, "settle-1"))

	require.NoError(t, e.CancelPolicy(admin, policies[1].ID))

	e.SetClock(fixedClock(req.EndTime.Add(time.Hour)))
	result, err := e.BatchExpirePolicies(operator, []uuid.UUID{policies[2].ID, policies[1].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount, "cancelled policy no longer qualifies")
	assert.Equal(t, 1, result.FailureCount)

	assert.Zero(t, e.PoolState().LockedTotal)
	assert.NoError(t, e.CheckInvariants())
}
