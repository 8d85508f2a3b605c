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

// ============================================================================
// TEST FAKES
// ============================================================================

type fakePolicies struct {
	policies map[uuid.UUID]models.Policy
}

func newFakePolicies() *fakePolicies {
	return &fakePolicies{policies: make(map[uuid.UUID]models.Policy)}
}

func (f *fakePolicies) Get(policyID uuid.UUID) (models.Policy, error) {
	p, ok := f.policies[policyID]
	if !ok {
		return models.Policy{}, models.NewNotFoundError("policy %s not found", policyID)
	}
	return p, nil
}

func (f *fakePolicies) addTriggered(coverage, thresholdBps int64) uuid.UUID {
	id := uuid.New()
	f.policies[id] = models.Policy{
		ID:              id,
		OwnerID:         "farmer-1",
		CoverageAmount:  coverage,
		DamageThreshold: thresholdBps,
		Status:          models.PolicyTriggered,
	}
	return id
}

type fakeOracle struct {
	damageBps int64
	err       error
	calls     int
}

func (f *fakeOracle) DamagePercentageBps(ctx context.Context, policyID uuid.UUID) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.damageBps, nil
}

type fakeDisburser struct {
	fail      bool
	disbursed int64
}

func (f *fakeDisburser) ExecutePayout(payoutID uuid.UUID, recipient string, amount int64) error {
	if f.fail {
		return models.NewResourceError("reserve ratio breach")
	}
	f.disbursed += amount
	return nil
}

type fakeReleaser struct {
	fail     bool
	released map[uuid.UUID]int64
}

func newFakeReleaser() *fakeReleaser {
	return &fakeReleaser{released: make(map[uuid.UUID]int64)}
}

func (f *fakeReleaser) Unlock(policyID uuid.UUID, amount int64, reason models.UnlockReason) error {
	if f.fail {
		return models.NewNotFoundError("no locked capital")
	}
	f.released[policyID] += amount
	return nil
}

type payoutFixture struct {
	workflow *PayoutWorkflow
	policies *fakePolicies
	oracle   *fakeOracle
	treasury *fakeDisburser
	pool     *fakeReleaser
}

func newPayoutFixture(t *testing.T) *payoutFixture {
	t.Helper()
	f := &payoutFixture{
		policies: newFakePolicies(),
		oracle:   &fakeOracle{damageBps: 6000},
		treasury: &fakeDisburser{},
		pool:     newFakeReleaser(),
	}
	f.workflow = NewPayoutWorkflow(f.policies, f.oracle, f.treasury, f.pool, NopEmitter{})
	return f
}

// advance drives a payout to the requested stage.
func (f *payoutFixture) advance(t *testing.T, policyID uuid.UUID, target models.PayoutStatus) *models.Payout {
	t.Helper()
	payout, err := f.workflow.Initiate(policyID, "proc-1")
	require.NoError(t, err)
	if target == models.PayoutPending {
		return payout
	}
	require.NoError(t, f.workflow.Calculate(context.Background(), payout.ID, "proc-1"))
	if target == models.PayoutCalculated {
		return payout
	}
	require.NoError(t, f.workflow.Approve(payout.ID, "appr-1"))
	if target == models.PayoutApproved {
		return payout
	}
	require.NoError(t, f.workflow.Process(payout.ID, "proc-1"))
	return payout
}

// ============================================================================
// STAGE TRANSITIONS
// ============================================================================

func TestInitiate_RequiresTriggeredPolicy(t *testing.T) {
	f := newPayoutFixture(t)
	id := uuid.New()
	f.policies.policies[id] = models.Policy{ID: id, Status: models.PolicyActive, CoverageAmount: 1000}

	_, err := f.workflow.Initiate(id, "proc-1")
	assert.True(t, models.IsKind(err, models.ErrState))

	_, err = f.workflow.Initiate(uuid.New(), "proc-1")
	assert.True(t, models.IsKind(err, models.ErrNotFound))
}

func TestInitiate_OneLivePayoutPerPolicy(t *testing.T) {
	f := newPayoutFixture(t)
	policyID := f.policies.addTriggered(1000, 0)

	_, err := f.workflow.Initiate(policyID, "proc-1")
	require.NoError(t, err)

	_, err = f.workflow.Initiate(policyID, "proc-1")
	assert.True(t, models.IsKind(err, models.ErrState))
}

func TestCalculate_DerivesBoundedAmount(t *testing.T) {
	f := newPayoutFixture(t)
	f.oracle.damageBps = 6000
	policyID := f.policies.addTriggered(1000, 0)

	payout := f.advance(t, policyID, models.PayoutCalculated)

	got, err := f.workflow.Get(payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutCalculated, got.Status)
	assert.Equal(t, int64(6000), got.DamagePercentageBps)
	assert.Equal(t, int64(600), got.Amount)
}

func TestCalculate_OracleFailureLeavesPending(t *testing.T) {
	f := newPayoutFixture(t)
	f.oracle.err = models.NewResourceError("upstream timeout")
	policyID := f.policies.addTriggered(1000, 0)

	payout, err := f.workflow.Initiate(policyID, "proc-1")
	require.NoError(t, err)

	err = f.workflow.Calculate(context.Background(), payout.ID, "proc-1")
	assert.True(t, models.IsKind(err, models.ErrResource))

	got, _ := f.workflow.Get(payout.ID)
	assert.Equal(t, models.PayoutPending, got.Status, "retryable: the stage did not advance")

	// An explicit re-invocation succeeds once the oracle recovers.
	f.oracle.err = nil
	require.NoError(t, f.workflow.Calculate(context.Background(), payout.ID, "proc-1"))
	got, _ = f.workflow.Get(payout.ID)
	assert.Equal(t, models.PayoutCalculated, got.Status)
}

func TestCalculate_SecondCallIsStateError(t *testing.T) {
	f := newPayoutFixture(t)
	policyID := f.policies.addTriggered(1000, 0)
	payout := f.advance(t, policyID, models.PayoutCalculated)

	err := f.workflow.Calculate(context.Background(), payout.ID, "proc-1")
	assert.True(t, models.IsKind(err, models.ErrState))
}

func TestCalculate_BelowThresholdZeroesAmount(t *testing.T) {
	f := newPayoutFixture(t)
	f.oracle.damageBps = 2000
	policyID := f.policies.addTriggered(1000, 3000)

	payout := f.advance(t, policyID, models.PayoutCalculated)
	got, _ := f.workflow.Get(payout.ID)
	assert.Zero(t, got.Amount, "damage under the policy threshold pays nothing")

	err := f.workflow.Approve(payout.ID, "appr-1")
	assert.True(t, models.IsKind(err, models.ErrValidation), "zero amount cannot be approved")
}

func TestCalculate_RejectsOutOfRangeOracleValue(t *testing.T) {
	f := newPayoutFixture(t)
	f.oracle.damageBps = 10500
	policyID := f.policies.addTriggered(1000, 0)

	payout, err := f.workflow.Initiate(policyID, "proc-1")
	require.NoError(t, err)
	err = f.workflow.Calculate(context.Background(), payout.ID, "proc-1")
	assert.True(t, models.IsKind(err, models.ErrValidation))
}

func TestProcess_SeparationOfDuties(t *testing.T) {
	f := newPayoutFixture(t)
	policyID := f.policies.addTriggered(1000, 0)
	payout := f.advance(t, policyID, models.PayoutApproved)

	err := f.workflow.Process(payout.ID, "appr-1")
	assert.True(t, models.IsKind(err, models.ErrAuthorization), "approver may not process their own approval")

	// An anonymous principal cannot slip past the duty check either.
	err = f.workflow.Process(payout.ID, "")
	assert.True(t, models.IsKind(err, models.ErrValidation))

	require.NoError(t, f.workflow.Process(payout.ID, "proc-2"))
}

func TestProcess_TreasuryFailureMarksFailed(t *testing.T) {
	f := newPayoutFixture(t)
	f.treasury.fail = true
	policyID := f.policies.addTriggered(1000, 0)
	payout := f.advance(t, policyID, models.PayoutApproved)

	err := f.workflow.Process(payout.ID, "proc-1")
	assert.True(t, models.IsKind(err, models.ErrResource))

	got, _ := f.workflow.Get(payout.ID)
	assert.Equal(t, models.PayoutFailed, got.Status)
	assert.NotEmpty(t, got.FailureReason)
	assert.Empty(t, f.pool.released, "no capital release after a failed disbursement")

	// A failed payout frees the policy for a fresh initiation.
	_, err = f.workflow.Initiate(policyID, "proc-1")
	assert.NoError(t, err)
}

func TestProcess_CapitalReleaseFailureIsSoft(t *testing.T) {
	f := newPayoutFixture(t)
	f.pool.fail = true
	policyID := f.policies.addTriggered(1000, 0)
	payout := f.advance(t, policyID, models.PayoutApproved)

	require.NoError(t, f.workflow.Process(payout.ID, "proc-1"),
		"an unlock failure after a successful disbursement is logged, not fatal")

	got, _ := f.workflow.Get(payout.ID)
	assert.Equal(t, models.PayoutProcessing, got.Status)
	assert.Equal(t, int64(600), f.treasury.disbursed)
}

func TestConfirm_CompletesOnceWithSettlementRef(t *testing.T) {
	f := newPayoutFixture(t)
	policyID := f.policies.addTriggered(1000, 0)
	payout := f.advance(t, policyID, models.PayoutProcessing)

	err := f.workflow.Confirm(payout.ID, "", "proc-1")
	assert.True(t, models.IsKind(err, models.ErrValidation))

	require.NoError(t, f.workflow.Confirm(payout.ID, "ref123", "proc-1"))
	got, _ := f.workflow.Get(payout.ID)
	assert.Equal(t, models.PayoutCompleted, got.Status)
	assert.Equal(t, "ref123", got.SettlementRef)
	require.NotNil(t, got.CompletedAt)

	total, count := f.workflow.Totals()
	assert.Equal(t, int64(600), total)
	assert.Equal(t, int64(1), count)

	// Idempotence: a second confirm must not double the totals.
	err = f.workflow.Confirm(payout.ID, "ref123", "proc-1")
	assert.True(t, models.IsKind(err, models.ErrState))
	total, count = f.workflow.Totals()
	assert.Equal(t, int64(600), total)
	assert.Equal(t, int64(1), count)
}

// TestFullPipeline walks a payout through every stage end to end.
func TestFullPipeline(t *testing.T) {
	f := newPayoutFixture(t)
	f.oracle.damageBps = 6000
	policyID := f.policies.addTriggered(1000, 0)

	payout, err := f.workflow.Initiate(policyID, "proc-1")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPending, payout.Status)

	require.NoError(t, f.workflow.Calculate(context.Background(), payout.ID, "proc-1"))
	require.NoError(t, f.workflow.Approve(payout.ID, "appr-1"))
	require.NoError(t, f.workflow.Process(payout.ID, "proc-1"))
	require.NoError(t, f.workflow.Confirm(payout.ID, "ref123", "proc-1"))

	got, _ := f.workflow.Get(payout.ID)
	assert.Equal(t, models.PayoutCompleted, got.Status)
	assert.Equal(t, int64(600), f.treasury.disbursed)
	assert.Equal(t, int64(1000), f.pool.released[policyID], "full coverage lock released")
}

// ============================================================================
// BATCHES
// ============================================================================

func TestCreateBatch_ApprovedOnly(t *testing.T) {
	f := newPayoutFixture(t)
	approved := f.advance(t, f.policies.addTriggered(1000, 0), models.PayoutApproved)
	pending := f.advance(t, f.policies.addTriggered(1000, 0), models.PayoutPending)

	_, err := f.workflow.CreateBatch([]uuid.UUID{approved.ID, pending.ID}, "proc-1")
	assert.True(t, models.IsKind(err, models.ErrState))

	batch, err := f.workflow.CreateBatch([]uuid.UUID{approved.ID}, "proc-1")
	require.NoError(t, err)
	assert.Len(t, batch.PayoutIDs, 1)
}

func TestProcessBatch_CountsRacedItemAsFailure(t *testing.T) {
	f := newPayoutFixture(t)

	ids := make([]uuid.UUID, 0, 5)
	var victim uuid.UUID
	for i := 0; i < 5; i++ {
		p := f.advance(t, f.policies.addTriggered(1000, 0), models.PayoutApproved)
		ids = append(ids, p.ID)
		if i == 2 {
			victim = p.ID
		}
	}

	batch, err := f.workflow.CreateBatch(ids, "proc-1")
	require.NoError(t, err)

	// One payout is independently processed (and so leaves Approved)
	// between batch creation and batch execution.
	require.NoError(t, f.workflow.Process(victim, "proc-2"))

	result, err := f.workflow.ProcessBatch(batch.ID, "proc-2")
	require.NoError(t, err)
	assert.Equal(t, 4, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Contains(t, result.FailedIDs, victim)

	// A batch processes once.
	_, err = f.workflow.ProcessBatch(batch.ID, "proc-2")
	assert.True(t, models.IsKind(err, models.ErrState))
}

func TestPayoutTimestampsAdvance(t *testing.T) {
	f := newPayoutFixture(t)
	base := time.Now()
	step := 0
	f.workflow.SetClock(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	})

	policyID := f.policies.addTriggered(1000, 0)
	payout := f.advance(t, policyID, models.PayoutProcessing)
	require.NoError(t, f.workflow.Confirm(payout.ID, "ref-1", "proc-2"))

	got, _ := f.workflow.Get(payout.ID)
	require.NotNil(t, got.CalculatedAt)
	require.NotNil(t, got.ApprovedAt)
	require.NotNil(t, got.ProcessedAt)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CalculatedAt.Before(*got.CompletedAt))
}
