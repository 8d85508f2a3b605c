package engine

import (
	"testing"

	"underwriting-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, capBps int64) *CapitalPool {
	t.Helper()
	return NewCapitalPool(capBps, NopEmitter{})
}

func TestStake_EmptyPoolMintsOneToOne(t *testing.T) {
	pool := newTestPool(t, 8000)

	shares, err := pool.Stake("alice", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), shares, "empty pool mints 1:1")

	state := pool.State()
	assert.Equal(t, int64(1000), state.TotalStaked)
	assert.Equal(t, int64(1000), state.TotalShares)
}

func TestStake_SecondStakerProportional(t *testing.T) {
	pool := newTestPool(t, 8000)

	_, err := pool.Stake("alice", 1000)
	require.NoError(t, err)

	shares, err := pool.Stake("bob", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), shares, "equal deposit at unchanged valuation mints equal shares")
	assert.NoError(t, pool.CheckInvariants())
}

func TestStake_RejectsInvalidInput(t *testing.T) {
	pool := newTestPool(t, 8000)

	_, err := pool.Stake("alice", 0)
	assert.True(t, models.IsKind(err, models.ErrValidation))

	_, err = pool.Stake("", 100)
	assert.True(t, models.IsKind(err, models.ErrValidation))
}

func TestUnstake_RoundTripReturnsPrincipal(t *testing.T) {
	pool := newTestPool(t, 8000)

	shares, err := pool.Stake("alice", 1000)
	require.NoError(t, err)

	amount, err := pool.Unstake("alice", shares)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amount)

	state := pool.State()
	assert.Zero(t, state.TotalStaked)
	assert.Zero(t, state.TotalShares)
}

func TestUnstake_RejectsWhenCapitalLocked(t *testing.T) {
	pool := newTestPool(t, 8000)
	_, err := pool.Stake("alice", 1000)
	require.NoError(t, err)

	require.NoError(t, pool.Lock(uuid.New(), 700))

	_, err = pool.Unstake("alice", 1000)
	assert.True(t, models.IsKind(err, models.ErrResource), "withdrawal above unlocked capital must fail")

	// 700 locked under an 80% cap needs at least 875 staked, so at most
	// 125 may leave the pool.
	_, err = pool.Unstake("alice", 300)
	assert.True(t, models.IsKind(err, models.ErrResource), "withdrawal must not push utilization over the cap")

	amount, err := pool.Unstake("alice", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), amount)
	assert.NoError(t, pool.CheckInvariants())
}

func TestUnstake_UnlockedRemainderStillCapBound(t *testing.T) {
	pool := newTestPool(t, 8000)
	_, err := pool.Stake("alice", 10000)
	require.NoError(t, err)
	require.NoError(t, pool.Lock(uuid.New(), 8000))

	// 2000 sits unlocked, but withdrawing it would leave the pool fully
	// utilized.
	_, err = pool.Unstake("alice", 2000)
	assert.True(t, models.IsKind(err, models.ErrResource))

	assert.NoError(t, pool.CheckInvariants())
	assert.Equal(t, int64(8000), pool.State().UtilizationBps)
}

func TestUnstake_RejectsExcessShares(t *testing.T) {
	pool := newTestPool(t, 8000)
	_, err := pool.Stake("alice", 1000)
	require.NoError(t, err)

	_, err = pool.Unstake("alice", 2000)
	assert.True(t, models.IsKind(err, models.ErrResource))

	_, err = pool.Unstake("ghost", 10)
	assert.True(t, models.IsKind(err, models.ErrNotFound))
}

func TestLock_UtilizationCapBoundary(t *testing.T) {
	pool := newTestPool(t, 8000)
	_, err := pool.Stake("alice", 10000)
	require.NoError(t, err)

	// 79% utilization.
	require.NoError(t, pool.Lock(uuid.New(), 7900))

	// Locking to 81% breaches the 80% cap.
	err = pool.Lock(uuid.New(), 200)
	assert.True(t, models.IsKind(err, models.ErrResource))

	// Locking to exactly 80% succeeds.
	require.NoError(t, pool.Lock(uuid.New(), 100))
	assert.Equal(t, int64(8000), pool.State().UtilizationBps)
	assert.NoError(t, pool.CheckInvariants())
}

func TestLock_OneRecordPerPolicy(t *testing.T) {
	pool := newTestPool(t, 8000)
	_, err := pool.Stake("alice", 10000)
	require.NoError(t, err)

	policyID := uuid.New()
	require.NoError(t, pool.Lock(policyID, 1000))

	err = pool.Lock(policyID, 500)
	assert.True(t, models.IsKind(err, models.ErrState), "no top-up: second lock for the same policy is an error")
	assert.Equal(t, int64(1000), pool.LockedFor(policyID))
}

func TestUnlock_RejectsOverUnlock(t *testing.T) {
	pool := newTestPool(t, 8000)
	_, err := pool.Stake("alice", 10000)
	require.NoError(t, err)

	policyID := uuid.New()
	require.NoError(t, pool.Lock(policyID, 1000))

	err = pool.Unlock(policyID, 1500, models.UnlockExpiration)
	assert.True(t, models.IsKind(err, models.ErrResource))

	require.NoError(t, pool.Unlock(policyID, 1000, models.UnlockExpiration))
	assert.Zero(t, pool.State().LockedTotal)

	// A second release finds no record.
	err = pool.Unlock(policyID, 1000, models.UnlockExpiration)
	assert.True(t, models.IsKind(err, models.ErrNotFound))
}

func TestRewards_AccumulatorProRata(t *testing.T) {
	pool := newTestPool(t, 8000)
	_, err := pool.Stake("alice", 1000)
	require.NoError(t, err)
	_, err = pool.Stake("bob", 3000)
	require.NoError(t, err)

	require.NoError(t, pool.DistributeRewards(400))

	assert.Equal(t, int64(100), pool.PendingRewards("alice"))
	assert.Equal(t, int64(300), pool.PendingRewards("bob"))

	amount, err := pool.ClaimRewards("bob")
	require.NoError(t, err)
	assert.Equal(t, int64(300), amount)
	assert.Zero(t, pool.PendingRewards("bob"))

	// Alice's entitlement is untouched by Bob's claim.
	assert.Equal(t, int64(100), pool.PendingRewards("alice"))
}

func TestRewards_CheckpointAdvancesOnStake(t *testing.T) {
	pool := newTestPool(t, 8000)
	_, err := pool.Stake("alice", 1000)
	require.NoError(t, err)

	require.NoError(t, pool.DistributeRewards(100))

	// Doubling the stake after the distribution must not double the
	// already-earned reward.
	_, err = pool.Stake("alice", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pool.PendingRewards("alice"))

	require.NoError(t, pool.DistributeRewards(200))
	assert.Equal(t, int64(300), pool.PendingRewards("alice"))
}

func TestRewards_ClaimLifecycle(t *testing.T) {
	pool := newTestPool(t, 8000)
	_, err := pool.Stake("alice", 1000)
	require.NoError(t, err)

	require.NoError(t, pool.DistributeRewards(500))

	_, err = pool.ClaimRewards("ghost")
	assert.True(t, models.IsKind(err, models.ErrNotFound))

	_, err = pool.ClaimRewards("alice")
	require.NoError(t, err)
	_, err = pool.ClaimRewards("alice")
	assert.True(t, models.IsKind(err, models.ErrResource), "nothing left to claim")
}

func TestRewards_EmptyPoolRejected(t *testing.T) {
	pool := newTestPool(t, 8000)
	err := pool.DistributeRewards(100)
	assert.True(t, models.IsKind(err, models.ErrState))
}

func TestPool_InvariantsAcrossMixedSequence(t *testing.T) {
	pool := newTestPool(t, 8000)

	_, err := pool.Stake("alice", 5000)
	require.NoError(t, err)
	_, err = pool.Stake("bob", 3000)
	require.NoError(t, err)

	p1, p2 := uuid.New(), uuid.New()
	require.NoError(t, pool.Lock(p1, 2000))
	require.NoError(t, pool.Lock(p2, 1500))
	require.NoError(t, pool.DistributeRewards(800))
	require.NoError(t, pool.Unlock(p1, 2000, models.UnlockPayout))

	_, err = pool.Unstake("bob", 1000)
	require.NoError(t, err)

	assert.NoError(t, pool.CheckInvariants())

	state := pool.State()
	assert.Equal(t, int64(1500), state.LockedTotal)
	assert.LessOrEqual(t, state.LockedTotal*models.BpsScale, state.TotalStaked*state.MaxUtilizationBps)
}
