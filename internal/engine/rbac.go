package engine

import "underwriting-service/internal/models"

// Operation names one role-gated entry point.
type Operation string

const (
	OpCreatePolicy      Operation = "policy.create"
	OpActivatePolicy    Operation = "policy.activate"
	OpTriggerPolicy     Operation = "policy.trigger"
	OpCancelPolicy      Operation = "policy.cancel"
	OpExpirePolicy      Operation = "policy.expire"
	OpInitiatePayout    Operation = "payout.initiate"
	OpCalculatePayout   Operation = "payout.calculate"
	OpApprovePayout     Operation = "payout.approve"
	OpProcessPayout     Operation = "payout.process"
	OpConfirmPayout     Operation = "payout.confirm"
	OpBatchPayouts      Operation = "payout.batch"
	OpStake             Operation = "pool.stake"
	OpUnstake           Operation = "pool.unstake"
	OpClaimRewards      Operation = "pool.claim_rewards"
	OpDistributeRewards Operation = "pool.distribute_rewards"
	OpFundReserves      Operation = "treasury.fund_reserves"
	OpWithdrawReserves  Operation = "treasury.withdraw_reserves"
	OpRebalance         Operation = "treasury.rebalance"
	OpPause             Operation = "engine.pause"
	OpUpdateParameters  Operation = "engine.update_parameters"
)

// roleGrants is the full capability table. Administrator additionally
// passes every check (break-glass), handled in Allowed.
var roleGrants = map[models.Role]map[Operation]bool{
	models.RoleOperator: {
		OpCreatePolicy:   true,
		OpActivatePolicy: true,
		OpCancelPolicy:   true,
		OpExpirePolicy:   true,
	},
	models.RoleOracle: {
		OpTriggerPolicy: true,
	},
	models.RoleApprover: {
		OpApprovePayout: true,
	},
	models.RoleProcessor: {
		OpInitiatePayout:  true,
		OpCalculatePayout: true,
		OpProcessPayout:   true,
		OpConfirmPayout:   true,
		OpBatchPayouts:    true,
	},
	models.RoleStaker: {
		OpStake:        true,
		OpUnstake:      true,
		OpClaimRewards: true,
	},
	models.RoleAdministrator: {
		OpDistributeRewards: true,
		OpFundReserves:      true,
		OpWithdrawReserves:  true,
		OpRebalance:         true,
		OpPause:             true,
		OpUpdateParameters:  true,
		OpCancelPolicy:      true,
	},
}

// Allowed is the pure capability check: (caller role, operation) -> allowed.
func Allowed(role models.Role, op Operation) bool {
	if role == models.RoleAdministrator {
		if grants, ok := roleGrants[models.RoleAdministrator]; ok && grants[op] {
			return true
		}
		// Administrators may also perform operator duties for recovery.
		return roleGrants[models.RoleOperator][op]
	}
	grants, ok := roleGrants[role]
	if !ok {
		return false
	}
	return grants[op]
}
