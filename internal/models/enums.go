package models

type PolicyStatus string

const (
	PolicyPending   PolicyStatus = "pending"
	PolicyActive    PolicyStatus = "active"
	PolicyTriggered PolicyStatus = "triggered"
	PolicyCancelled PolicyStatus = "cancelled"
	PolicyExpired   PolicyStatus = "expired"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutCalculated PayoutStatus = "calculated"
	PayoutApproved   PayoutStatus = "approved"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

type CropType string

const (
	CropRice   CropType = "rice"
	CropCoffee CropType = "coffee"
	CropMaize  CropType = "maize"
	CropCotton CropType = "cotton"
)

type CoverageType string

const (
	CoverageDrought CoverageType = "drought"
	CoverageFlood   CoverageType = "flood"
	CoverageHeat    CoverageType = "heat"
)

type Role string

const (
	RoleOperator      Role = "operator"
	RoleOracle        Role = "oracle"
	RoleApprover      Role = "approver"
	RoleProcessor     Role = "processor"
	RoleAdministrator Role = "administrator"
	RoleStaker        Role = "staker"
)

// UnlockReason labels why locked capital was released.
type UnlockReason string

const (
	UnlockPayout       UnlockReason = "payout"
	UnlockCancellation UnlockReason = "cancellation"
	UnlockExpiration   UnlockReason = "expiration"
)
