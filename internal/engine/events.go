package engine

import (
	"time"
)

// EventType labels one kind of state transition.
type EventType string

const (
	EventStaked             EventType = "pool.staked"
	EventUnstaked           EventType = "pool.unstaked"
	EventCapitalLocked      EventType = "pool.capital_locked"
	EventCapitalUnlocked    EventType = "pool.capital_unlocked"
	EventRewardsDistributed EventType = "pool.rewards_distributed"
	EventRewardsClaimed     EventType = "pool.rewards_claimed"
	EventPremiumReceived    EventType = "treasury.premium_received"
	EventPayoutExecuted     EventType = "treasury.payout_executed"
	EventReservesFunded     EventType = "treasury.reserves_funded"
	EventReservesWithdrawn  EventType = "treasury.reserves_withdrawn"
	EventRebalanced         EventType = "treasury.rebalanced"
	EventPolicyStatus       EventType = "policy.status_changed"
	EventPayoutStatus       EventType = "payout.status_changed"
	EventPaused             EventType = "engine.paused"
	EventUnpaused           EventType = "engine.unpaused"
)

// Event is a structured record of one state transition. Emission is
// advisory: a failing emitter never fails the operation that produced it.
type Event struct {
	Type     EventType `json:"type"`
	EntityID string    `json:"entity_id"`
	NewState string    `json:"new_state,omitempty"`
	Amount   int64     `json:"amount,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	At       time.Time `json:"at"`
}

// Emitter receives every transition record.
type Emitter interface {
	Emit(event Event)
}

// NopEmitter discards events; used when no publisher is wired.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}

func newEvent(t EventType, entityID, newState string, amount int64, actor string) Event {
	return Event{
		Type:     t,
		EntityID: entityID,
		NewState: newState,
		Amount:   amount,
		Actor:    actor,
		At:       time.Now().UTC(),
	}
}
