package events

import (
	"math/big"

	"stakevault/core/types"
)

// TypeRewardIssued is emitted when the reward issuer mints payout balance.
const TypeRewardIssued = "reward.issued"

// RewardIssued captures a reward balance mint for an account.
type RewardIssued struct {
	Account    [20]byte
	Amount     *big.Int
	NewBalance *big.Int
}

// EventType satisfies the Event interface.
func (RewardIssued) EventType() string { return TypeRewardIssued }

// Event converts the structured payload into a broadcastable event.
func (e RewardIssued) Event() *types.Event {
	return &types.Event{Type: TypeRewardIssued, Attributes: map[string]string{
		"addr":       formatAddress(e.Account),
		"amount":     formatAmount(e.Amount),
		"newBalance": formatAmount(e.NewBalance),
	}}
}
