package events

import (
	"math/big"
	"strconv"

	"stakevault/core/types"
)

const (
	// TypeVaultStaked captures a token entering vault custody.
	TypeVaultStaked = "vault.staked"
	// TypeVaultWithdrawalRequested captures the start (or restart) of the
	// withdrawal cooldown for a staked token.
	TypeVaultWithdrawalRequested = "vault.withdrawalRequested"
	// TypeVaultUnstaked captures a token leaving vault custody.
	TypeVaultUnstaked = "vault.unstaked"
	// TypeVaultRewardClaimed is emitted when accrued reward is paid out.
	TypeVaultRewardClaimed = "vault.rewardClaimed"
	// TypeVaultRewardRateUpdated records an administrative rate change.
	TypeVaultRewardRateUpdated = "vault.rewardRateUpdated"
	// TypeVaultWaitingPeriodUpdated records an administrative cooldown change.
	TypeVaultWaitingPeriodUpdated = "vault.waitingPeriodUpdated"
)

// VaultStaked captures a successful deposit of a token into the vault.
type VaultStaked struct {
	Account [20]byte
	TokenID types.TokenID
	Height  uint64
}

// EventType satisfies the Event interface.
func (VaultStaked) EventType() string { return TypeVaultStaked }

// Event converts the structured payload into a broadcastable event.
func (e VaultStaked) Event() *types.Event {
	return &types.Event{Type: TypeVaultStaked, Attributes: map[string]string{
		"addr":    formatAddress(e.Account),
		"tokenId": e.TokenID.String(),
		"height":  strconv.FormatUint(e.Height, 10),
	}}
}

// VaultWithdrawalRequested captures the cooldown timestamp stamped onto a
// staked token.
type VaultWithdrawalRequested struct {
	Account     [20]byte
	TokenID     types.TokenID
	RequestedAt uint64
}

// EventType satisfies the Event interface.
func (VaultWithdrawalRequested) EventType() string { return TypeVaultWithdrawalRequested }

// Event converts the structured payload into a broadcastable event.
func (e VaultWithdrawalRequested) Event() *types.Event {
	return &types.Event{Type: TypeVaultWithdrawalRequested, Attributes: map[string]string{
		"addr":        formatAddress(e.Account),
		"tokenId":     e.TokenID.String(),
		"requestedAt": strconv.FormatUint(e.RequestedAt, 10),
	}}
}

// VaultUnstaked captures a completed withdrawal returning custody to the
// controller.
type VaultUnstaked struct {
	Account [20]byte
	TokenID types.TokenID
	Height  uint64
}

// EventType satisfies the Event interface.
func (VaultUnstaked) EventType() string { return TypeVaultUnstaked }

// Event converts the structured payload into a broadcastable event.
func (e VaultUnstaked) Event() *types.Event {
	return &types.Event{Type: TypeVaultUnstaked, Attributes: map[string]string{
		"addr":    formatAddress(e.Account),
		"tokenId": e.TokenID.String(),
		"height":  strconv.FormatUint(e.Height, 10),
	}}
}

// VaultRewardClaimed captures the reward payout for an account.
type VaultRewardClaimed struct {
	Account [20]byte
	Amount  *big.Int
	Height  uint64
}

// EventType satisfies the Event interface.
func (VaultRewardClaimed) EventType() string { return TypeVaultRewardClaimed }

// Event converts the structured payload into a broadcastable event.
func (e VaultRewardClaimed) Event() *types.Event {
	return &types.Event{Type: TypeVaultRewardClaimed, Attributes: map[string]string{
		"addr":   formatAddress(e.Account),
		"amount": formatAmount(e.Amount),
		"height": strconv.FormatUint(e.Height, 10),
	}}
}

// VaultRewardRateUpdated records a change to the per-token per-height reward
// rate.
type VaultRewardRateUpdated struct {
	Caller  [20]byte
	OldRate *big.Int
	NewRate *big.Int
}

// EventType satisfies the Event interface.
func (VaultRewardRateUpdated) EventType() string { return TypeVaultRewardRateUpdated }

// Event converts the structured payload into a broadcastable event.
func (e VaultRewardRateUpdated) Event() *types.Event {
	attrs := map[string]string{
		"oldRate": formatAmount(e.OldRate),
		"newRate": formatAmount(e.NewRate),
	}
	if !zeroAddress(e.Caller) {
		attrs["caller"] = formatAddress(e.Caller)
	}
	return &types.Event{Type: TypeVaultRewardRateUpdated, Attributes: attrs}
}

// VaultWaitingPeriodUpdated records a change to the withdrawal cooldown.
type VaultWaitingPeriodUpdated struct {
	Caller    [20]byte
	OldPeriod uint64
	NewPeriod uint64
}

// EventType satisfies the Event interface.
func (VaultWaitingPeriodUpdated) EventType() string { return TypeVaultWaitingPeriodUpdated }

// Event converts the structured payload into a broadcastable event.
func (e VaultWaitingPeriodUpdated) Event() *types.Event {
	attrs := map[string]string{
		"oldPeriod": strconv.FormatUint(e.OldPeriod, 10),
		"newPeriod": strconv.FormatUint(e.NewPeriod, 10),
	}
	if !zeroAddress(e.Caller) {
		attrs["caller"] = formatAddress(e.Caller)
	}
	return &types.Event{Type: TypeVaultWaitingPeriodUpdated, Attributes: attrs}
}
