package vault

import (
	"errors"
	"math/big"
)

// DefaultWithdrawalWaitingPeriod defines the cooldown applied between a
// withdrawal request and the withdrawal itself.
const DefaultWithdrawalWaitingPeriod uint64 = 7 * 24 * 60 * 60 // 7 days

// DefaultRewardRate is the reward credited per staked token for every height
// the chain advances, in base units.
var DefaultRewardRate = big.NewInt(1)

// Params groups the administrator-controlled knobs read by the accrual math.
// A single flat rate is kept with no historical log: a rate update applies to
// any interval not yet settled at the time of the change.
type Params struct {
	RewardRatePerTokenPerHeight    *big.Int
	WithdrawalWaitingPeriodSeconds uint64
}

// DefaultParams returns the baseline configuration used when the state store
// carries no persisted parameters yet.
func DefaultParams() Params {
	return Params{
		RewardRatePerTokenPerHeight:    new(big.Int).Set(DefaultRewardRate),
		WithdrawalWaitingPeriodSeconds: DefaultWithdrawalWaitingPeriod,
	}
}

var errInvalidRewardRate = errors.New("vault: reward rate must be non-negative")

// Validate rejects parameter sets the accrual math cannot operate on.
func (p Params) Validate() error {
	if p.RewardRatePerTokenPerHeight == nil || p.RewardRatePerTokenPerHeight.Sign() < 0 {
		return errInvalidRewardRate
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate persisted parameters.
func (p Params) Clone() Params {
	out := p
	if p.RewardRatePerTokenPerHeight != nil {
		out.RewardRatePerTokenPerHeight = new(big.Int).Set(p.RewardRatePerTokenPerHeight)
	}
	return out
}
