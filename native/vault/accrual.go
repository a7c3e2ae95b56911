package vault

import (
	"fmt"
	"math/big"
)

// Reward is height-weighted: every staked token earns the flat rate for each
// height unit it stays in custody, counted from the later of its own staking
// height and the account's last settlement. Accrual state is per account
// rather than a global per-token index, so settlement costs O(n) in the
// account's staked count; that count is bounded by what a single account can
// realistically deposit.

// settle folds the reward accrued since the account's last settlement into
// its cumulative balance and advances the settlement anchor to the current
// height. Calling it twice at the same height adds zero the second time:
// after the first call every start height equals the current height.
func (e *Engine) settle(acct *AccountState, height uint64, rate *big.Int) error {
	pending, err := e.accruedSince(acct, height, rate)
	if err != nil {
		return err
	}
	if acct.CumulativeReward == nil {
		acct.CumulativeReward = big.NewInt(0)
	}
	acct.CumulativeReward = new(big.Int).Add(acct.CumulativeReward, pending)
	acct.LastSettledHeight = height
	return nil
}

func (e *Engine) accruedSince(acct *AccountState, height uint64, rate *big.Int) (*big.Int, error) {
	pending := big.NewInt(0)
	if rate == nil || rate.Sign() == 0 {
		return pending, nil
	}
	for _, id := range acct.StakedTokens {
		record, err := e.state.GetToken(id)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, fmt.Errorf("%w: token %s", errMissingRecord, id)
		}
		start := record.StakedAtHeight
		if acct.LastSettledHeight > start {
			start = acct.LastSettledHeight
		}
		if height <= start {
			continue
		}
		span := new(big.Int).SetUint64(height - start)
		pending.Add(pending, span.Mul(span, rate))
	}
	return pending, nil
}

// PendingReward previews the payout a claim would produce right now: the
// already-settled balance plus everything accrued since, computed without
// mutating any state.
func (e *Engine) PendingReward(addr [20]byte) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if e.clock == nil {
		return nil, errNilClock
	}
	acct, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return big.NewInt(0), nil
	}
	params, err := e.currentParams()
	if err != nil {
		return nil, err
	}
	pending, err := e.accruedSince(acct, e.clock.Height(), params.RewardRatePerTokenPerHeight)
	if err != nil {
		return nil, err
	}
	if acct.CumulativeReward != nil {
		pending.Add(pending, acct.CumulativeReward)
	}
	return pending, nil
}
