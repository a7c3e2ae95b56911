package vault

import (
	"math/big"

	"stakevault/core/types"
)

// TokenRecord tracks custody of a single staked token. A record exists if and
// only if the vault currently holds the token; Controller is never the zero
// address while the record exists.
type TokenRecord struct {
	Controller            [20]byte
	StakedAtHeight        uint64
	WithdrawalRequestedAt uint64 // unix seconds, 0 = no pending request
}

// Clone returns a copy safe to hand out to readers.
func (r *TokenRecord) Clone() *TokenRecord {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// AccountState carries the per-account staking position and reward accrual
// anchors. It is created lazily on first stake and never destroyed; an empty
// staked set is a valid steady state.
type AccountState struct {
	Address           [20]byte
	StakedTokens      []types.TokenID
	LastSettledHeight uint64
	CumulativeReward  *big.Int

	// positions indexes StakedTokens for O(1) swap-removal. It is rebuilt
	// lazily after decoding from storage.
	positions map[types.TokenID]int
}

// NewAccountState returns an empty position for the given account.
func NewAccountState(addr [20]byte) *AccountState {
	return &AccountState{
		Address:          addr,
		CumulativeReward: big.NewInt(0),
	}
}

func (a *AccountState) ensurePositions() {
	if a.positions != nil {
		return
	}
	a.positions = make(map[types.TokenID]int, len(a.StakedTokens))
	for i, id := range a.StakedTokens {
		a.positions[id] = i
	}
}

// Contains reports whether the account currently stakes the given token.
func (a *AccountState) Contains(id types.TokenID) bool {
	a.ensurePositions()
	_, ok := a.positions[id]
	return ok
}

func (a *AccountState) addToken(id types.TokenID) {
	a.ensurePositions()
	if _, ok := a.positions[id]; ok {
		return
	}
	a.positions[id] = len(a.StakedTokens)
	a.StakedTokens = append(a.StakedTokens, id)
}

// removeToken drops the token by swapping it with the last element and
// truncating. The order of the remaining elements is not preserved and no
// caller may depend on it.
func (a *AccountState) removeToken(id types.TokenID) bool {
	a.ensurePositions()
	idx, ok := a.positions[id]
	if !ok {
		return false
	}
	last := len(a.StakedTokens) - 1
	moved := a.StakedTokens[last]
	a.StakedTokens[idx] = moved
	a.positions[moved] = idx
	a.StakedTokens = a.StakedTokens[:last]
	delete(a.positions, id)
	return true
}

// Clone returns a deep copy safe to hand out to readers.
func (a *AccountState) Clone() *AccountState {
	if a == nil {
		return nil
	}
	out := &AccountState{
		Address:           a.Address,
		LastSettledHeight: a.LastSettledHeight,
		CumulativeReward:  big.NewInt(0),
	}
	if a.CumulativeReward != nil {
		out.CumulativeReward = new(big.Int).Set(a.CumulativeReward)
	}
	if len(a.StakedTokens) > 0 {
		out.StakedTokens = append([]types.TokenID(nil), a.StakedTokens...)
	}
	return out
}
