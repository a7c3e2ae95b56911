package rewardtoken

import (
	"errors"
	"math/big"

	"stakevault/core/events"
)

var (
	// ErrInvalidAmount rejects nil or non-positive issuance amounts.
	ErrInvalidAmount = errors.New("rewardtoken: amount must be positive")

	errNilState = errors.New("rewardtoken: state not configured")
)

type ledgerState interface {
	GetBalance(addr [20]byte) (*big.Int, error)
	PutBalance(addr [20]byte, balance *big.Int) error
}

// Ledger is the mint-only fungible reward balance book. Issue always
// succeeds for a positive amount; no emission cap is enforced here.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
}

// NewLedger creates a reward ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Issue mints amount onto the account's payable balance.
func (l *Ledger) Issue(account [20]byte, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.state.GetBalance(account)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	updated := new(big.Int).Add(balance, amount)
	if err := l.state.PutBalance(account, updated); err != nil {
		return err
	}
	if l.emitter != nil {
		l.emitter.Emit(events.RewardIssued{Account: account, Amount: amount, NewBalance: updated})
	}
	return nil
}

// BalanceOf returns the account's payable balance.
func (l *Ledger) BalanceOf(account [20]byte) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	balance, err := l.state.GetBalance(account)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}
