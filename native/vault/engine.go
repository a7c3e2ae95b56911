package vault

import (
	"fmt"
	"math/big"
	"sync/atomic"

	"stakevault/core/events"
	"stakevault/core/types"
)

// CustodyRegistry is the boundary to the authoritative token ownership
// ledger. Transfer fails when from is not the current owner of the token.
type CustodyRegistry interface {
	Transfer(from, to [20]byte, tokenID types.TokenID) error
}

// RewardIssuer mints payable reward balance for an account. No cap is
// enforced by the vault.
type RewardIssuer interface {
	Issue(account [20]byte, amount *big.Int) error
}

// atomicState is implemented by state managers that can stage the writes of a
// single operation and commit them as one unit. Reads issued while a batch is
// open observe the staged writes.
type atomicState interface {
	BeginBatch()
	CommitBatch() error
	DiscardBatch()
}

type engineState interface {
	GetToken(tokenID types.TokenID) (*TokenRecord, error)
	PutToken(tokenID types.TokenID, record *TokenRecord) error
	DeleteToken(tokenID types.TokenID) error
	GetAccount(addr [20]byte) (*AccountState, error)
	PutAccount(account *AccountState) error
	GetParams() (*Params, error)
	PutParams(params Params) error
	GetStakedTotal() (uint64, error)
	PutStakedTotal(total uint64) error
}

// Engine is the custody-and-accrual ledger. It records which account
// controls each staked token, runs the two-phase request→wait→withdraw state
// machine, and folds height-weighted reward into per-account balances.
//
// The canonical execution model is strictly serialized: the serving layer
// must not interleave mutating calls. On top of that the engine keeps an
// explicit in-progress flag so that external code reached through a custody
// transfer (the registry may invoke a receive hook) cannot re-enter a
// mutating operation; such calls fail with ErrReentrantCall. The guard spans
// the whole ledger, not a single token.
type Engine struct {
	state    engineState
	registry CustodyRegistry
	issuer   RewardIssuer
	clock    Clock
	emitter  events.Emitter

	vaultAddress [20]byte
	admin        [20]byte

	inProgress atomic.Bool
}

// NewEngine constructs a vault engine bound to the module custody address and
// the administrator account allowed to update parameters.
func NewEngine(vaultAddr, admin [20]byte) *Engine {
	return &Engine{
		vaultAddress: vaultAddr,
		admin:        admin,
		emitter:      events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry wires the custody registry collaborator.
func (e *Engine) SetRegistry(registry CustodyRegistry) { e.registry = registry }

// SetIssuer wires the reward issuer collaborator.
func (e *Engine) SetIssuer(issuer RewardIssuer) { e.issuer = issuer }

// SetClock wires the height/timestamp source.
func (e *Engine) SetClock(clock Clock) { e.clock = clock }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// VaultAddress returns the custody address tokens are parked under while
// staked.
func (e *Engine) VaultAddress() [20]byte { return e.vaultAddress }

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) begin() error {
	if !e.inProgress.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) end() { e.inProgress.Store(false) }

func (e *Engine) requireWired() error {
	switch {
	case e.state == nil:
		return errNilState
	case e.registry == nil:
		return errNilRegistry
	case e.issuer == nil:
		return errNilIssuer
	case e.clock == nil:
		return errNilClock
	}
	return nil
}

// runAtomic stages every state write of fn and commits them together, so a
// failure partway through leaves no partial state behind. State managers
// without batch support run fn directly.
func (e *Engine) runAtomic(fn func() error) error {
	st, ok := e.state.(atomicState)
	if !ok {
		return fn()
	}
	st.BeginBatch()
	if err := fn(); err != nil {
		st.DiscardBatch()
		return err
	}
	return st.CommitBatch()
}

// requireAdmin authorizes parameter updates. A zero admin address means no
// administrator was configured, which disables the update surface for every
// caller including the zero address itself.
func (e *Engine) requireAdmin(caller [20]byte) error {
	var unset [20]byte
	if e.admin == unset {
		return fmt.Errorf("%w: no administrator configured", ErrUnauthorized)
	}
	if caller != e.admin {
		return fmt.Errorf("%w: caller is not the administrator", ErrUnauthorized)
	}
	return nil
}

func (e *Engine) currentParams() (Params, error) {
	params, err := e.state.GetParams()
	if err != nil {
		return Params{}, err
	}
	if params == nil {
		return DefaultParams(), nil
	}
	return params.Clone(), nil
}

// Stake pulls custody of the token from account into the vault and opens the
// accrual record at the current height. The ownership precondition is
// enforced by the registry: its transfer fails when the account does not own
// the token or the token is already in custody, and that failure is surfaced
// verbatim with no partial state.
func (e *Engine) Stake(account [20]byte, tokenID types.TokenID) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := e.requireWired(); err != nil {
		return err
	}
	return e.runAtomic(func() error {
		height := e.clock.Height()
		if err := e.registry.Transfer(account, e.vaultAddress, tokenID); err != nil {
			return err
		}
		record := &TokenRecord{Controller: account, StakedAtHeight: height}
		if err := e.state.PutToken(tokenID, record); err != nil {
			return err
		}
		acct, err := e.state.GetAccount(account)
		if err != nil {
			return err
		}
		if acct == nil {
			acct = NewAccountState(account)
		}
		acct.addToken(tokenID)
		if err := e.state.PutAccount(acct); err != nil {
			return err
		}
		total, err := e.state.GetStakedTotal()
		if err != nil {
			return err
		}
		if err := e.state.PutStakedTotal(total + 1); err != nil {
			return err
		}
		e.emit(events.VaultStaked{Account: account, TokenID: tokenID, Height: height})
		return nil
	})
}

// RequestWithdrawal stamps the cooldown start on the token. Re-requesting
// simply restarts the clock; the previous stamp is overwritten.
func (e *Engine) RequestWithdrawal(account [20]byte, tokenID types.TokenID) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := e.requireWired(); err != nil {
		return err
	}
	record, err := e.state.GetToken(tokenID)
	if err != nil {
		return err
	}
	if record == nil || record.Controller != account {
		return fmt.Errorf("%w: token %s", ErrNotController, tokenID)
	}
	now := e.clock.Timestamp()
	record.WithdrawalRequestedAt = now
	if err := e.state.PutToken(tokenID, record); err != nil {
		return err
	}
	e.emit(events.VaultWithdrawalRequested{Account: account, TokenID: tokenID, RequestedAt: now})
	return nil
}

// Withdraw settles and pays the account's full accrued reward, releases the
// token from the staked set, and returns custody to the account. The
// withdrawing token still contributes to reward for the interval ending at
// the current height because settlement runs against the pre-removal set.
func (e *Engine) Withdraw(account [20]byte, tokenID types.TokenID) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := e.requireWired(); err != nil {
		return err
	}
	return e.runAtomic(func() error {
		record, err := e.state.GetToken(tokenID)
		if err != nil {
			return err
		}
		if record == nil || record.Controller != account {
			return fmt.Errorf("%w: token %s", ErrNotController, tokenID)
		}
		if record.WithdrawalRequestedAt == 0 {
			return fmt.Errorf("%w: token %s", ErrWithdrawalNotRequested, tokenID)
		}
		params, err := e.currentParams()
		if err != nil {
			return err
		}
		now := e.clock.Timestamp()
		elapsed := uint64(0)
		if now > record.WithdrawalRequestedAt {
			elapsed = now - record.WithdrawalRequestedAt
		}
		if elapsed <= params.WithdrawalWaitingPeriodSeconds {
			return fmt.Errorf("%w: token %s requested at %d, need more than %ds, elapsed %ds",
				ErrWaitingPeriodNotElapsed, tokenID, record.WithdrawalRequestedAt,
				params.WithdrawalWaitingPeriodSeconds, elapsed)
		}
		acct, err := e.state.GetAccount(account)
		if err != nil {
			return err
		}
		if acct == nil || !acct.Contains(tokenID) {
			return fmt.Errorf("%w: token %s", ErrNotController, tokenID)
		}
		height := e.clock.Height()
		if err := e.settle(acct, height, params.RewardRatePerTokenPerHeight); err != nil {
			return err
		}
		if err := e.payout(acct, height); err != nil {
			return err
		}
		acct.removeToken(tokenID)
		if err := e.state.PutAccount(acct); err != nil {
			return err
		}
		if err := e.state.DeleteToken(tokenID); err != nil {
			return err
		}
		total, err := e.state.GetStakedTotal()
		if err != nil {
			return err
		}
		if total > 0 {
			total--
		}
		if err := e.state.PutStakedTotal(total); err != nil {
			return err
		}
		if err := e.registry.Transfer(e.vaultAddress, account, tokenID); err != nil {
			return err
		}
		e.emit(events.VaultUnstaked{Account: account, TokenID: tokenID, Height: height})
		return nil
	})
}

// ClaimReward settles and pays out the full accrued reward for the named
// beneficiary. Anyone may trigger a claim on behalf of any account; the
// payout always goes to the beneficiary. A zero balance after settlement is
// a silent no-op.
func (e *Engine) ClaimReward(beneficiary [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := e.requireWired(); err != nil {
		return err
	}
	return e.runAtomic(func() error {
		acct, err := e.state.GetAccount(beneficiary)
		if err != nil {
			return err
		}
		if acct == nil {
			return nil
		}
		params, err := e.currentParams()
		if err != nil {
			return err
		}
		height := e.clock.Height()
		if err := e.settle(acct, height, params.RewardRatePerTokenPerHeight); err != nil {
			return err
		}
		if err := e.payout(acct, height); err != nil {
			return err
		}
		return e.state.PutAccount(acct)
	})
}

// payout zeroes the cumulative balance and mints it through the reward
// issuer. The balance is cleared before the issuer runs so the same reward
// can never be paid twice.
func (e *Engine) payout(acct *AccountState, height uint64) error {
	if acct.CumulativeReward == nil || acct.CumulativeReward.Sign() <= 0 {
		return nil
	}
	amount := acct.CumulativeReward
	acct.CumulativeReward = big.NewInt(0)
	if err := e.issuer.Issue(acct.Address, amount); err != nil {
		return err
	}
	e.emit(events.VaultRewardClaimed{Account: acct.Address, Amount: amount, Height: height})
	return nil
}

// SetRewardRate updates the flat accrual rate. The new rate applies to every
// interval not yet settled, including height ranges that predate the call;
// no historical rate log is kept.
func (e *Engine) SetRewardRate(caller [20]byte, newRate *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	params, err := e.currentParams()
	if err != nil {
		return err
	}
	old := params.RewardRatePerTokenPerHeight
	updated := params
	updated.RewardRatePerTokenPerHeight = newRate
	if err := updated.Validate(); err != nil {
		return err
	}
	updated.RewardRatePerTokenPerHeight = new(big.Int).Set(newRate)
	if err := e.state.PutParams(updated); err != nil {
		return err
	}
	e.emit(events.VaultRewardRateUpdated{Caller: caller, OldRate: old, NewRate: updated.RewardRatePerTokenPerHeight})
	return nil
}

// SetWithdrawalWaitingPeriod updates the cooldown applied to future (and
// already pending) withdrawal requests.
func (e *Engine) SetWithdrawalWaitingPeriod(caller [20]byte, seconds uint64) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	params, err := e.currentParams()
	if err != nil {
		return err
	}
	old := params.WithdrawalWaitingPeriodSeconds
	params.WithdrawalWaitingPeriodSeconds = seconds
	if err := e.state.PutParams(params); err != nil {
		return err
	}
	e.emit(events.VaultWaitingPeriodUpdated{Caller: caller, OldPeriod: old, NewPeriod: seconds})
	return nil
}

// --- read-only accessors ---

// Token returns a copy of the custody record for the token, if staked.
func (e *Engine) Token(tokenID types.TokenID) (*TokenRecord, error) {
	if e.state == nil {
		return nil, errNilState
	}
	record, err := e.state.GetToken(tokenID)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Account returns a copy of the accrual state for the address, or nil when
// the address has never staked.
func (e *Engine) Account(addr [20]byte) (*AccountState, error) {
	if e.state == nil {
		return nil, errNilState
	}
	acct, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return acct.Clone(), nil
}

// StakedTokens returns the token ids currently staked by the account. The
// order carries no meaning.
func (e *Engine) StakedTokens(addr [20]byte) ([]types.TokenID, error) {
	acct, err := e.Account(addr)
	if err != nil || acct == nil {
		return nil, err
	}
	return acct.StakedTokens, nil
}

// StakedTotal returns the global count of tokens currently in custody. The
// counter is observability only and feeds no reward math.
func (e *Engine) StakedTotal() (uint64, error) {
	if e.state == nil {
		return 0, errNilState
	}
	return e.state.GetStakedTotal()
}

// Params returns the parameters currently in force.
func (e *Engine) Params() (Params, error) {
	if e.state == nil {
		return Params{}, errNilState
	}
	return e.currentParams()
}
