package vault

import "errors"

var (
	// ErrNotController is returned when the caller is not the recorded
	// controller of the token, including when no record exists at all.
	ErrNotController = errors.New("vault: caller is not the token controller")
	// ErrWithdrawalNotRequested is returned when a withdrawal is attempted
	// with no pending request on the token.
	ErrWithdrawalNotRequested = errors.New("vault: withdrawal not requested")
	// ErrWaitingPeriodNotElapsed is returned while the cooldown is still
	// running. The boundary is strict: elapsed time equal to the waiting
	// period is not enough.
	ErrWaitingPeriodNotElapsed = errors.New("vault: waiting period not elapsed")
	// ErrUnauthorized guards the administrator-only parameter updates.
	ErrUnauthorized = errors.New("vault: unauthorized")
	// ErrReentrantCall is returned when a custody-transfer hook re-enters a
	// mutating ledger operation while one is already in progress.
	ErrReentrantCall = errors.New("vault: reentrant call")

	errNilState      = errors.New("vault: state not configured")
	errNilRegistry   = errors.New("vault: custody registry not configured")
	errNilIssuer     = errors.New("vault: reward issuer not configured")
	errNilClock      = errors.New("vault: clock not configured")
	errMissingRecord = errors.New("vault: staked set references missing token record")
)
