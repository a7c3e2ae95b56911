package registry

import (
	"errors"
	"fmt"

	"stakevault/core/events"
	"stakevault/core/types"
)

var (
	// ErrTransferRejected is the failure surfaced for every transfer the
	// registry refuses; the wrapped detail names the cause.
	ErrTransferRejected = errors.New("registry: transfer rejected")
	// ErrTokenExists rejects minting an identifier already registered.
	ErrTokenExists = errors.New("registry: token already exists")

	errNilState = errors.New("registry: state not configured")
)

// TransferHook runs after a transfer has been committed. The vault uses it in
// tests to prove its re-entrancy guard; deployments can use it to notify
// receivers.
type TransferHook func(from, to [20]byte, tokenID types.TokenID)

type registryState interface {
	GetOwner(tokenID types.TokenID) ([20]byte, bool, error)
	PutOwner(tokenID types.TokenID, owner [20]byte) error
}

// Registry is the authoritative token ownership ledger. It owns the mapping
// from token id to controlling account and is the only component allowed to
// move a token between accounts.
type Registry struct {
	state   registryState
	emitter events.Emitter
	hook    TransferHook
}

// NewRegistry creates a registry with a no-op emitter.
func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

// SetState wires the registry to the external persistence layer.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetTransferHook installs a callback invoked after every committed transfer.
func (r *Registry) SetTransferHook(hook TransferHook) { r.hook = hook }

func (r *Registry) emit(evt events.Event) {
	if r.emitter != nil {
		r.emitter.Emit(evt)
	}
}

// Mint registers a fresh token under the given owner.
func (r *Registry) Mint(owner [20]byte, tokenID types.TokenID) error {
	if r.state == nil {
		return errNilState
	}
	if _, ok, err := r.state.GetOwner(tokenID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: token %s", ErrTokenExists, tokenID)
	}
	if err := r.state.PutOwner(tokenID, owner); err != nil {
		return err
	}
	r.emit(events.RegistryMinted{Owner: owner, TokenID: tokenID})
	return nil
}

// Owner returns the current controlling account of the token.
func (r *Registry) Owner(tokenID types.TokenID) ([20]byte, bool, error) {
	if r.state == nil {
		return [20]byte{}, false, errNilState
	}
	return r.state.GetOwner(tokenID)
}

// Transfer moves the token from one account to another. It fails with
// ErrTransferRejected when the token is unknown or from is not its current
// owner; the transfer hook runs only after the new owner is committed.
func (r *Registry) Transfer(from, to [20]byte, tokenID types.TokenID) error {
	if r.state == nil {
		return errNilState
	}
	owner, ok, err := r.state.GetOwner(tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown token %s", ErrTransferRejected, tokenID)
	}
	if owner != from {
		return fmt.Errorf("%w: sender does not control token %s", ErrTransferRejected, tokenID)
	}
	if err := r.state.PutOwner(tokenID, to); err != nil {
		return err
	}
	r.emit(events.RegistryTransferred{From: from, To: to, TokenID: tokenID})
	if r.hook != nil {
		r.hook(from, to, tokenID)
	}
	return nil
}
