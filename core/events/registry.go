package events

import (
	"stakevault/core/types"
)

const (
	// TypeRegistryMinted is emitted when a fresh token enters the registry.
	TypeRegistryMinted = "registry.minted"
	// TypeRegistryTransferred is emitted on every custody transfer.
	TypeRegistryTransferred = "registry.transferred"
)

// RegistryMinted captures the creation of a token in the custody registry.
type RegistryMinted struct {
	Owner   [20]byte
	TokenID types.TokenID
}

// EventType satisfies the Event interface.
func (RegistryMinted) EventType() string { return TypeRegistryMinted }

// Event converts the structured payload into a broadcastable event.
func (e RegistryMinted) Event() *types.Event {
	return &types.Event{Type: TypeRegistryMinted, Attributes: map[string]string{
		"owner":   formatAddress(e.Owner),
		"tokenId": e.TokenID.String(),
	}}
}

// RegistryTransferred captures a custody transfer between two accounts.
type RegistryTransferred struct {
	From    [20]byte
	To      [20]byte
	TokenID types.TokenID
}

// EventType satisfies the Event interface.
func (RegistryTransferred) EventType() string { return TypeRegistryTransferred }

// Event converts the structured payload into a broadcastable event.
func (e RegistryTransferred) Event() *types.Event {
	return &types.Event{Type: TypeRegistryTransferred, Attributes: map[string]string{
		"from":    formatAddress(e.From),
		"to":      formatAddress(e.To),
		"tokenId": e.TokenID.String(),
	}}
}
