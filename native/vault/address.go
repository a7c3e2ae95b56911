package vault

import "crypto/sha256"

// ModuleAddress derives the address tokens are parked under while in
// custody. No private key exists for it; only the engine can move tokens
// out again.
func ModuleAddress() [20]byte {
	sum := sha256.Sum256([]byte("stakevault/module/vault"))
	var addr [20]byte
	copy(addr[:], sum[:20])
	return addr
}
