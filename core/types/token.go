package types

import "strconv"

// TokenID uniquely identifies an asset tracked by the custody registry and,
// while staked, by the vault ledger.
type TokenID uint64

// String renders the identifier in decimal, the canonical external form.
func (id TokenID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseTokenID decodes the canonical decimal form of a token identifier.
func ParseTokenID(s string) (TokenID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TokenID(v), nil
}
