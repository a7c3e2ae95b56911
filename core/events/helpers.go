package events

import (
	"math/big"

	"stakevault/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(b [20]byte) string {
	return crypto.MustNewAddress(crypto.StakePrefix, b[:]).String()
}

func zeroAddress(b [20]byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
