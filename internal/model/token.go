package model

import (
	"bytes"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeSymbol is the placeholder accepted in place of an address for the chain's native currency.
const NativeSymbol = "ETH"

// Token identifies an ERC20 token (or the native currency) on a chain.
type Token struct {
	ChainID  uint64         `json:"chainId"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol,omitempty"`
	Native   bool           `json:"native,omitempty"`
}

// Equal compares chain, address and nativeness.
func (t Token) Equal(other Token) bool {
	return t.ChainID == other.ChainID && t.Address == other.Address && t.Native == other.Native
}

// SortsBefore reports whether t orders before other by address.
func (t Token) SortsBefore(other Token) bool {
	return bytes.Compare(t.Address.Bytes(), other.Address.Bytes()) < 0
}

// Wrapped returns the wrapped counterpart when t is native.
func (t Token) Wrapped(wrapped Token) Token {
	if t.Native {
		return wrapped
	}
	return t
}

// DisplaySymbol falls back to the hex address when no symbol is known.
func (t Token) DisplaySymbol() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

// AddressKey returns the lower-cased hex address used for comparisons and cache keys.
func AddressKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// SortTokens returns the pair ordered ascending by address.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}
