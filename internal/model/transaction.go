package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is unsigned calldata a caller submits to execute a quote.
type Transaction struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value"`
}

// NewTransaction copies value, treating nil as zero.
func NewTransaction(to common.Address, data []byte, value *big.Int) Transaction {
	if value == nil {
		value = new(big.Int)
	}
	return Transaction{To: to, Data: data, Value: (*hexutil.Big)(new(big.Int).Set(value))}
}

// ValueInt returns the value as a big.Int, zero when unset.
func (t Transaction) ValueInt() *big.Int {
	if t.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(t.Value.ToInt())
}
