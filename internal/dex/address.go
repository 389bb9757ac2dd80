package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"poolscope/internal/model"
)

// ComputePoolAddress derives a pool address with CREATE2 from the factory, the pool init code hash and
// abi.encode(token0, token1, fee). The pair is sorted first.
func ComputePoolAddress(factory common.Address, initCodeHash common.Hash, tokenA, tokenB common.Address, fee model.FeeAmount) common.Address {
	token0, token1 := model.SortTokens(tokenA, tokenB)
	encoded := make([]byte, 0, 3*common.HashLength)
	encoded = append(encoded, common.LeftPadBytes(token0.Bytes(), common.HashLength)...)
	encoded = append(encoded, common.LeftPadBytes(token1.Bytes(), common.HashLength)...)
	encoded = append(encoded, common.LeftPadBytes(new(big.Int).SetUint64(uint64(fee)).Bytes(), common.HashLength)...)
	salt := crypto.Keccak256Hash(encoded)
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}
