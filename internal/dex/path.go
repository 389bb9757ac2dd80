package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"poolscope/internal/model"
)

const feeBytes = 3

// EncodePath packs token, fee, token, ... as the router and quoter expect.
// tokens must hold exactly one more entry than fees.
func EncodePath(tokens []common.Address, fees []model.FeeAmount) ([]byte, error) {
	if len(fees) == 0 || len(tokens) != len(fees)+1 {
		return nil, fmt.Errorf("path needs n+1 tokens for n fees, got %d tokens and %d fees", len(tokens), len(fees))
	}
	out := make([]byte, 0, len(tokens)*common.AddressLength+len(fees)*feeBytes)
	for i, fee := range fees {
		if !fee.Valid() {
			return nil, fmt.Errorf("%w: %d", model.ErrUnknownFee, fee)
		}
		out = append(out, tokens[i].Bytes()...)
		out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
	}
	out = append(out, tokens[len(tokens)-1].Bytes()...)
	return out, nil
}

// EncodeReversePath encodes the path from the last token back to the first, the order exact-output swaps use.
func EncodeReversePath(tokens []common.Address, fees []model.FeeAmount) ([]byte, error) {
	revTokens := make([]common.Address, len(tokens))
	for i, token := range tokens {
		revTokens[len(tokens)-1-i] = token
	}
	revFees := make([]model.FeeAmount, len(fees))
	for i, fee := range fees {
		revFees[len(fees)-1-i] = fee
	}
	return EncodePath(revTokens, revFees)
}

// DecodePath splits an encoded path back into tokens and fees.
func DecodePath(path []byte) ([]common.Address, []model.FeeAmount, error) {
	hop := common.AddressLength + feeBytes
	if len(path) < common.AddressLength+hop || (len(path)-common.AddressLength)%hop != 0 {
		return nil, nil, fmt.Errorf("invalid path length %d", len(path))
	}
	var (
		tokens []common.Address
		fees   []model.FeeAmount
	)
	for offset := 0; offset+common.AddressLength < len(path); offset += hop {
		tokens = append(tokens, common.BytesToAddress(path[offset:offset+common.AddressLength]))
		raw := path[offset+common.AddressLength : offset+hop]
		fees = append(fees, model.FeeAmount(uint32(raw[0])<<16|uint32(raw[1])<<8|uint32(raw[2])))
	}
	tokens = append(tokens, common.BytesToAddress(path[len(path)-common.AddressLength:]))
	return tokens, fees, nil
}
