package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poolscope/internal/model"
)

// SwapCall describes a swap through the router along a single path.
// Tokens run from input to output and must be wrapped addresses.
type SwapCall struct {
	Tokens     []common.Address
	Fees       []model.FeeAmount
	ExactInput bool
	// Amount is amountIn for exact input, amountOut for exact output.
	Amount *big.Int
	// Limit is amountOutMinimum for exact input, amountInMaximum for exact output.
	Limit     *big.Int
	Recipient common.Address
	Deadline  *big.Int
	NativeIn  bool
	NativeOut bool
}

type exactInputParams struct {
	Path             []byte
	Recipient        common.Address
	Deadline         *big.Int
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

type exactOutputParams struct {
	Path            []byte
	Recipient       common.Address
	Deadline        *big.Int
	AmountOut       *big.Int
	AmountInMaximum *big.Int
}

// Encode builds the router transaction. A native output swaps to the router and unwraps to the recipient.
// A native input pays with value, and exact-output swaps refund the unspent part.
func (s SwapCall) Encode(router common.Address) (model.Transaction, error) {
	if s.Amount == nil || s.Limit == nil || s.Deadline == nil {
		return model.Transaction{}, fmt.Errorf("swap call needs amount, limit and deadline")
	}
	parsed, err := swapRouterABI.get()
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parse swap router abi: %w", err)
	}

	swapRecipient := s.Recipient
	if s.NativeOut {
		swapRecipient = router
	}

	var swap []byte
	if s.ExactInput {
		path, err := EncodePath(s.Tokens, s.Fees)
		if err != nil {
			return model.Transaction{}, err
		}
		swap, err = parsed.Pack("exactInput", exactInputParams{
			Path:             path,
			Recipient:        swapRecipient,
			Deadline:         s.Deadline,
			AmountIn:         s.Amount,
			AmountOutMinimum: s.Limit,
		})
		if err != nil {
			return model.Transaction{}, fmt.Errorf("pack exactInput: %w", err)
		}
	} else {
		path, err := EncodeReversePath(s.Tokens, s.Fees)
		if err != nil {
			return model.Transaction{}, err
		}
		swap, err = parsed.Pack("exactOutput", exactOutputParams{
			Path:            path,
			Recipient:       swapRecipient,
			Deadline:        s.Deadline,
			AmountOut:       s.Amount,
			AmountInMaximum: s.Limit,
		})
		if err != nil {
			return model.Transaction{}, fmt.Errorf("pack exactOutput: %w", err)
		}
	}

	calls := [][]byte{swap}
	if s.NativeOut {
		minimum := s.Limit
		if !s.ExactInput {
			minimum = s.Amount
		}
		unwrap, err := parsed.Pack("unwrapWETH9", minimum, s.Recipient)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("pack unwrapWETH9: %w", err)
		}
		calls = append(calls, unwrap)
	}
	if s.NativeIn && !s.ExactInput {
		refund, err := parsed.Pack("refundETH")
		if err != nil {
			return model.Transaction{}, fmt.Errorf("pack refundETH: %w", err)
		}
		calls = append(calls, refund)
	}

	value := new(big.Int)
	if s.NativeIn {
		if s.ExactInput {
			value.Set(s.Amount)
		} else {
			value.Set(s.Limit)
		}
	}

	if len(calls) == 1 {
		return model.NewTransaction(router, calls[0], value), nil
	}
	data, err := parsed.Pack("multicall", calls)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("pack multicall: %w", err)
	}
	return model.NewTransaction(router, data, value), nil
}

// WrapCall deposits amount of native currency into the wrapped token.
func WrapCall(wrapped common.Address, amount *big.Int) (model.Transaction, error) {
	parsed, err := weth9ABI.get()
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parse weth9 abi: %w", err)
	}
	data, err := parsed.Pack("deposit")
	if err != nil {
		return model.Transaction{}, fmt.Errorf("pack deposit: %w", err)
	}
	return model.NewTransaction(wrapped, data, amount), nil
}

// UnwrapCall withdraws amount of the wrapped token back to native currency.
func UnwrapCall(wrapped common.Address, amount *big.Int) (model.Transaction, error) {
	parsed, err := weth9ABI.get()
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parse weth9 abi: %w", err)
	}
	data, err := parsed.Pack("withdraw", amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("pack withdraw: %w", err)
	}
	return model.NewTransaction(wrapped, data, nil), nil
}
