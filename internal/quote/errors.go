package quote

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error code returned to quote callers.
type Code string

const (
	CodeInvalidSwapper      Code = "INVALID_SWAPPER"
	CodeInvalidChainID      Code = "INVALID_CHAIN_ID"
	CodeInvalidTokenPair    Code = "INVALID_TOKEN_PAIR"
	CodeInvalidAmount       Code = "INVALID_AMOUNT"
	CodeAmountIsZero        Code = "AMOUNT_IS_ZERO"
	CodeInvalidSlippage     Code = "INVALID_SLIPPAGE"
	CodeInvalidTradeType    Code = "INVALID_TRADE_TYPE"
	CodeInvalidDeadline     Code = "INVALID_DEADLINE"
	CodeNoRoute             Code = "NO_ROUTE"
	CodeNotEnoughLiquidity  Code = "NOT_ENOUGH_LIQUIDITY"
	CodeInternalServerError Code = "INTERNAL_SERVER_ERROR"
)

const internalMessage = "internal server error"

// Error carries a Code and a caller-facing message. Err keeps the underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the code onto a response status.
func (e *Error) HTTPStatus() int {
	if e.Code == CodeInternalServerError {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// PublicMessage is the message safe to return to callers. Internal errors never expose their cause.
func (e *Error) PublicMessage() string {
	if e.Code == CodeInternalServerError {
		return internalMessage
	}
	return e.Message
}

// IsLiquidity reports whether the code is an expected no-route or no-liquidity outcome.
func (c Code) IsLiquidity() bool {
	return c == CodeNoRoute || c == CodeNotEnoughLiquidity
}

// AsError converts any error into an *Error, treating unknown errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var qerr *Error
	if errors.As(err, &qerr) {
		return qerr
	}
	return newError(CodeInternalServerError, internalMessage, err)
}
