package api

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"poolscope/internal/quote"
)

const codeInvalidRequest = "INVALID_REQUEST"

func (s *Server) postQuote(c *gin.Context) {
	var body quoteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{ErrorCode: codeInvalidRequest, Message: "malformed request body"})
		return
	}

	amount, ok := new(big.Int).SetString(strings.TrimSpace(body.Amount), 10)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse{ErrorCode: string(quote.CodeInvalidAmount), Message: "amount must be a base-10 integer"})
		return
	}

	result, err := s.quoter.Quote(c.Request.Context(), body.toRequest(c.GetString(requestIDKey), amount))
	if err != nil {
		writeQuoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuoteResponse(result))
}

func writeQuoteError(c *gin.Context, err error) {
	qerr := quote.AsError(err)
	c.JSON(qerr.HTTPStatus(), errorResponse{ErrorCode: string(qerr.Code), Message: qerr.PublicMessage()})
}
