package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"FundMe/internal/ledger"
	"FundMe/internal/model"
)

// KindInvalidRequest marks malformed input rejected before reaching the ledger.
const KindInvalidRequest ledger.ErrorKind = "InvalidRequest"

var statusByKind = map[ledger.ErrorKind]int{
	ledger.KindInsufficientFunding: http.StatusUnprocessableEntity,
	ledger.KindNotOwner:            http.StatusForbidden,
	ledger.KindTransferFailed:      http.StatusBadGateway,
	ledger.KindFeedUnavailable:     http.StatusServiceUnavailable,
	ledger.KindArithmeticOverflow:  http.StatusUnprocessableEntity,
	ledger.KindIndexOutOfRange:     http.StatusNotFound,
	ledger.KindNotPayable:          http.StatusBadRequest,
	ledger.KindInsufficientBalance: http.StatusPaymentRequired,
	ledger.KindOutOfGas:            http.StatusUnprocessableEntity,
	ledger.KindNonceMismatch:       http.StatusConflict,
}

// StatusFor maps a ledger error to an HTTP status.
func StatusFor(err error) int {
	if code, ok := statusByKind[ledger.Kind(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": KindInvalidRequest})
}

func unauthorized(c *gin.Context, err error) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "kind": KindUnauthorized})
}

// abortWithError writes {error, kind} and, for reverted transactions, the receipt.
func abortWithError(c *gin.Context, err error, r *model.Receipt) {
	body := gin.H{
		"error":     err.Error(),
		"kind":      ledger.Kind(err),
		"retryable": ledger.IsRetryable(err),
	}
	if r != nil {
		body["receipt"] = newReceiptResponse(r)
	}
	c.JSON(StatusFor(err), body)
}
