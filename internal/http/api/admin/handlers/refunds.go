package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pixwave-ai/pixwave-server/internal/billing"
)

// RefundHandler exposes manual refunds of usage records.
type RefundHandler struct {
	svc *billing.Service // Billing engine.
}

// NewRefundHandler constructs a refund handler.
func NewRefundHandler(svc *billing.Service) *RefundHandler {
	return &RefundHandler{svc: svc}
}

// refundRequest captures the payload for a manual refund.
type refundRequest struct {
	Reason string `json:"reason"` // Human refund reason.
}

// Refund returns the full charged amount of a usage record to its user.
// Zero-cost and already-refunded records report nothing to refund.
func (h *RefundHandler) Refund(c *gin.Context) {
	var body refundRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil && !errors.Is(errBind, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	record, errRefund := h.svc.RefundCredits(c.Request.Context(), c.Param("id"), strings.TrimSpace(body.Reason))
	if errRefund != nil {
		if errors.Is(errRefund, billing.ErrUsageRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "usage record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refund failed"})
		return
	}
	if record == nil {
		c.JSON(http.StatusOK, gin.H{"refunded": false, "reason": "nothing to refund"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"refunded": true, "usage_record": record})
}
