package handlers

import (
	"net/http"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/payout"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PayoutCallback is the subset of the Xendit payout webhook we act on.
type PayoutCallback struct {
	Event string `json:"event"`
	Data  struct {
		ID          string `json:"id"`
		ReferenceID string `json:"reference_id" binding:"required"`
		Status      string `json:"status" binding:"required"`
		FailureCode string `json:"failure_code"`
	} `json:"data"`
}

// PayoutWebhook settles a withdrawal from the payout provider's callback.
// Intermediate statuses are acknowledged without changes so the provider
// stops retrying them.
func (h *Handler) PayoutWebhook(c *gin.Context) {
	var cb PayoutCallback
	if err := bindJSON(c, &cb); err != nil {
		helpers.RespondWithError(c, err)
		return
	}

	success, final := payout.CallbackStatus(cb.Data.Status)
	if !final {
		h.Log.Info("payout callback ignored",
			zap.String("reference", cb.Data.ReferenceID),
			zap.String("status", cb.Data.Status),
		)
		helpers.RespondOK(c, http.StatusOK, gin.H{"settled": false})
		return
	}

	w, err := h.Ledger.SettleByReference(c.Request.Context(), cb.Data.ReferenceID, success)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInvalidState {
			h.Log.Warn("payout callback contradicts settled withdrawal",
				zap.String("reference", cb.Data.ReferenceID),
				zap.String("status", cb.Data.Status),
			)
		}
		helpers.RespondWithError(c, err)
		return
	}
	if !success {
		h.Log.Warn("payout failed",
			zap.String("reference", cb.Data.ReferenceID),
			zap.String("failure_code", cb.Data.FailureCode),
		)
	}
	helpers.RespondOK(c, http.StatusOK, w)
}
