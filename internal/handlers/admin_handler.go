package handlers

import (
	"net/http"
	"time"

	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateTransactionRequest struct {
	UserID       uuid.UUID        `json:"userId" binding:"required"`
	StoreID      uuid.UUID        `json:"storeId" binding:"required"`
	GrossAmount  decimal.Decimal  `json:"grossAmount"`
	PurchaseDate *time.Time       `json:"purchaseDate"`
	CouponID     *uuid.UUID       `json:"couponId"`
	ExternalRef  string           `json:"externalRef" binding:"max=128"`
	Rate         *decimal.Decimal `json:"rate"`
}

type SettleRequest struct {
	Success *bool `json:"success" binding:"required"`
}

// CreateTransaction records a purchase on behalf of the affiliate tracker,
// for manual corrections.
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := bindJSON(c, &req); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	in := ledger.PurchaseInput{
		UserID:      req.UserID,
		StoreID:     req.StoreID,
		GrossAmount: req.GrossAmount,
		CouponID:    req.CouponID,
		ExternalRef: req.ExternalRef,
		Rate:        req.Rate,
	}
	if req.PurchaseDate != nil {
		in.PurchaseDate = *req.PurchaseDate
	}

	tx, created, err := h.Ledger.RecordPurchase(c.Request.Context(), in)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	helpers.RespondOK(c, status, tx)
}

func (h *Handler) RejectTransaction(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	tx, err := h.Ledger.Reject(c.Request.Context(), id)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, tx)
}

func (h *Handler) SettleWithdrawal(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	var req SettleRequest
	if err := bindJSON(c, &req); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	w, err := h.Ledger.SettleWithdrawal(c.Request.Context(), id, *req.Success)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, w)
}

func (h *Handler) RevokeUserTokens(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	if err := h.Auth.RevokeAll(c.Request.Context(), id); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) BalanceCheck(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	check, err := h.Ledger.Check(c.Request.Context(), id)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, check)
}
