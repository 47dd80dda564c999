package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/ledger"
	"github.com/farellandr/cashback/internal/middleware"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CashbackOverview struct {
	Balance      *ledger.Balance              `json:"balance"`
	Transactions []models.CashbackTransaction `json:"transactions"`
}

// maxPostbackBytes caps the signed body read before verification.
const maxPostbackBytes = 64 << 10

// PostbackRequest is the affiliate network's purchase notification.
type PostbackRequest struct {
	ClickRef     string          `json:"clickRef" validate:"required,max=512"`
	OrderID      string          `json:"orderId" validate:"required,max=128"`
	Amount       decimal.Decimal `json:"amount"`
	PurchaseDate *time.Time      `json:"purchaseDate"`
}

func (h *Handler) GetCashback(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	page, limit, err := helpers.Pagination(c)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}

	txs, info, err := h.Ledger.ListTransactions(ctx, userID, c.Query("status"), page, limit)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	balance, err := h.Ledger.Balance(ctx, userID)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondPage(c, CashbackOverview{Balance: balance, Transactions: txs}, info)
}

func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.Ledger.Balance(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, balance)
}

func (h *Handler) Withdraw(c *gin.Context) {
	var in ledger.WithdrawalInput
	if err := bindJSON(c, &in); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	w, err := h.Ledger.RequestWithdrawal(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, w)
}

func (h *Handler) ListWithdrawals(c *gin.Context) {
	page, limit, err := helpers.Pagination(c)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	ws, info, err := h.Ledger.ListWithdrawals(c.Request.Context(), middleware.UserID(c), page, limit)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondPage(c, ws, info)
}

// Postback records an attributed purchase reported by the affiliate
// network. The body must be signed with the shared postback secret; replays
// of the same order return the original transaction.
func (h *Handler) Postback(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPostbackBytes)
	body, err := c.GetRawData()
	if err != nil {
		helpers.RespondWithError(c, apperr.Validation("", "body unreadable or larger than 64KiB"))
		return
	}
	if !helpers.VerifySignature(h.PostbackSecret, body, c.GetHeader(helpers.SignatureHeader)) {
		helpers.RespondWithError(c, apperr.New(apperr.KindUnauthorized, "invalid signature"))
		return
	}

	var req PostbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		helpers.RespondWithError(c, apperr.Validation("", "malformed request body"))
		return
	}
	if err := validation.Struct(req); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	ref, err := h.Clicks.Decrypt(req.ClickRef)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}

	in := ledger.PurchaseInput{
		UserID:      ref.UserID,
		StoreID:     ref.StoreID,
		GrossAmount: req.Amount,
		CouponID:    ref.CouponID,
		ExternalRef: req.OrderID,
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
		h.Log.Info("postback recorded", zap.String("order_id", req.OrderID), zap.String("transaction_id", tx.ID.String()))
	}
	helpers.RespondOK(c, status, tx)
}
