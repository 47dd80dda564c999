package handlers

import (
	"fmt"
	"net/http"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/catalog"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

type DeleteResponse struct {
	Deleted     bool `json:"deleted"`
	Deactivated bool `json:"deactivated"`
}

func (h *Handler) ListCoupons(c *gin.Context) {
	q := catalog.CouponQuery{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Sort:     c.Query("sort"),
	}
	var err error
	if q.StoreID, err = helpers.QueryUUID(c, "store"); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	if q.Active, err = helpers.QueryBool(c, "active"); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	if q.Page, q.Limit, err = helpers.Pagination(c); err != nil {
		helpers.RespondWithError(c, err)
		return
	}

	coupons, page, err := h.Catalog.ListCoupons(c.Request.Context(), q)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondPage(c, coupons, page)
}

func (h *Handler) GetCoupon(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	coupon, err := h.Catalog.GetCoupon(c.Request.Context(), id)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, coupon)
}

func (h *Handler) CreateCoupon(c *gin.Context) {
	var in catalog.CouponInput
	if err := bindJSON(c, &in); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	coupon, err := h.Catalog.CreateCoupon(c.Request.Context(), in, h.actor(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusCreated, coupon)
}

func (h *Handler) UpdateCoupon(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	var patch catalog.Patch
	if err := bindJSON(c, &patch); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	coupon, err := h.Catalog.UpdateCoupon(c.Request.Context(), id, patch, h.actor(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, coupon)
}

func (h *Handler) DeleteCoupon(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	soft, err := h.Catalog.DeleteCoupon(c.Request.Context(), id, h.actor(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, DeleteResponse{Deleted: !soft, Deactivated: soft})
}

func (h *Handler) RedeemCoupon(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	res, err := h.Redeemer.Redeem(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, res)
}

// CouponQR renders the coupon code as a PNG for presenting at a till.
func (h *Handler) CouponQR(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	size, err := helpers.QueryInt(c, "size")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	if size == 0 {
		size = defaultQRSize
	}
	if size < minQRSize || size > maxQRSize {
		helpers.RespondWithError(c, apperr.Validation("size", fmt.Sprintf("must be between %d and %d", minQRSize, maxQRSize)))
		return
	}

	coupon, err := h.Catalog.GetCoupon(c.Request.Context(), id)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	if !coupon.IsActive {
		helpers.RespondWithError(c, apperr.New(apperr.KindInactive, "coupon is not active"))
		return
	}

	png, err := qrcode.Encode(fmt.Sprintf("coupon:%s;id:%s", coupon.Code, coupon.ID), qrcode.Medium, size)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
