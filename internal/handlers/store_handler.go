package handlers

import (
	"net/http"
	"net/url"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/catalog"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const clickRefParam = "cb_ref"

type ClickRequest struct {
	CouponID *uuid.UUID `json:"couponId"`
}

type ClickResponse struct {
	ClickRef    string `json:"clickRef"`
	TrackingURL string `json:"trackingUrl"`
}

func (h *Handler) ListStores(c *gin.Context) {
	q := catalog.StoreQuery{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Sort:     c.Query("sort"),
	}
	var err error
	if q.Active, err = helpers.QueryBool(c, "active"); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	if q.Page, q.Limit, err = helpers.Pagination(c); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	stores, page, err := h.Catalog.ListStores(c.Request.Context(), q)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondPage(c, stores, page)
}

func (h *Handler) GetStore(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	st, err := h.Catalog.GetStore(c.Request.Context(), id)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, st)
}

func (h *Handler) CreateStore(c *gin.Context) {
	var in catalog.StoreInput
	if err := bindJSON(c, &in); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	st, err := h.Catalog.CreateStore(c.Request.Context(), in, h.actor(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusCreated, st)
}

func (h *Handler) UpdateStore(c *gin.Context) {
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
	st, err := h.Catalog.UpdateStore(c.Request.Context(), id, patch, h.actor(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, st)
}

func (h *Handler) DeleteStore(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	soft, err := h.Catalog.DeleteStore(c.Request.Context(), id, h.actor(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, DeleteResponse{Deleted: !soft, Deactivated: soft})
}

// UploadStoreLogo replaces the store logo with the multipart "logo" file.
func (h *Handler) UploadStoreLogo(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	ctx := c.Request.Context()
	previous, err := h.Catalog.GetStore(ctx, id)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	fileHeader, err := c.FormFile("logo")
	if err != nil {
		helpers.RespondWithError(c, apperr.Validation("logo", "is required"))
		return
	}

	logoURL, err := helpers.UploadFile(c, fileHeader, "logos", h.Uploads)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	st, err := h.Catalog.SetStoreLogo(ctx, id, logoURL, h.actor(c))
	if err != nil {
		if cleanupErr := helpers.DeleteUpload(h.Uploads, logoURL); cleanupErr != nil {
			h.Log.Warn("failed to remove orphaned logo", zap.String("path", logoURL), zap.Error(cleanupErr))
		}
		helpers.RespondWithError(c, err)
		return
	}
	if previous.LogoURL != "" {
		if err := helpers.DeleteUpload(h.Uploads, previous.LogoURL); err != nil {
			h.Log.Warn("failed to remove previous logo", zap.String("path", previous.LogoURL), zap.Error(err))
		}
	}
	helpers.RespondOK(c, http.StatusOK, st)
}

// TrackClick issues an encrypted click reference for an outbound visit to
// the store. The affiliate network returns it in the purchase postback.
func (h *Handler) TrackClick(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	var req ClickRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			helpers.RespondWithError(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	st, err := h.Catalog.GetStore(ctx, id)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	if !st.IsActive {
		helpers.RespondWithError(c, apperr.New(apperr.KindInactive, "store is not active"))
		return
	}
	if req.CouponID != nil {
		coupon, err := h.Catalog.GetCoupon(ctx, *req.CouponID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				err = apperr.Validation("couponId", "unknown coupon")
			}
			helpers.RespondWithError(c, err)
			return
		}
		if coupon.StoreID != st.ID {
			helpers.RespondWithError(c, apperr.Validation("couponId", "coupon belongs to another store"))
			return
		}
	}

	ref, err := h.Clicks.Encrypt(helpers.ClickRef{UserID: middleware.UserID(c), StoreID: st.ID, CouponID: req.CouponID})
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, ClickResponse{ClickRef: ref, TrackingURL: trackingURL(st.WebsiteURL, ref)})
}

func trackingURL(website, ref string) string {
	u, err := url.Parse(website)
	if err != nil || website == "" {
		return ""
	}
	q := u.Query()
	q.Set(clickRefParam, ref)
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handler) ListStoreOffers(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	active, err := helpers.QueryBool(c, "active")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	offers, err := h.Catalog.ListOffers(c.Request.Context(), id, active == nil || *active)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, offers)
}

func (h *Handler) CreateOffer(c *gin.Context) {
	var in catalog.OfferInput
	if err := bindJSON(c, &in); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	offer, err := h.Catalog.CreateOffer(c.Request.Context(), in, h.actor(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusCreated, offer)
}

func (h *Handler) UpdateOffer(c *gin.Context) {
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
	offer, err := h.Catalog.UpdateOffer(c.Request.Context(), id, patch, h.actor(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, offer)
}

func (h *Handler) DeleteOffer(c *gin.Context) {
	id, err := helpers.ParamUUID(c, "id")
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	soft, err := h.Catalog.DeleteOffer(c.Request.Context(), id, h.actor(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, DeleteResponse{Deleted: !soft, Deactivated: soft})
}
