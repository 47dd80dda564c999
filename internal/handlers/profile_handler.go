package handlers

import (
	"net/http"

	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/middleware"
	"github.com/gin-gonic/gin"
)

func (h *Handler) Me(c *gin.Context) {
	user, err := h.Users.GetByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, user)
}

func (h *Handler) MyRedemptions(c *gin.Context) {
	p, err := h.page(c)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	views, page, err := h.Redemptions.ListByUser(c.Request.Context(), middleware.UserID(c), p)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondPage(c, views, page)
}
