package handlers

import (
	"net/http"

	"github.com/farellandr/cashback/internal/helpers"
	"github.com/gin-gonic/gin"
)

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.Catalog.Categories(c.Request.Context())
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, categories)
}
