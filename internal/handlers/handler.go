// Package handlers implements the HTTP surface. Handlers bind and parse
// input, call one service operation and write the envelope; all business
// rules live in the services.
package handlers

import (
	"context"

	"github.com/farellandr/cashback/internal/auth"
	"github.com/farellandr/cashback/internal/catalog"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/ledger"
	"github.com/farellandr/cashback/internal/middleware"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/redemption"
	"github.com/farellandr/cashback/internal/store"
	"github.com/farellandr/cashback/internal/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is anything the detailed health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth           *auth.Service
	Users          *store.Users
	Catalog        *catalog.Service
	Redeemer       *redemption.Engine
	Redemptions    *store.Redemptions
	Ledger         *ledger.Ledger
	Leases         *store.Leases
	Clicks         *helpers.ClickCipher
	Uploads        helpers.UploadConfig
	PostbackSecret string
	PageLimitMax   int
	// Redis is nil when the blacklist runs in memory.
	Redis            Pinger
	BlacklistBackend string
	PayoutProvider   string
	Log              *zap.Logger
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	return &Handler{Deps: d}
}

func (h *Handler) actor(c *gin.Context) catalog.Actor {
	claims := middleware.Claims(c)
	if claims == nil {
		return catalog.Actor{}
	}
	return catalog.Actor{ID: claims.UserID, Role: models.Role(claims.Role)}
}

func (h *Handler) page(c *gin.Context) (store.PageRequest, error) {
	page, limit, err := helpers.Pagination(c)
	if err != nil {
		return store.PageRequest{}, err
	}
	return store.NewPageRequest(page, limit, h.PageLimitMax), nil
}

// bindJSON decodes the body into dst. Binding tags are checked by gin; body
// decoding failures become a ValidationError without a field.
func bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return validation.FromValidator(err)
	}
	return nil
}
