package middleware

import (
	"crypto/subtle"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/gin-gonic/gin"
)

const XenditCallbackHeader = "x-callback-token"

// XenditCallbackMiddleware accepts only callbacks carrying the verification
// token configured in the Xendit dashboard.
func XenditCallbackMiddleware(callbackToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(XenditCallbackHeader)
		if callbackToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(callbackToken)) != 1 {
			helpers.RespondWithError(c, apperr.New(apperr.KindUnauthorized, "invalid callback token"))
			return
		}
		c.Next()
	}
}
