package middleware

import (
	"crypto/subtle"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/gin-gonic/gin"
)

const APIKeyHeader = "X-API-Key"

// APIKey guards operator endpoints with a static key. An empty key disables
// the endpoint entirely.
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(APIKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			helpers.RespondWithError(c, apperr.New(apperr.KindUnauthorized, "invalid api key"))
			return
		}
		c.Next()
	}
}
