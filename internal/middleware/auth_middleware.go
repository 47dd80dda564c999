package middleware

import (
	"context"
	"strings"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/auth"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	claimsKey = "claims"
	tokenKey  = "access_token"
)

type TokenVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*auth.AccessClaims, error)
}

// JWTAuthMiddleware requires a valid bearer access token.
func JWTAuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			helpers.RespondWithError(c, apperr.New(apperr.KindUnauthorized, "missing bearer token"))
			return
		}
		claims, err := verifier.VerifyAccess(c.Request.Context(), token)
		if err != nil {
			helpers.RespondWithError(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// RequireRole must run after JWTAuthMiddleware.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			helpers.RespondWithError(c, apperr.ErrUnauthorized)
			return
		}
		if models.Role(claims.Role) != role {
			helpers.RespondWithError(c, apperr.New(apperr.KindForbidden, string(role)+" role required"))
			return
		}
		c.Next()
	}
}

func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func Claims(c *gin.Context) *auth.AccessClaims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.AccessClaims)
	return claims
}

func UserID(c *gin.Context) uuid.UUID {
	if claims := Claims(c); claims != nil {
		return claims.UserID
	}
	return uuid.Nil
}

// AccessToken returns the raw token the request authenticated with.
func AccessToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}
