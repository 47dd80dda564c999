package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is carried by every authenticated request.
type AccessClaims struct {
	UserID       uuid.UUID `json:"userId"`
	Role         string    `json:"role"`
	Email        string    `json:"email"`
	Verified     bool      `json:"verified"`
	TokenVersion int       `json:"tokenVersion"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID       uuid.UUID `json:"userId"`
	TokenVersion int       `json:"tokenVersion"`
	TokenID      string    `json:"tokenId"`
	jwt.RegisteredClaims
}
