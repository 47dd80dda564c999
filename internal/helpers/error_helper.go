package helpers

import (
	"errors"
	"net/http"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/store"
	"github.com/gin-gonic/gin"
)

type Response struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *store.Page `json:"pagination,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindValidation,
		apperr.KindConflict,
		apperr.KindInactive,
		apperr.KindExpired,
		apperr.KindLimitReached,
		apperr.KindAlreadyRedeemed,
		apperr.KindInsufficientFunds,
		apperr.KindInvalidState:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// RespondWithError writes the error envelope and aborts the chain. Details
// of unexpected errors stay in the logs.
func RespondWithError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	resp := ErrorResponse{Error: string(kind), Field: apperr.FieldOf(err)}

	var e *apperr.Error
	switch {
	case kind == apperr.KindUnexpected:
		_ = c.Error(err)
	case errors.As(err, &e):
		resp.Message = e.Msg
	}
	c.AbortWithStatusJSON(StatusFor(kind), resp)
}

func RespondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func RespondPage(c *gin.Context, data interface{}, page store.Page) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Pagination: &page})
}
