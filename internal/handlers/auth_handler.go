package handlers

import (
	"net/http"
	"strings"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/auth"
	"github.com/farellandr/cashback/internal/helpers"
	"github.com/farellandr/cashback/internal/middleware"
	"github.com/farellandr/cashback/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Name     string `json:"name" binding:"required,max=120"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type SessionResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

var errBadCredentials = apperr.New(apperr.KindUnauthorized, "invalid credentials")

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := bindJSON(c, &req); err != nil {
		helpers.RespondWithError(c, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	user := &models.User{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: hash,
		Name:     req.Name,
		Role:     models.RoleUser,
	}
	if err := h.Users.Create(c.Request.Context(), user); err != nil {
		helpers.RespondWithError(c, err)
		return
	}

	tokens, err := h.Auth.Issue(user)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	h.Log.Info("user registered", zap.String("user_id", user.ID.String()))
	helpers.RespondOK(c, http.StatusCreated, SessionResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         user,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		helpers.RespondWithError(c, err)
		return
	}

	user, err := h.Users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			err = errBadCredentials
		}
		helpers.RespondWithError(c, err)
		return
	}
	if !auth.CheckPassword(user.Password, req.Password) {
		helpers.RespondWithError(c, errBadCredentials)
		return
	}

	tokens, err := h.Auth.Issue(user)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, SessionResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         user,
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := bindJSON(c, &req); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	res, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	helpers.RespondOK(c, http.StatusOK, res)
}

// Logout blacklists the presented access token. It is a no-op for tokens
// that are already invalid, so repeating it is safe.
func (h *Handler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		helpers.RespondWithError(c, apperr.New(apperr.KindUnauthorized, "missing bearer token"))
		return
	}
	if err := h.Auth.Logout(c.Request.Context(), token); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RevokeAll(c *gin.Context) {
	if err := h.Auth.RevokeAll(c.Request.Context(), middleware.UserID(c)); err != nil {
		helpers.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
