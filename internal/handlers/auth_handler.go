package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/auth"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/utils"
)

type TelegramLoginRequest struct {
	InitData string `json:"init_data" binding:"required"`
}

type LoginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      *models.Principal `json:"user"`
}

type AuthHandler struct {
	BaseHandler
	initData *auth.InitDataValidator
	issuer   *auth.TokenIssuer
}

func NewAuthHandler(initData *auth.InitDataValidator, issuer *auth.TokenIssuer, logger utils.Logger) *AuthHandler {
	return &AuthHandler{
		BaseHandler: NewBaseHandler(logger),
		initData:    initData,
		issuer:      issuer,
	}
}

// TelegramLogin exchanges signed Mini-App init data for a session token.
func (h *AuthHandler) TelegramLogin(c *gin.Context) {
	var req TelegramLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	principal, err := h.initData.Validate(req.InitData)
	if err != nil {
		code := "invalid_init_data"
		if errors.Is(err, auth.ErrInitDataExpired) {
			code = "init_data_expired"
		}
		h.log(c).Warn("Telegram init data rejected", "error", err)
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Invalid Telegram init data", Code: code})
		return
	}

	token, expiresAt, err := h.issuer.Issue(principal)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Telegram user signed in", "user_id", principal.ID, "role", principal.Role)
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt, User: principal})
}

// Me returns the authenticated caller.
func (h *AuthHandler) Me(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}
