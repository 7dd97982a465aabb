package handler

import (
	"errors"

	"github.com/Hsinwei-29/mes/internal/mes/auth"
	"github.com/gin-gonic/gin"
)

// AuthHandler 登录
type AuthHandler struct {
	svc *auth.AuthService
}

func NewAuthHandler(svc *auth.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 账号密码登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	token, err := h.svc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			Unauthorized(c, "用户名或密码错误")
			return
		}
		InternalError(c, err.Error())
		return
	}
	Success(c, token)
}

// Me 当前用户
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	u, ok := h.svc.CurrentUser(GetUserID(c))
	if !ok {
		NotFound(c, "用户不存在")
		return
	}
	Success(c, u)
}
