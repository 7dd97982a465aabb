package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/Hsinwei-29/mes/internal/mes/auth"
	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/notify"
	"github.com/Hsinwei-29/mes/internal/mes/service"
	"github.com/Hsinwei-29/mes/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 处理器集合
type Handlers struct {
	Auth      *AuthHandler
	Inventory *InventoryHandler
	Order     *OrderHandler
	Shortage  *ShortageHandler
	Audit     *AuditHandler
	System    *SystemHandler
	SSE       *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, authSvc *auth.AuthService, hub *notify.Hub, notifier notify.Notifier, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = hub
	}
	return &Handlers{
		Auth:      NewAuthHandler(authSvc),
		Inventory: NewInventoryHandler(svc.Inventory, svc.Mutation, notifier, logger),
		Order:     NewOrderHandler(svc.Orders, svc.Inventory),
		Shortage:  NewShortageHandler(svc.Shortage),
		Audit:     NewAuditHandler(svc.Audit, svc.Sources),
		System:    NewSystemHandler(svc.Sources, svc.Alert),
		SSE:       NewSSEHandler(hub),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Unauthorized 未授权响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 状态冲突响应（库存不足）
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// Fail 按服务层错误类型返回对应业务码
func Fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		BadRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		Conflict(c, err.Error())
	case errors.Is(err, context.Canceled):
		Error(c, 49900, "request canceled")
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 获取当前用户ID
func GetUserID(c *gin.Context) string {
	return c.GetString(middleware.KeyUserID)
}

// queryInt 读取整数查询参数，缺省或非法时返回 def
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// publishEntries 把审计记录作为变更事件推送，失败只记日志
func publishEntries(ctx context.Context, n notify.Notifier, logger *zap.Logger, entries []entity.AuditEntry) {
	for _, e := range entries {
		if err := n.Publish(ctx, entity.ChangeEventFrom(e)); err != nil {
			logger.Warn("Publish change event failed", zap.String("item_id", e.ItemID), zap.Error(err))
		}
	}
}
