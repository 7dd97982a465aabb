package handler

import (
	"github.com/Hsinwei-29/mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// SystemHandler 缓存控制、预警推送、健康检查
type SystemHandler struct {
	sources *service.Sources
	alert   *service.AlertService
}

func NewSystemHandler(sources *service.Sources, alert *service.AlertService) *SystemHandler {
	return &SystemHandler{sources: sources, alert: alert}
}

// InvalidateRequest 缓存失效请求，caches 为空时全部失效
type InvalidateRequest struct {
	Caches []string `json:"caches"`
}

// InvalidateCache 手动失效缓存
// POST /api/v1/cache/invalidate
func (h *SystemHandler) InvalidateCache(c *gin.Context) {
	var req InvalidateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "Invalid request: "+err.Error())
			return
		}
	}
	known := h.sources.Registry().Names()
	for _, name := range req.Caches {
		if !contains(known, name) {
			BadRequest(c, "未知缓存: "+name)
			return
		}
	}
	Success(c, gin.H{"invalidated": h.sources.Invalidate(req.Caches...)})
}

// SendShortageAlert 推送缺料预警
// POST /api/v1/alerts/shortage
func (h *SystemHandler) SendShortageAlert(c *gin.Context) {
	summary, err := h.alert.SendShortageAlert(c.Request.Context())
	if err != nil {
		InternalError(c, "推送失败: "+err.Error())
		return
	}
	Success(c, summary)
}

// Health 健康检查，附带各缓存名称
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	Success(c, gin.H{
		"status": "ok",
		"caches": h.sources.Registry().Names(),
		"alerts": h.alert.Enabled(),
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
