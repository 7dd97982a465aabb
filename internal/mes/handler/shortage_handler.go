package handler

import (
	"net/url"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// ShortageHandler 缺料清单
type ShortageHandler struct {
	svc *service.ShortageService
}

func NewShortageHandler(svc *service.ShortageService) *ShortageHandler {
	return &ShortageHandler{svc: svc}
}

// List 缺料计算结果，only_short=true 只返回最终缺料 > 0 的行
// GET /api/v1/shortage
func (h *ShortageHandler) List(c *gin.Context) {
	res := h.svc.Compute()
	lines := res.Lines
	if c.Query("only_short") == "true" {
		lines = h.svc.Short()
	}
	if lines == nil {
		lines = []entity.ShortageLine{}
	}
	Success(c, gin.H{
		"items":       lines,
		"total":       len(lines),
		"diagnostics": res.Diagnostics,
	})
}

// Export 下载缺料报表
// GET /api/v1/shortage/export
func (h *ShortageHandler) Export(c *gin.Context) {
	f, filename, err := h.svc.Export()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "导出失败: "+err.Error())
		return
	}
}
