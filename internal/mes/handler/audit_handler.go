package handler

import (
	"github.com/Hsinwei-29/mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// AuditHandler 修改记录查询
type AuditHandler struct {
	svc     *service.AuditService
	sources *service.Sources
}

func NewAuditHandler(svc *service.AuditService, sources *service.Sources) *AuditHandler {
	return &AuditHandler{svc: svc, sources: sources}
}

// partType 代码转为铸件名称，审计记录按名称保存
func (h *AuditHandler) partType(c *gin.Context) string {
	key := c.Param("partType")
	if cfg, ok := h.sources.PartType(key); ok {
		return cfg.Name
	}
	return key
}

// Log 某铸件的修改记录
// GET /api/v1/audit/:partType?limit=50
func (h *AuditHandler) Log(c *gin.Context) {
	entries, err := h.svc.Log(c.Request.Context(), h.partType(c), queryInt(c, "limit", service.DefaultAuditLimit))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": entries, "total": len(entries)})
}

// ItemLog 某条目的修改记录，source=archive 时从归档库分页查询
// GET /api/v1/audit/:partType/items/:itemId?limit=100
func (h *AuditHandler) ItemLog(c *gin.Context) {
	if c.Query("source") == "archive" {
		page, err := h.svc.ArchiveLog(c.Request.Context(), h.partType(c), c.Param("itemId"), queryInt(c, "page", 1), queryInt(c, "page_size", service.DefaultAuditLimit))
		if err != nil {
			Fail(c, err)
			return
		}
		Success(c, page)
		return
	}
	entries, err := h.svc.ItemLog(c.Request.Context(), h.partType(c), c.Param("itemId"), queryInt(c, "limit", service.DefaultItemAuditLimit))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": entries, "total": len(entries)})
}

// Stats 修改统计
// GET /api/v1/audit/:partType/stats
func (h *AuditHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), h.partType(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, stats)
}
