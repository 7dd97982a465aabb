package handler

import (
	"context"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/notify"
	"github.com/Hsinwei-29/mes/internal/mes/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InventoryHandler 库存查询与修改
type InventoryHandler struct {
	svc      *service.InventoryService
	mutation *service.MutationService
	notifier notify.Notifier
	logger   *zap.Logger
}

func NewInventoryHandler(svc *service.InventoryService, mutation *service.MutationService, notifier notify.Notifier, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{svc: svc, mutation: mutation, notifier: notifier, logger: logger}
}

// Summary 各铸件总数
// GET /api/v1/inventory/summary
func (h *InventoryHandler) Summary(c *gin.Context) {
	Success(c, gin.H{
		"totals": h.svc.Summary(),
		"parts":  h.svc.PartSummaries(),
	})
}

// Models 机型目录
// GET /api/v1/inventory/models
func (h *InventoryHandler) Models(c *gin.Context) {
	models := h.svc.Catalog()
	Success(c, gin.H{"items": models, "total": len(models)})
}

// ZeroStock 零库存机型
// GET /api/v1/inventory/models/zero-stock
func (h *InventoryHandler) ZeroStock(c *gin.Context) {
	models := h.svc.ZeroStock()
	Success(c, gin.H{"items": models, "total": len(models)})
}

// PartDetails 某铸件的全部行，nonzero=true 只返回有库存的行
// GET /api/v1/inventory/parts/:partType
func (h *InventoryHandler) PartDetails(c *gin.Context) {
	details, err := h.svc.PartDetails(c.Param("partType"), c.Query("nonzero") == "true")
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, details)
}

// UpdateCell 修改单元格
// PUT /api/v1/inventory/parts/:partType/cells
func (h *InventoryHandler) UpdateCell(c *gin.Context) {
	var req service.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	req.PartType = c.Param("partType")
	req.Actor = GetUserID(c)

	res, err := h.mutation.UpdateField(c.Request.Context(), req)
	if err != nil {
		Fail(c, err)
		return
	}
	publishEntries(c.Request.Context(), h.notifier, h.logger, []entity.AuditEntry{res.Entry})
	Success(c, res)
}

// StockIn 入库
// POST /api/v1/inventory/parts/:partType/stock-in
func (h *InventoryHandler) StockIn(c *gin.Context) {
	h.stock(c, h.mutation.StockIn)
}

// StockOut 出库
// POST /api/v1/inventory/parts/:partType/stock-out
func (h *InventoryHandler) StockOut(c *gin.Context) {
	h.stock(c, h.mutation.StockOut)
}

type stockOp func(context.Context, service.StockRequest) (*service.StockResult, error)

func (h *InventoryHandler) stock(c *gin.Context, op stockOp) {
	var req service.StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	req.PartType = c.Param("partType")
	req.Actor = GetUserID(c)

	res, err := op(c.Request.Context(), req)
	if err != nil {
		Fail(c, err)
		return
	}
	publishEntries(c.Request.Context(), h.notifier, h.logger, res.Entries)
	Success(c, res)
}
