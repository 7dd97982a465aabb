package handler

import (
	"github.com/Hsinwei-29/mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// OrderHandler 工单看板与供需
type OrderHandler struct {
	svc       *service.OrderService
	inventory *service.InventoryService
}

func NewOrderHandler(svc *service.OrderService, inventory *service.InventoryService) *OrderHandler {
	return &OrderHandler{svc: svc, inventory: inventory}
}

// List 工单看板
// GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	Success(c, h.svc.List())
}

// SupplyDemand 各铸件库存与需求对比
// GET /api/v1/supply-demand
func (h *OrderHandler) SupplyDemand(c *gin.Context) {
	Success(c, h.inventory.SupplyDemand())
}
