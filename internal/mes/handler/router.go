package handler

import (
	"net/http"

	"github.com/Hsinwei-29/mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册 API 路由，metrics 为 nil 时不暴露 /metrics
func RegisterRoutes(r *gin.Engine, h *Handlers, jwtSecret string, metrics http.Handler) {
	r.GET("/health", h.System.Health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "Not found"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/login", h.Auth.Login)

		// SSE 通过 query 传 token
		sseGroup := v1.Group("/sse")
		sseGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			sseGroup.GET("/events", h.SSE.Stream)
		}

		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtSecret))
		{
			authorized.GET("/auth/me", h.Auth.Me)

			admin := middleware.RequireRole(middleware.AdminRole)

			inventory := authorized.Group("/inventory")
			{
				inventory.GET("/summary", h.Inventory.Summary)
				inventory.GET("/models", h.Inventory.Models)
				inventory.GET("/models/zero-stock", h.Inventory.ZeroStock)
				inventory.GET("/parts/:partType", h.Inventory.PartDetails)
				inventory.PUT("/parts/:partType/cells", admin, h.Inventory.UpdateCell)
				inventory.POST("/parts/:partType/stock-in", admin, h.Inventory.StockIn)
				inventory.POST("/parts/:partType/stock-out", admin, h.Inventory.StockOut)
			}

			authorized.GET("/orders", h.Order.List)
			authorized.GET("/supply-demand", h.Order.SupplyDemand)

			authorized.GET("/shortage", h.Shortage.List)
			authorized.GET("/shortage/export", h.Shortage.Export)

			audit := authorized.Group("/audit")
			{
				audit.GET("/:partType", h.Audit.Log)
				audit.GET("/:partType/items/:itemId", h.Audit.ItemLog)
				audit.GET("/:partType/stats", h.Audit.Stats)
			}

			authorized.POST("/cache/invalidate", admin, h.System.InvalidateCache)
			authorized.POST("/alerts/shortage", admin, h.System.SendShortageAlert)
		}
	}
}
