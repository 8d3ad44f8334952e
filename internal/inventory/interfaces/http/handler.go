// Package http 实现库存服务的 HTTP 接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/orderfulfillment/internal/inventory/application"
	"github.com/wyfcoding/orderfulfillment/internal/inventory/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/response"
)

// InventoryHandler HTTP 处理器
type InventoryHandler struct {
	inventory *application.InventoryService
}

// NewInventoryHandler 创建 HTTP 处理器实例
func NewInventoryHandler(inventory *application.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

// RegisterRoutes 注册路由
func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/inventory")
	{
		api.PUT("/:product_id", h.SetStock) // 供给库存
		api.GET("/:product_id", h.GetStock) // 查询库存
	}
}

// SetStockRequest 供给库存请求
type SetStockRequest struct {
	Quantity int64 `json:"quantity" binding:"min=0"`
}

// SetStock 供给库存
func (h *InventoryHandler) SetStock(c *gin.Context) {
	productID := c.Param("product_id")

	var req SetStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.inventory.SetStock(c.Request.Context(), productID, req.Quantity); err != nil {
		logger.Error(c.Request.Context(), "Failed to supply stock", "product_id", productID, "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, gin.H{"product_id": productID, "quantity": req.Quantity})
}

// GetStock 查询库存
func (h *InventoryHandler) GetStock(c *gin.Context) {
	productID := c.Param("product_id")

	view, err := h.inventory.GetStock(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			response.ErrorWithStatus(c, http.StatusNotFound, "product not found")
			return
		}
		logger.Error(c.Request.Context(), "Failed to get stock", "product_id", productID, "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, view)
}
