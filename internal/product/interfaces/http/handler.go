// Package http 实现商品目录的 HTTP 读接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/orderfulfillment/internal/product/application"
	"github.com/wyfcoding/orderfulfillment/internal/product/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/response"
)

// ProductHandler HTTP 处理器
type ProductHandler struct {
	sync *application.SyncService
}

// NewProductHandler 创建 HTTP 处理器实例
func NewProductHandler(sync *application.SyncService) *ProductHandler {
	return &ProductHandler{sync: sync}
}

// RegisterRoutes 注册路由
func (h *ProductHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/v1/products/:product_id", h.GetProduct)
}

// GetProduct 查询商品目录数量
func (h *ProductHandler) GetProduct(c *gin.Context) {
	productID := c.Param("product_id")

	product, err := h.sync.GetProduct(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			response.ErrorWithStatus(c, http.StatusNotFound, "product not found")
			return
		}
		response.Error(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"product_id": product.ProductID,
		"quantity":   product.Quantity,
		"updated_at": product.UpdatedAt,
	})
}
