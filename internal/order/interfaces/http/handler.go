// Package http 实现订单服务的 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/orderfulfillment/internal/order/application"
	"github.com/wyfcoding/orderfulfillment/internal/order/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/response"
)

// OrderHandler HTTP 处理器
type OrderHandler struct {
	orders *application.OrderService
}

// NewOrderHandler 创建 HTTP 处理器实例
func NewOrderHandler(orders *application.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// RegisterRoutes 注册路由
func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/orders")
	{
		api.POST("", h.CreateOrder)  // 下单
		api.GET("/:id", h.GetOrder)  // 查询订单
		api.GET("", h.ListOrders)    // 按用户列出订单
	}
}

// CreateOrderItemRequest 下单请求中的单行
type CreateOrderItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Size      string `json:"size"`
	Quantity  int64  `json:"quantity" binding:"required,min=1"`
	UnitPrice string `json:"unit_price" binding:"required"`
}

// CreateOrderRequest 下单请求
type CreateOrderRequest struct {
	UserID string                   `json:"user_id" binding:"required"`
	Items  []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// CreateOrder 下单。订单以 PENDING 状态立即返回，预占结果异步确定终态。
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	cmd := application.CreateOrderCommand{UserID: req.UserID}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, application.CreateOrderItem{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	orderID, err := h.orders.CreateOrder(c.Request.Context(), cmd)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to create order", "user_id", req.UserID, "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, gin.H{"order_id": orderID, "status": string(domain.StatusPending)})
}

// OrderItemView 订单行视图
type OrderItemView struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size,omitempty"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Status    string `json:"status"`
}

// OrderView 订单视图
type OrderView struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount string          `json:"total_amount"`
	Status      string          `json:"status"`
	Items       []OrderItemView `json:"items"`
	CreatedAt   string          `json:"created_at"`
}

func toOrderView(order *domain.Order) *OrderView {
	view := &OrderView{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount.String(),
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, OrderItemView{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
			Status:    string(item.Status),
		})
	}
	return view
}

// GetOrder 查询订单
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("id")

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			response.ErrorWithStatus(c, http.StatusNotFound, "order not found")
			return
		}
		logger.Error(c.Request.Context(), "Failed to get order", "order_id", orderID, "error", err)
		response.Error(c, err.Error())
		return
	}

	response.Success(c, toOrderView(order))
}

// ListOrders 按用户分页列出订单
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "user_id is required")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, total, err := h.orders.ListOrders(c.Request.Context(), userID, limit, offset)
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to list orders", "user_id", userID, "error", err)
		response.Error(c, err.Error())
		return
	}

	views := make([]*OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, toOrderView(order))
	}
	response.Success(c, gin.H{"total": total, "orders": views})
}
