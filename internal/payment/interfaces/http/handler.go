// Package http 实现支付服务的 HTTP 接口。
// confirm/fail 是支付网关回调的接缝：网关对接本身不在本服务范围内。
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/orderfulfillment/internal/payment/application"
	"github.com/wyfcoding/orderfulfillment/internal/payment/domain"
	"github.com/wyfcoding/orderfulfillment/pkg/logger"
	"github.com/wyfcoding/orderfulfillment/pkg/response"
)

// PaymentHandler HTTP 处理器
type PaymentHandler struct {
	payments *application.PaymentService
}

// NewPaymentHandler 创建 HTTP 处理器实例
func NewPaymentHandler(payments *application.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// RegisterRoutes 注册路由
func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/payments")
	{
		api.POST("/:id/confirm", h.ConfirmPayment) // 支付成功回调
		api.POST("/:id/fail", h.FailPayment)       // 支付失败回调
		api.GET("/:id", h.GetPayment)              // 查询支付单
		api.GET("", h.GetPaymentByOrder)           // 按订单查询支付单
	}
}

// PaymentView 支付单视图
type PaymentView struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

func toPaymentView(payment *domain.Payment) *PaymentView {
	return &PaymentView{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		UserID:    payment.UserID,
		Amount:    payment.Amount.String(),
		Status:    string(payment.Status),
		Reason:    payment.Reason,
	}
}

// ConfirmPayment 标记支付成功，重复调用为 no-op
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	paymentID := c.Param("id")

	if err := h.payments.MarkSucceeded(c.Request.Context(), paymentID); err != nil {
		h.writeError(c, paymentID, err)
		return
	}
	response.Success(c, gin.H{"payment_id": paymentID, "status": string(domain.StatusSucceeded)})
}

// FailPaymentRequest 支付失败回调请求
type FailPaymentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// FailPayment 标记支付失败，重复调用为 no-op
func (h *PaymentHandler) FailPayment(c *gin.Context) {
	paymentID := c.Param("id")

	var req FailPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.payments.MarkFailed(c.Request.Context(), paymentID, req.Reason); err != nil {
		h.writeError(c, paymentID, err)
		return
	}
	response.Success(c, gin.H{"payment_id": paymentID, "status": string(domain.StatusFailed)})
}

// GetPayment 查询支付单
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID := c.Param("id")

	payment, err := h.payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.writeError(c, paymentID, err)
		return
	}
	response.Success(c, toPaymentView(payment))
}

// GetPaymentByOrder 按订单号查询支付单
func (h *PaymentHandler) GetPaymentByOrder(c *gin.Context) {
	orderID := c.Query("order_id")
	if orderID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "order_id is required")
		return
	}

	payment, err := h.payments.GetPaymentByOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, orderID, err)
		return
	}
	response.Success(c, toPaymentView(payment))
}

func (h *PaymentHandler) writeError(c *gin.Context, id string, err error) {
	if errors.Is(err, domain.ErrPaymentNotFound) {
		response.ErrorWithStatus(c, http.StatusNotFound, "payment not found")
		return
	}
	logger.Error(c.Request.Context(), "Payment request failed", "id", id, "error", err)
	response.Error(c, err.Error())
}
