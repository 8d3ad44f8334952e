// Package http 实现通知服务的 HTTP 读接口
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/orderfulfillment/internal/notification/application"
	"github.com/wyfcoding/orderfulfillment/pkg/response"
)

// NotificationHandler HTTP 处理器
type NotificationHandler struct {
	notifier *application.NotifierService
}

// NewNotificationHandler 创建 HTTP 处理器实例
func NewNotificationHandler(notifier *application.NotifierService) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

// RegisterRoutes 注册路由
func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/v1/notifications", h.ListNotifications)
}

// ListNotifications 按用户列出最近通知
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "user_id is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	notifications, err := h.notifier.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err.Error())
		return
	}
	response.Success(c, gin.H{"notifications": notifications})
}
