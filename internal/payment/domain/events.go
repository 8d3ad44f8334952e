package domain

// 支付服务参与的事件主题
const (
	TopicOrderConfirmed   = "order-confirmed"
	TopicPaymentSucceeded = "payment-succeeded"
	TopicPaymentFailed    = "payment-failed"
)

// OrderConfirmedEvent 订单已确认（消费，触发建立支付单）
type OrderConfirmedEvent struct {
	EventID     string `json:"event_id"`
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	TotalAmount string `json:"total_amount"`
}

// PaymentSucceededEvent 支付成功（发布）
type PaymentSucceededEvent struct {
	EventID   string `json:"event_id"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
}

// PaymentFailedEvent 支付失败（发布）
type PaymentFailedEvent struct {
	EventID   string `json:"event_id"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}
