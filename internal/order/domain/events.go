package domain

// 订单服务参与的事件主题
const (
	TopicOrderCreated   = "order-created"
	TopicStockReserved  = "stock-reserved"
	TopicStockRejected  = "stock-rejected"
	TopicReleaseStock   = "release-stock"
	TopicOrderConfirmed = "order-confirmed"
	TopicOrderCancelled = "order-cancelled"
)

// OrderLine 订单行的事件表示
type OrderLine struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int64  `json:"quantity"`
}

// OrderCreatedEvent 订单已创建，请求库存预占
type OrderCreatedEvent struct {
	EventID string      `json:"event_id"`
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	Items   []OrderLine `json:"items"`
}

// StockReservedEvent 库存侧单行预占成功（消费）
type StockReservedEvent struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int64  `json:"quantity"`
}

// StockRejectedEvent 库存侧单行预占被拒（消费）
type StockRejectedEvent struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int64  `json:"quantity"`
	Reason    string `json:"reason"`
}

// ReleaseStockEvent 补偿释放请求（发布）
type ReleaseStockEvent struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// OrderConfirmedEvent 订单已确认（发布，支付与通知消费）
type OrderConfirmedEvent struct {
	EventID     string `json:"event_id"`
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	TotalAmount string `json:"total_amount"`
}

// OrderCancelledEvent 订单已取消（发布，通知消费）
type OrderCancelledEvent struct {
	EventID string `json:"event_id"`
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
}
