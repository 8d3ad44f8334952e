package domain

import "context"

// 库存服务参与的事件主题。主题名即发件箱行的 eventType，一一对应。
const (
	TopicOrderCreated          = "order-created"
	TopicStockReserved         = "stock-reserved"
	TopicStockRejected         = "stock-rejected"
	TopicReleaseStock          = "release-stock"
	TopicStockReleased         = "stock-released"
	TopicProductStockDecreased = "product-stock-decreased"
)

// OrderLine 订单行
type OrderLine struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int64  `json:"quantity"`
}

// OrderCreatedEvent 订单服务发布的预占请求
type OrderCreatedEvent struct {
	EventID string      `json:"event_id"`
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	Items   []OrderLine `json:"items"`
}

// StockReservedEvent 单行预占成功
type StockReservedEvent struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int64  `json:"quantity"`
}

// StockRejectedEvent 单行预占失败（库存不足）
type StockRejectedEvent struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int64  `json:"quantity"`
	Reason    string `json:"reason"`
}

// ReleaseStockEvent 补偿释放请求
type ReleaseStockEvent struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// StockReleasedEvent 预占已补偿（审计与商品目录同步）
type StockReleasedEvent struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// ProductStockDecreasedEvent 商品目录数量同步
type ProductStockDecreasedEvent struct {
	EventID   string `json:"event_id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// PendingEvent 待写入发件箱的事件
type PendingEvent struct {
	EventType string
	Payload   interface{}
}

// EventWriter 将一批领域事件与业务写入绑定在同一个本地事务内落入发件箱
type EventWriter interface {
	WriteInTx(ctx context.Context, aggregateType, aggregateID string, events ...PendingEvent) error
	// OutcomesRecorded 判断该订单是否已有预占结果事件在发件箱中。
	// 用于区分 DUPLICATE 的两种来源：结果已落库的普通重投递，
	// 和预占成功但结果事件没写进发件箱的丢写重放。
	OutcomesRecorded(ctx context.Context, orderID string) (bool, error)
}
