package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLifecycleEvent 订单生命周期事件，状态每次变迁发布一条
type OrderLifecycleEvent struct {
	EventID    string          `json:"event_id"`
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	OrderType  OrderType       `json:"order_type"`
	FromStatus OrderStatus     `json:"from_status"`
	ToStatus   OrderStatus     `json:"to_status"`
	Reason     string          `json:"reason,omitempty"`
	CumFilled  decimal.Decimal `json:"cum_filled"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// ExecutionRecordedEvent 执行记录追加事件
type ExecutionRecordedEvent struct {
	EventID        string          `json:"event_id"`
	OrderID        string          `json:"order_id"`
	SequenceNumber int64           `json:"sequence_number"`
	Action         ExecutionAction `json:"action"`
	Result         ExecutionResult `json:"result"`
	ChildID        string          `json:"child_id,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// EventPublisher 事件发布者接口
type EventPublisher interface {
	// PublishLifecycle 发布订单状态变迁事件
	PublishLifecycle(event OrderLifecycleEvent) error

	// PublishExecution 发布执行记录追加事件
	PublishExecution(event ExecutionRecordedEvent) error
}
