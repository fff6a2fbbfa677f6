package domain

import (
	"context"
)

// ErrOrderNotFound 订单不存在
var ErrOrderNotFound = NewNotFoundError("advanced order not found")

// NotFoundError 资源不存在错误
type NotFoundError struct {
	msg string
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(msg string) *NotFoundError {
	return &NotFoundError{msg: msg}
}

func (e *NotFoundError) Error() string { return e.msg }

// OrderRepository 高级订单仓储接口
type OrderRepository interface {
	Save(ctx context.Context, order *AdvancedOrder) error
	FindByOrderID(ctx context.Context, orderID string) (*AdvancedOrder, error)
	ListByUserID(ctx context.Context, userID string, statuses []OrderStatus, page, pageSize int) ([]*AdvancedOrder, int64, error)
	// ListActive 返回全部处于 active 状态的订单，进程重启后恢复驱动用
	ListActive(ctx context.Context) ([]*AdvancedOrder, error)
	UpdateStatus(ctx context.Context, orderID string, from, to OrderStatus) error
}

// ExecutionRepository 执行日志仓储接口。只追加，
// (advanced_order_id, sequence_number) 唯一约束由存储层保证。
type ExecutionRepository interface {
	Append(ctx context.Context, execution *AdvancedOrderExecution) error
	// LoadHistory 按 sequence_number 升序返回某订单的全部执行记录
	LoadHistory(ctx context.Context, orderID string) ([]*AdvancedOrderExecution, error)
}
