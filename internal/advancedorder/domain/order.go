// Package domain 高级订单执行领域层
// 生成摘要：
// 1) 定义高级订单聚合根与状态机
// 2) 定义执行记录（append-only）与运行时状态
// 3) 定义执行策略接口与六种策略实现
// 4) 定义交易所网关契约
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderSide 交易方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid 校验方向合法性
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType 高级订单类型
type OrderType string

const (
	OrderTypeTWAP       OrderType = "twap"
	OrderTypeLimitChase OrderType = "limit_chase"
	OrderTypeScaled     OrderType = "scaled"
	OrderTypeIceberg    OrderType = "iceberg"
	OrderTypeOCO        OrderType = "oco"
	OrderTypeTrailingTP OrderType = "trailing_tp"
)

// Valid 校验订单类型合法性
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeTWAP, OrderTypeLimitChase, OrderTypeScaled, OrderTypeIceberg, OrderTypeOCO, OrderTypeTrailingTP:
		return true
	}
	return false
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusPaused    OrderStatus = "paused"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Terminal 是否为终态
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusFailed
}

// ErrInvalidTransition 非法状态迁移
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition: %s -> %s", e.From, e.To)
}

// AdvancedOrder 高级订单聚合根
type AdvancedOrder struct {
	gorm.Model
	OrderID    string          `gorm:"column:order_id;type:varchar(64);uniqueIndex;not null" json:"order_id"`
	UserID     string          `gorm:"column:user_id;type:varchar(64);index;not null" json:"user_id"`
	OrderType  OrderType       `gorm:"column:order_type;type:varchar(20);not null" json:"order_type"`
	Symbol     string          `gorm:"column:symbol;type:varchar(32);not null" json:"symbol"`
	Side       OrderSide       `gorm:"column:side;type:varchar(8);not null" json:"side"`
	TotalSize  decimal.Decimal `gorm:"column:total_size;type:decimal(32,16);not null" json:"total_size"`
	Parameters string          `gorm:"column:parameters;type:json" json:"parameters"` // 按类型校验后的 JSON 参数
	Status     OrderStatus     `gorm:"column:status;type:varchar(16);not null;default:'pending'" json:"status"`
}

// TableName 表名
func (AdvancedOrder) TableName() string {
	return "advanced_orders"
}

// NewAdvancedOrder 创建高级订单
func NewAdvancedOrder(id, userID string, orderType OrderType, symbol string, side OrderSide, totalSize decimal.Decimal, params string) *AdvancedOrder {
	return &AdvancedOrder{
		OrderID:    id,
		UserID:     userID,
		OrderType:  orderType,
		Symbol:     symbol,
		Side:       side,
		TotalSize:  totalSize,
		Parameters: params,
		Status:     OrderStatusPending,
	}
}

// validTransitions 状态机：pending -> active <-> paused -> {completed, cancelled, failed}
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusActive, OrderStatusCancelled},
	OrderStatusActive:  {OrderStatusPaused, OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPaused:  {OrderStatusActive, OrderStatusCancelled},
}

// CanTransition 判断状态迁移是否合法
func (o *AdvancedOrder) CanTransition(to OrderStatus) bool {
	for _, s := range validTransitions[o.Status] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition 执行状态迁移，状态写入只允许经由引擎
func (o *AdvancedOrder) Transition(to OrderStatus) error {
	if !o.CanTransition(to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}
