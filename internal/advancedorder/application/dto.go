package application

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
)

// OrderSummary 订单列表项
type OrderSummary struct {
	OrderID   string             `json:"order_id"`
	UserID    string             `json:"user_id"`
	OrderType domain.OrderType   `json:"order_type"`
	Symbol    string             `json:"symbol"`
	Side      domain.OrderSide   `json:"side"`
	TotalSize decimal.Decimal    `json:"total_size"`
	Status    domain.OrderStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// OrderDetail 订单详情，进度字段由执行日志推导
type OrderDetail struct {
	OrderSummary
	Parameters      json.RawMessage `json:"parameters"`
	CumFilledSize   decimal.Decimal `json:"cum_filled_size"`
	RemainingSize   decimal.Decimal `json:"remaining_size"`
	ExecutionCount  int             `json:"execution_count"`
	LastSequence    int64           `json:"last_sequence"`
	LastExecutionAt *time.Time      `json:"last_execution_at,omitempty"`
}

// ExecutionView 执行记录视图
type ExecutionView struct {
	SequenceNumber int64                  `json:"sequence_number"`
	Action         domain.ExecutionAction `json:"action"`
	ChildID        string                 `json:"child_id,omitempty"`
	RequestedSize  decimal.Decimal        `json:"requested_size"`
	RequestedPrice *decimal.Decimal       `json:"requested_price,omitempty"`
	ResultStatus   domain.ExecutionResult `json:"result_status"`
	FilledSize     decimal.Decimal        `json:"filled_size"`
	AvgFillPrice   *decimal.Decimal       `json:"avg_fill_price,omitempty"`
	ErrorDetail    string                 `json:"error_detail,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

func newOrderSummary(o *domain.AdvancedOrder) *OrderSummary {
	return &OrderSummary{
		OrderID:   o.OrderID,
		UserID:    o.UserID,
		OrderType: o.OrderType,
		Symbol:    o.Symbol,
		Side:      o.Side,
		TotalSize: o.TotalSize,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func newOrderDetail(o *domain.AdvancedOrder, history []*domain.AdvancedOrderExecution) *OrderDetail {
	cum := domain.CumulativeFilled(history)
	detail := &OrderDetail{
		OrderSummary:   *newOrderSummary(o),
		Parameters:     json.RawMessage(o.Parameters),
		CumFilledSize:  cum,
		RemainingSize:  o.TotalSize.Sub(cum),
		ExecutionCount: len(history),
	}
	if n := len(history); n > 0 {
		last := history[n-1]
		detail.LastSequence = last.SequenceNumber
		t := last.Timestamp
		detail.LastExecutionAt = &t
	}
	return detail
}

func newExecutionView(e *domain.AdvancedOrderExecution) *ExecutionView {
	v := &ExecutionView{
		SequenceNumber: e.SequenceNumber,
		Action:         e.Action,
		ChildID:        e.ChildID,
		RequestedSize:  e.RequestedSize,
		ResultStatus:   e.ResultStatus,
		FilledSize:     e.FilledSize,
		ErrorDetail:    e.ErrorDetail,
		Timestamp:      e.Timestamp,
	}
	if e.RequestedPrice.Valid {
		p := e.RequestedPrice.Decimal
		v.RequestedPrice = &p
	}
	if e.AvgFillPrice.Valid {
		p := e.AvgFillPrice.Decimal
		v.AvgFillPrice = &p
	}
	return v
}
