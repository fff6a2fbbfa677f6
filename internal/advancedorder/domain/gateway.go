package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// GatewayErrorKind 网关错误分类
type GatewayErrorKind string

const (
	// GatewayErrorTransient 网络/超时/限流，允许退避重试
	GatewayErrorTransient GatewayErrorKind = "transient"
	// GatewayErrorRejected 交易所业务拒绝（保证金不足、非法价格），不重试
	GatewayErrorRejected GatewayErrorKind = "rejected"
)

// GatewayError 网关调用失败
type GatewayError struct {
	Kind GatewayErrorKind
	Op   string
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewTransientError 构造 Transient 错误
func NewTransientError(op string, err error) *GatewayError {
	return &GatewayError{Kind: GatewayErrorTransient, Op: op, Err: err}
}

// NewRejectedError 构造 Rejected 错误
func NewRejectedError(op string, err error) *GatewayError {
	return &GatewayError{Kind: GatewayErrorRejected, Op: op, Err: err}
}

// IsTransient 判断是否为可重试错误
func IsTransient(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == GatewayErrorTransient
}

// IsRejected 判断是否为业务拒绝
func IsRejected(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == GatewayErrorRejected
}

// ChildOrderKind 子单类型
type ChildOrderKind string

const (
	ChildOrderLimit  ChildOrderKind = "limit"
	ChildOrderMarket ChildOrderKind = "market"
	ChildOrderStop   ChildOrderKind = "stop"
)

// PlaceOrderRequest 下子单请求
type PlaceOrderRequest struct {
	Symbol       string
	Side         OrderSide
	Size         decimal.Decimal
	Kind         ChildOrderKind
	Price        *decimal.Decimal // 限价单价格，市价单为 nil
	TriggerPrice *decimal.Decimal // stop 单触发价
	ReduceOnly   bool
}

// PlaceStatus 下单受理状态
type PlaceStatus string

const (
	PlaceStatusAccepted PlaceStatus = "accepted"
	PlaceStatusRejected PlaceStatus = "rejected"
)

// PlaceOrderResult 下子单结果。市价单可能立即携带成交回报。
type PlaceOrderResult struct {
	ChildID      string
	Status       PlaceStatus
	FilledSize   decimal.Decimal
	AvgFillPrice decimal.NullDecimal
}

// CancelStatus 撤单结果
type CancelStatus string

const (
	CancelStatusCancelled     CancelStatus = "cancelled"
	CancelStatusAlreadyFilled CancelStatus = "already_filled"
	CancelStatusNotFound      CancelStatus = "not_found"
)

// PriceLevel 订单簿档位
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook 订单簿快照
type OrderBook struct {
	Symbol  string
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
	Bids    []PriceLevel // 降序
	Asks    []PriceLevel // 升序
}

// BestQuote 返回己方方向的最优报价：买单看最优买价，卖单看最优卖价
func (b *OrderBook) BestQuote(side OrderSide) decimal.Decimal {
	if side == OrderSideBuy {
		return b.BestBid
	}
	return b.BestAsk
}

// OppositeQuote 返回对手方向的最优报价
func (b *OrderBook) OppositeQuote(side OrderSide) decimal.Decimal {
	if side == OrderSideBuy {
		return b.BestAsk
	}
	return b.BestBid
}

// Position 持仓快照
type Position struct {
	PositionID    string
	Symbol        string
	Side          OrderSide
	Size          decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// ChildStatus 子单存续状态
type ChildStatus string

const (
	ChildStatusOpen      ChildStatus = "open"
	ChildStatusPartial   ChildStatus = "partial"
	ChildStatusFilled    ChildStatus = "filled"
	ChildStatusCancelled ChildStatus = "cancelled"
)

// ChildOrderSnapshot 子单快照，拉模式的成交检测入口。
// 推模式的适配器把实时回报落到本地缓存后同样经由此接口暴露，
// 引擎在调度循环里把两种来源统一当作"行情快照已更新"处理。
type ChildOrderSnapshot struct {
	ChildID      string
	Status       ChildStatus
	FilledSize   decimal.Decimal
	AvgFillPrice decimal.NullDecimal
}

// ExchangeGateway 交易所网关契约。具体交易所适配器实现本接口。
// 任何调用都可能返回 Transient（重试）或 Rejected（立即上抛）错误。
type ExchangeGateway interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error)
	CancelOrder(ctx context.Context, childID string) (CancelStatus, error)
	GetOrderBook(ctx context.Context, symbol string) (*OrderBook, error)
	GetPosition(ctx context.Context, positionID string) (*Position, error)
	GetChildOrder(ctx context.Context, childID string) (*ChildOrderSnapshot, error)
}
