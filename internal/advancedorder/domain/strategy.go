package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ActionType 策略决策动作类型
type ActionType string

const (
	ActionPlace    ActionType = "place"
	ActionCancel   ActionType = "cancel"
	ActionReprice  ActionType = "reprice"
	ActionSkip     ActionType = "skip"
	ActionWait     ActionType = "wait"
	ActionComplete ActionType = "complete"
	ActionFail     ActionType = "fail"
)

// Action 策略在一个调度周期内的决策结果，引擎负责落地
type Action struct {
	Type ActionType

	// place
	Size         decimal.Decimal
	Kind         ChildOrderKind
	Price        *decimal.Decimal
	TriggerPrice *decimal.Decimal
	ReduceOnly   bool
	Tag          string

	// cancel / reprice
	ChildID  string
	NewPrice decimal.Decimal
	// Fatal 撤单即终态：撤单记录本身就是失败记录，随后订单进入 failed
	Fatal bool

	// fail / fatal cancel 的原因，skip 的说明
	Reason string

	// wait
	WaitFor time.Duration
}

// PlaceLimit 以限价下子单
func PlaceLimit(size, price decimal.Decimal, tag string) Action {
	p := price
	return Action{Type: ActionPlace, Kind: ChildOrderLimit, Size: size, Price: &p, Tag: tag}
}

// PlaceMarket 以市价下子单
func PlaceMarket(size decimal.Decimal, tag string) Action {
	return Action{Type: ActionPlace, Kind: ChildOrderMarket, Size: size, Tag: tag}
}

// PlaceStop 下止损/触发子单
func PlaceStop(size, trigger decimal.Decimal, reduceOnly bool, tag string) Action {
	t := trigger
	return Action{Type: ActionPlace, Kind: ChildOrderStop, Size: size, TriggerPrice: &t, ReduceOnly: reduceOnly, Tag: tag}
}

// CancelChild 撤销子单
func CancelChild(childID string) Action {
	return Action{Type: ActionCancel, ChildID: childID}
}

// FatalCancel 撤销子单并终止订单（追价耗尽等场景）
func FatalCancel(childID, reason string) Action {
	return Action{Type: ActionCancel, ChildID: childID, Fatal: true, Reason: reason}
}

// Reprice 撤换到新价格
func Reprice(childID string, newPrice decimal.Decimal) Action {
	return Action{Type: ActionReprice, ChildID: childID, NewPrice: newPrice}
}

// Skip 跳过当前周期并留痕
func Skip(reason string) Action {
	return Action{Type: ActionSkip, Reason: reason}
}

// Wait 等待指定时长
func Wait(d time.Duration) Action {
	return Action{Type: ActionWait, WaitFor: d}
}

// Complete 订单完成
func Complete() Action {
	return Action{Type: ActionComplete}
}

// Fail 订单失败
func Fail(reason string) Action {
	return Action{Type: ActionFail, Reason: reason}
}

// MarketSnapshot 一个调度周期的市场输入。推/拉两种成交通知
// 最终都表现为快照内容的更新，策略不感知来源差异。
type MarketSnapshot struct {
	Time     time.Time
	Book     *OrderBook
	Position *Position // 仅 trailing_tp 订单填充；nil 表示持仓不存在
}

// ExecutionStrategy 执行策略：纯决策逻辑，不做 I/O。
// Rehydrate 在订单（重新）激活时由引擎调用，从日志恢复策略内部状态；
// Decide 在每个调度周期返回下一步动作。
type ExecutionStrategy interface {
	Rehydrate(state *RuntimeState, history []*AdvancedOrderExecution) error
	Decide(state *RuntimeState, snap *MarketSnapshot) Action
	// TickInterval 默认调度间隔，Wait 动作可临时覆盖
	TickInterval() time.Duration
}

// NewStrategy 按订单类型构造策略实例
func NewStrategy(order *AdvancedOrder, params OrderParams) (ExecutionStrategy, error) {
	switch p := params.(type) {
	case *TWAPParams:
		return NewTWAPStrategy(p), nil
	case *LimitChaseParams:
		return NewLimitChaseStrategy(p), nil
	case *ScaledParams:
		return NewScaledStrategy(p, order.TotalSize), nil
	case *IcebergParams:
		return NewIcebergStrategy(p), nil
	case *OCOParams:
		return NewOCOStrategy(p), nil
	case *TrailingTPParams:
		return NewTrailingTPStrategy(p, order.Side), nil
	}
	return nil, fmt.Errorf("no strategy for order type %s", order.OrderType)
}
