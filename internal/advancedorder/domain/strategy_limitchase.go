package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LimitChaseStrategy 限价追价策略。
// 以最优报价加带符号偏移量挂限价单，行情移动则撤换跟随；
// 追价次数耗尽后按 give_behavior 处理：cancel 撤单终止、
// market 市价吃掉剩余、wait 停止追价原地等待成交。
type LimitChaseStrategy struct {
	params *LimitChaseParams
	gaveUp bool // 已触发 give_behavior=market 的撤单
}

// NewLimitChaseStrategy 创建限价追价策略
func NewLimitChaseStrategy(p *LimitChaseParams) *LimitChaseStrategy {
	return &LimitChaseStrategy{params: p}
}

// TickInterval 追价检查间隔
func (s *LimitChaseStrategy) TickInterval() time.Duration {
	return time.Duration(s.params.ChaseIntervalSeconds) * time.Second
}

// Rehydrate 追价次数由 reprice 记录数恢复；market 让步阶段
// 表现为追价耗尽后的 cancel 记录，由此恢复 gaveUp 标记
func (s *LimitChaseStrategy) Rehydrate(state *RuntimeState, history []*AdvancedOrderExecution) error {
	if s.params.GiveBehavior != GiveBehaviorMarket {
		return nil
	}
	if state.ActionCount(ExecutionActionReprice) >= s.params.MaxChases &&
		state.ActionCount(ExecutionActionCancel) > 0 {
		s.gaveUp = true
	}
	return nil
}

// Decide 决策下一个动作
func (s *LimitChaseStrategy) Decide(state *RuntimeState, snap *MarketSnapshot) Action {
	if !state.Remaining.IsPositive() {
		return Complete()
	}

	child := singleChild(state)

	// 无存续子单：初次下单，或 market 让步后补市价单
	if child == nil {
		if s.gaveUp {
			return PlaceMarket(state.Remaining, "give_up")
		}
		if state.ActionCount(ExecutionActionPlace) > 0 {
			// 子单已不在但仍有剩余：外部撤单等异常路径
			return Fail("chase child disappeared with size remaining")
		}
		target, ok := s.targetPrice(state.Order.Side, snap.Book)
		if !ok {
			return Fail(fmt.Sprintf("target price breaches price limit %s", s.params.PriceLimit))
		}
		return PlaceLimit(state.Remaining, target, "chase")
	}

	// 到达追价检查时点前保持等待。以 LastPlacedAt 为钟，
	// 子单的部分成交回报不推迟追价检查
	if elapsed := snap.Time.Sub(state.LastPlacedAt); elapsed < s.TickInterval() {
		return Wait(s.TickInterval() - elapsed)
	}

	target, ok := s.targetPrice(state.Order.Side, snap.Book)
	if !ok || (child.Price != nil && !child.Price.Equal(target)) {
		if state.ActionCount(ExecutionActionReprice) >= s.params.MaxChases {
			return s.giveUp(child)
		}
		if !ok {
			// 目标价越过限价，钉在限价上等待
			clamped := *s.params.PriceLimit
			if child.Price != nil && child.Price.Equal(clamped) {
				return Wait(s.TickInterval())
			}
			return Reprice(child.ChildID, clamped)
		}
		return Reprice(child.ChildID, target)
	}

	return Wait(s.TickInterval())
}

// targetPrice 计算追价目标价。第二返回值为 false 表示目标价
// 越过了 price_limit。
func (s *LimitChaseStrategy) targetPrice(side OrderSide, book *OrderBook) (decimal.Decimal, bool) {
	target := book.BestQuote(side)
	if side == OrderSideBuy {
		target = target.Add(s.params.Offset)
		if s.params.PriceLimit != nil && target.GreaterThan(*s.params.PriceLimit) {
			return target, false
		}
	} else {
		target = target.Sub(s.params.Offset)
		if s.params.PriceLimit != nil && target.LessThan(*s.params.PriceLimit) {
			return target, false
		}
	}
	return target, true
}

func (s *LimitChaseStrategy) giveUp(child *ChildRuntime) Action {
	switch s.params.GiveBehavior {
	case GiveBehaviorMarket:
		s.gaveUp = true
		return CancelChild(child.ChildID)
	case GiveBehaviorWait:
		return Wait(s.TickInterval())
	default:
		return FatalCancel(child.ChildID, "chase budget exhausted")
	}
}

// singleChild 返回唯一存续子单；追价与移动止盈任一时刻至多一个子单
func singleChild(state *RuntimeState) *ChildRuntime {
	for _, c := range state.Children {
		return c
	}
	return nil
}
