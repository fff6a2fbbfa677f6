package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrailingTPStrategy 移动止盈策略。
// 跟踪持仓的有利价格极值，在极值回撤 trail_distance 处维护
// 一张只减仓的止损单；未实现盈利达到 min_profit 后才挂出。
// 持仓被外部平掉（查不到）时订单立即失败。
type TrailingTPStrategy struct {
	params  *TrailingTPParams
	side    OrderSide // 平仓方向
	peak    decimal.Decimal
	hasPeak bool
}

// NewTrailingTPStrategy 创建移动止盈策略
func NewTrailingTPStrategy(p *TrailingTPParams, side OrderSide) *TrailingTPStrategy {
	return &TrailingTPStrategy{params: p, side: side}
}

// TickInterval 重估间隔
func (s *TrailingTPStrategy) TickInterval() time.Duration {
	return time.Duration(s.params.UpdateIntervalSeconds) * time.Second
}

// Rehydrate 价格极值由存续止损单的触发价反推：
// 触发价始终等于极值回撤 trail_distance，二者互为函数
func (s *TrailingTPStrategy) Rehydrate(state *RuntimeState, history []*AdvancedOrderExecution) error {
	child := singleChild(state)
	if child == nil || child.Price == nil {
		return nil
	}
	if s.closesLong() {
		s.peak = child.Price.Add(s.params.TrailDistance)
	} else {
		s.peak = child.Price.Sub(s.params.TrailDistance)
	}
	s.hasPeak = true
	return nil
}

// Decide 决策下一个动作
func (s *TrailingTPStrategy) Decide(state *RuntimeState, snap *MarketSnapshot) Action {
	if !state.Remaining.IsPositive() {
		return Complete()
	}
	pos := snap.Position
	if pos == nil {
		return Fail("position " + s.params.PositionID + " not found")
	}

	s.trackPeak(pos.MarkPrice)
	stop := s.stopPrice()
	child := singleChild(state)

	// 尚未武装：等盈利达标
	if child == nil {
		if pos.UnrealizedPnl.LessThan(s.params.MinProfit) {
			return Wait(s.TickInterval())
		}
		size := state.Remaining
		if size.GreaterThan(pos.Size) {
			size = pos.Size
		}
		return PlaceStop(size, stop, true, "protective")
	}

	// 极值改善才上移止损，回撤方向永不移动
	if child.Price != nil && s.improves(stop, *child.Price) {
		return Reprice(child.ChildID, stop)
	}
	return Wait(s.TickInterval())
}

// closesLong 平多仓（卖出方向）为 true
func (s *TrailingTPStrategy) closesLong() bool {
	return s.side == OrderSideSell
}

func (s *TrailingTPStrategy) trackPeak(mark decimal.Decimal) {
	if !s.hasPeak {
		s.peak = mark
		s.hasPeak = true
		return
	}
	if s.closesLong() {
		if mark.GreaterThan(s.peak) {
			s.peak = mark
		}
	} else if mark.LessThan(s.peak) {
		s.peak = mark
	}
}

func (s *TrailingTPStrategy) stopPrice() decimal.Decimal {
	if s.closesLong() {
		return s.peak.Sub(s.params.TrailDistance)
	}
	return s.peak.Add(s.params.TrailDistance)
}

func (s *TrailingTPStrategy) improves(next, current decimal.Decimal) bool {
	if s.closesLong() {
		return next.GreaterThan(current)
	}
	return next.LessThan(current)
}
