package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// IcebergStrategy 冰山订单策略。
// 始终只露出一张 display_size 的限价单，钉在己方最优报价上；
// 子单成交或消失后按 refresh_behavior 立即或延迟补下一块，
// 直到 total_size 全部成交。补单时若最优报价已越过 price_limit
// 则订单失败。
type IcebergStrategy struct {
	params *IcebergParams
}

// NewIcebergStrategy 创建冰山策略
func NewIcebergStrategy(p *IcebergParams) *IcebergStrategy {
	return &IcebergStrategy{params: p}
}

// TickInterval 成交检查间隔
func (s *IcebergStrategy) TickInterval() time.Duration {
	return time.Second
}

// Rehydrate 露出块大小与剩余量均可由状态推出
func (s *IcebergStrategy) Rehydrate(state *RuntimeState, history []*AdvancedOrderExecution) error {
	return nil
}

// Decide 决策下一个动作
func (s *IcebergStrategy) Decide(state *RuntimeState, snap *MarketSnapshot) Action {
	if !state.Remaining.IsPositive() {
		return Complete()
	}

	// 露出块还在场内，等成交
	if singleChild(state) != nil {
		return Wait(s.TickInterval())
	}

	// 延迟补单只作用于首块之后的刷新
	if s.params.RefreshBehavior == RefreshDelayed && state.ActionCount(ExecutionActionPlace) > 0 {
		delay := time.Duration(s.params.RefreshDelaySeconds) * time.Second
		if elapsed := snap.Time.Sub(state.LastActionAt); elapsed < delay {
			return Wait(delay - elapsed)
		}
	}

	price := snap.Book.BestQuote(state.Order.Side)
	if s.breaches(state.Order.Side, price) {
		return Fail(fmt.Sprintf("best quote %s breaches price limit %s", price, s.params.PriceLimit))
	}

	chunk := state.Remaining
	if chunk.GreaterThan(s.params.DisplaySize) {
		chunk = s.params.DisplaySize
	}
	return PlaceLimit(chunk, price, "chunk")
}

func (s *IcebergStrategy) breaches(side OrderSide, best decimal.Decimal) bool {
	if side == OrderSideBuy {
		return best.GreaterThan(s.params.PriceLimit)
	}
	return best.LessThan(s.params.PriceLimit)
}
