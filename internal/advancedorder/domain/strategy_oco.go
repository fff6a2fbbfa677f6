package domain

import (
	"fmt"
	"time"
)

// OCOStrategy one-cancels-other 策略。
// 两条腿先后挂出，任一腿出现成交即撤掉另一腿，
// 触发腿出清后订单完成。腿身份由 place 记录的先后次序恢复。
type OCOStrategy struct {
	params *OCOParams
}

// NewOCOStrategy 创建 OCO 策略
func NewOCOStrategy(p *OCOParams) *OCOStrategy {
	return &OCOStrategy{params: p}
}

// TickInterval 成交检查间隔
func (s *OCOStrategy) TickInterval() time.Duration {
	return time.Second
}

// Rehydrate 全部状态可由动作计数与子单表推出
func (s *OCOStrategy) Rehydrate(state *RuntimeState, history []*AdvancedOrderExecution) error {
	return nil
}

// Decide 决策下一个动作
func (s *OCOStrategy) Decide(state *RuntimeState, snap *MarketSnapshot) Action {
	placed := state.ActionCount(ExecutionActionPlace)
	if placed < len(s.params.Legs) {
		leg := s.params.Legs[placed]
		tag := fmt.Sprintf("leg_%d", placed)
		if leg.Type == LegTypeStop {
			return PlaceStop(leg.Size, leg.Price, false, tag)
		}
		return PlaceLimit(leg.Size, leg.Price, tag)
	}

	// 任一腿有成交（含下单即成交）后，撤掉未被触及的另一腿
	if state.CumFilled.IsPositive() {
		for _, c := range state.Children {
			if c.Filled.IsZero() {
				return CancelChild(c.ChildID)
			}
		}
		// 只剩触发腿（或已全部出清），等它走完
		if len(state.Children) == 0 {
			return Complete()
		}
		return Wait(s.TickInterval())
	}

	if len(state.Children) == 0 {
		// 两腿都未成交却都已消失，场外撤单
		return Complete()
	}
	return Wait(s.TickInterval())
}
