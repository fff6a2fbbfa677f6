package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tradingterminal/pkg/utils"
)

// sliceSizePrecision 非末切片的数量精度
const sliceSizePrecision = 8

// TWAPStrategy 时间加权平均价格策略。
// 将 totalSize 均分为 slices 个子单按固定间隔下达；末切片吸收
// 除法余量，保证所有子单数量之和精确等于 totalSize。
type TWAPStrategy struct {
	params *TWAPParams
}

// NewTWAPStrategy 创建 TWAP 策略
func NewTWAPStrategy(p *TWAPParams) *TWAPStrategy {
	return &TWAPStrategy{params: p}
}

// TickInterval 切片间隔
func (s *TWAPStrategy) TickInterval() time.Duration {
	if s.params.IntervalSeconds > 0 {
		return time.Duration(s.params.IntervalSeconds) * time.Second
	}
	total := time.Duration(s.params.DurationMinutes) * time.Minute
	return total / time.Duration(s.params.Slices)
}

// Rehydrate TWAP 的全部内部状态都可由动作计数与 PlacedSize 推出
func (s *TWAPStrategy) Rehydrate(state *RuntimeState, history []*AdvancedOrderExecution) error {
	return nil
}

// Decide 决策下一个动作
func (s *TWAPStrategy) Decide(state *RuntimeState, snap *MarketSnapshot) Action {
	slicesDone := state.ActionCount(ExecutionActionPlace) + state.ActionCount(ExecutionActionSkip)
	deadline := state.Order.CreatedAt.Add(time.Duration(s.params.DurationMinutes) * time.Minute)

	if slicesDone >= s.params.Slices {
		if !state.Remaining.IsPositive() {
			return Complete()
		}
		if snap.Time.After(deadline) {
			// 时间窗结束，清掉残留子单后完成
			for id := range state.Children {
				return CancelChild(id)
			}
			return Complete()
		}
		return s.wait(s.TickInterval())
	}

	// 等待下一个切片时点。以 LastPlacedAt 为钟：存续子单的
	// 成交回报不算切片动作，不推迟下一个切片
	if slicesDone > 0 && !state.LastPlacedAt.IsZero() {
		elapsed := snap.Time.Sub(state.LastPlacedAt)
		if elapsed < s.TickInterval() {
			return s.wait(s.TickInterval() - elapsed)
		}
	}

	unplaced := state.Order.TotalSize.Sub(state.PlacedSize)
	if !unplaced.IsPositive() {
		if !state.Remaining.IsPositive() {
			return Complete()
		}
		return s.wait(s.TickInterval())
	}

	left := s.params.Slices - slicesDone
	var size decimal.Decimal
	if left <= 1 {
		size = unplaced
	} else {
		size = unplaced.DivRound(decimal.NewFromInt(int64(left)), sliceSizePrecision)
		if s.params.AdaptToVolume && snap.Book != nil {
			size = s.adaptSize(size, state.Order.Side, snap.Book, unplaced)
		}
	}

	if !size.IsPositive() {
		return Skip("slice size rounded to zero")
	}

	tag := "slice"
	if s.params.PriceLimit != nil {
		return PlaceLimit(size, *s.params.PriceLimit, tag)
	}
	return PlaceMarket(size, tag)
}

// adaptSize 根据对手盘口深度在 0.5x~2x 范围内伸缩切片
func (s *TWAPStrategy) adaptSize(base decimal.Decimal, side OrderSide, book *OrderBook, unplaced decimal.Decimal) decimal.Decimal {
	levels := book.Asks
	if side == OrderSideSell {
		levels = book.Bids
	}
	if len(levels) == 0 || !levels[0].Size.IsPositive() {
		return base
	}

	top := levels[0].Size
	lo := base.Div(decimal.NewFromInt(2))
	hi := base.Mul(decimal.NewFromInt(2))

	size := top
	if size.LessThan(lo) {
		size = lo
	}
	if size.GreaterThan(hi) {
		size = hi
	}
	if size.GreaterThan(unplaced) {
		size = unplaced
	}
	return size
}

func (s *TWAPStrategy) wait(d time.Duration) Action {
	if s.params.RandomizeIntervals {
		return Wait(utils.Jitter(d, 0.2))
	}
	return Wait(d)
}
