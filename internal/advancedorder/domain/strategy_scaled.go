package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// scaledPricePrecision 阶梯价位的计算精度
const scaledPricePrecision = 8

// ScaledLevel 预计算的阶梯档位
type ScaledLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// ScaledStrategy 阶梯订单策略。
// 构造时确定性地预计算 levels 个价位/数量档，随后逐档挂出
// 限价单；全部档位成交或撤销后完成。档位表只依赖参数，
// 恢复时重算即可，档位游标由 place/skip 记录数恢复。
type ScaledStrategy struct {
	params *ScaledParams
	levels []ScaledLevel
}

// NewScaledStrategy 创建阶梯策略并预计算档位表
func NewScaledStrategy(p *ScaledParams, totalSize decimal.Decimal) *ScaledStrategy {
	return &ScaledStrategy{
		params: p,
		levels: buildScaledLevels(p, totalSize),
	}
}

// TickInterval 挂档与成交检查间隔
func (s *ScaledStrategy) TickInterval() time.Duration {
	return time.Second
}

// Rehydrate 档位表可重算，无额外状态
func (s *ScaledStrategy) Rehydrate(state *RuntimeState, history []*AdvancedOrderExecution) error {
	return nil
}

// Decide 决策下一个动作
func (s *ScaledStrategy) Decide(state *RuntimeState, snap *MarketSnapshot) Action {
	// skip 也消费一个档位，否则零数量档会被反复跳过
	cursor := state.ActionCount(ExecutionActionPlace) + state.ActionCount(ExecutionActionSkip)
	if cursor < len(s.levels) {
		level := s.levels[cursor]
		if !level.Size.IsPositive() {
			return Skip("level size rounded to zero")
		}
		return PlaceLimit(level.Size, level.Price, "level")
	}
	if len(state.Children) == 0 {
		return Complete()
	}
	return Wait(s.TickInterval())
}

// buildScaledLevels 按分布方式展开价位与数量。
// linear/geometric 在 [priceStart, priceEnd] 上等距/指数分布价位、
// 均分数量；custom 价位等距、数量按用户权重分配。
// 末档吸收数量余量，保证各档之和精确等于 totalSize。
func buildScaledLevels(p *ScaledParams, totalSize decimal.Decimal) []ScaledLevel {
	n := p.Levels
	levels := make([]ScaledLevel, n)

	for i := 0; i < n; i++ {
		levels[i].Price = levelPrice(p, i)
	}

	assigned := decimal.Zero
	for i := 0; i < n-1; i++ {
		var size decimal.Decimal
		if p.Distribution == DistributionCustom {
			size = totalSize.Mul(p.SizeDistribution[i]).Round(sliceSizePrecision)
		} else {
			size = totalSize.DivRound(decimal.NewFromInt(int64(n)), sliceSizePrecision)
		}
		levels[i].Size = size
		assigned = assigned.Add(size)
	}
	levels[n-1].Size = totalSize.Sub(assigned)
	return levels
}

func levelPrice(p *ScaledParams, i int) decimal.Decimal {
	if p.Levels == 1 {
		return p.PriceStart
	}
	t := float64(i) / float64(p.Levels-1)

	if p.Distribution == DistributionGeometric {
		start, _ := p.PriceStart.Float64()
		end, _ := p.PriceEnd.Float64()
		price := start * math.Pow(end/start, t)
		return decimal.NewFromFloat(price).Round(scaledPricePrecision)
	}

	span := p.PriceEnd.Sub(p.PriceStart)
	step := span.Mul(decimal.NewFromFloat(t))
	return p.PriceStart.Add(step).Round(scaledPricePrecision)
}
