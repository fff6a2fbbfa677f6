package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChildRuntime 存续子单的运行时视图
type ChildRuntime struct {
	ChildID string
	Tag     string // 策略自用标记（切片序号、OCO 腿等），由策略在恢复时重建
	Size    decimal.Decimal
	Price   *decimal.Decimal
	Filled  decimal.Decimal
}

// Remaining 子单未成交量
func (c *ChildRuntime) Remaining() decimal.Decimal {
	return c.Size.Sub(c.Filled)
}

// RuntimeState 订单活跃期间由引擎独占持有的运行时状态。
// 进程重启后不可信，必须从执行日志重建（恢复契约）。
type RuntimeState struct {
	Order  *AdvancedOrder
	Params OrderParams

	CumFilled     decimal.Decimal
	Remaining     decimal.Decimal
	PlacedSize    decimal.Decimal // place 动作下达的数量之和
	CyclesElapsed int
	LastActionAt  time.Time
	// LastPlacedAt 最近一条 place/skip/reprice 记录的时间。
	// 策略的调度时钟：fill 等被动记录不推进它，否则高频成交
	// 回报会把下一个切片/追价时点无限后移
	LastPlacedAt time.Time
	NextSequence int64
	Children     map[string]*ChildRuntime

	actionCounts map[ExecutionAction]int
}

// NewRuntimeState 创建运行时状态
func NewRuntimeState(order *AdvancedOrder, params OrderParams) *RuntimeState {
	return &RuntimeState{
		Order:        order,
		Params:       params,
		CumFilled:    decimal.Zero,
		Remaining:    order.TotalSize,
		PlacedSize:   decimal.Zero,
		NextSequence: 1,
		Children:     make(map[string]*ChildRuntime),
		actionCounts: make(map[ExecutionAction]int),
	}
}

// ActionCount 返回日志中某动作出现的次数（含运行期追加）
func (s *RuntimeState) ActionCount(action ExecutionAction) int {
	return s.actionCounts[action]
}

// RecordApplied 引擎每追加一条执行记录后调用，保持计数与序号一致
func (s *RuntimeState) RecordApplied(e *AdvancedOrderExecution) {
	s.applyRecord(e)
}

// Rebuild 从执行日志重放出运行时状态。
// cumulativeFilled = Σ filledSize (resultStatus ∈ {filled, partial})，
// remainingSize = totalSize - cumulativeFilled。
func (s *RuntimeState) Rebuild(history []*AdvancedOrderExecution) {
	s.CumFilled = decimal.Zero
	s.PlacedSize = decimal.Zero
	s.LastActionAt = time.Time{}
	s.LastPlacedAt = time.Time{}
	s.NextSequence = 1
	s.Children = make(map[string]*ChildRuntime)
	s.actionCounts = make(map[ExecutionAction]int)

	for _, e := range history {
		s.applyRecord(e)
	}

	s.Remaining = s.Order.TotalSize.Sub(s.CumFilled)
}

func (s *RuntimeState) applyRecord(e *AdvancedOrderExecution) {
	if e.SequenceNumber >= s.NextSequence {
		s.NextSequence = e.SequenceNumber + 1
	}
	s.actionCounts[e.Action]++
	if !e.Timestamp.IsZero() {
		s.LastActionAt = e.Timestamp
		switch e.Action {
		case ExecutionActionPlace, ExecutionActionSkip, ExecutionActionReprice:
			s.LastPlacedAt = e.Timestamp
		}
	}

	if e.CountsAsFill() {
		s.CumFilled = s.CumFilled.Add(e.FilledSize)
		s.Remaining = s.Order.TotalSize.Sub(s.CumFilled)
	}

	switch e.Action {
	case ExecutionActionPlace:
		s.PlacedSize = s.PlacedSize.Add(e.RequestedSize)
		switch e.ResultStatus {
		case ExecutionResultPending, ExecutionResultPartial:
			s.Children[e.ChildID] = childFromRecord(e)
		}
	case ExecutionActionReprice:
		// reprice 是 cancel+replace：使用 reprice 的策略只维护单一存续子单
		s.Children = map[string]*ChildRuntime{
			e.ChildID: childFromRecord(e),
		}
	case ExecutionActionFill:
		if c, ok := s.Children[e.ChildID]; ok {
			c.Filled = c.Filled.Add(e.FilledSize)
			if e.ResultStatus == ExecutionResultFilled || !c.Remaining().IsPositive() {
				delete(s.Children, e.ChildID)
			}
		}
	case ExecutionActionCancel:
		if e.ResultStatus != ExecutionResultErrored {
			delete(s.Children, e.ChildID)
		}
	}
}

func childFromRecord(e *AdvancedOrderExecution) *ChildRuntime {
	c := &ChildRuntime{
		ChildID: e.ChildID,
		Size:    e.RequestedSize,
		Filled:  e.FilledSize,
	}
	if e.RequestedPrice.Valid {
		p := e.RequestedPrice.Decimal
		c.Price = &p
	}
	return c
}
