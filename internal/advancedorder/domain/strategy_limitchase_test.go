package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
)

func chaseParams(give domain.GiveBehavior) *domain.LimitChaseParams {
	return &domain.LimitChaseParams{
		Offset:               d("1"),
		MaxChases:            3,
		ChaseIntervalSeconds: 5,
		GiveBehavior:         give,
	}
}

func chaseState(t *testing.T, params *domain.LimitChaseParams, history []*domain.AdvancedOrderExecution) (*domain.LimitChaseStrategy, *domain.RuntimeState) {
	t.Helper()
	order := newTestOrder(domain.OrderTypeLimitChase, "2")
	strategy := domain.NewLimitChaseStrategy(params)
	state := domain.NewRuntimeState(order, params)
	state.Rebuild(history)
	require.NoError(t, strategy.Rehydrate(state, history))
	return strategy, state
}

func placedAt(seq int64, childID, price string, ts time.Time) *domain.AdvancedOrderExecution {
	rec := record(seq, domain.ExecutionActionPlace, domain.ExecutionResultPending, childID)
	rec.RequestedSize = d("2")
	rec.RequestedPrice = decimal.NullDecimal{Decimal: d(price), Valid: true}
	rec.Timestamp = ts
	return rec
}

func repricedAt(seq int64, childID, price string, ts time.Time) *domain.AdvancedOrderExecution {
	rec := record(seq, domain.ExecutionActionReprice, domain.ExecutionResultPending, childID)
	rec.RequestedSize = d("2")
	rec.RequestedPrice = decimal.NullDecimal{Decimal: d(price), Valid: true}
	rec.Timestamp = ts
	return rec
}

// TestLimitChase_InitialPlace 首次决策在最优买价加偏移处挂限价单
func TestLimitChase_InitialPlace(t *testing.T) {
	strategy, state := chaseState(t, chaseParams(domain.GiveBehaviorCancel), nil)

	snap := &domain.MarketSnapshot{Time: time.Now(), Book: testBook()}
	action := strategy.Decide(state, snap)

	require.Equal(t, domain.ActionPlace, action.Type)
	assert.Equal(t, domain.ChildOrderLimit, action.Kind)
	require.NotNil(t, action.Price)
	assert.True(t, action.Price.Equal(d("49991")), "best bid 49990 + offset 1")
	assert.True(t, action.Size.Equal(d("2")))
}

// TestLimitChase_RepricesOnDrift 行情移动且间隔已到则撤换跟随
func TestLimitChase_RepricesOnDrift(t *testing.T) {
	base := time.Now()
	history := []*domain.AdvancedOrderExecution{placedAt(1, "C1", "49991", base)}
	strategy, state := chaseState(t, chaseParams(domain.GiveBehaviorCancel), history)

	book := testBook()
	book.BestBid = d("50050")

	// 间隔未到先等待
	action := strategy.Decide(state, &domain.MarketSnapshot{Time: base.Add(time.Second), Book: book})
	assert.Equal(t, domain.ActionWait, action.Type)

	// 间隔已到触发追价
	action = strategy.Decide(state, &domain.MarketSnapshot{Time: base.Add(6 * time.Second), Book: book})
	require.Equal(t, domain.ActionReprice, action.Type)
	assert.Equal(t, "C1", action.ChildID)
	assert.True(t, action.NewPrice.Equal(d("50051")))
}

// TestLimitChase_FillsDoNotDelayReprice 子单的部分成交回报不推迟追价检查
func TestLimitChase_FillsDoNotDelayReprice(t *testing.T) {
	base := time.Now()
	history := []*domain.AdvancedOrderExecution{placedAt(1, "C1", "49991", base)}
	for seq := int64(2); seq <= 5; seq++ {
		fill := record(seq, domain.ExecutionActionFill, domain.ExecutionResultPartial, "C1")
		fill.FilledSize = d("0.1")
		fill.Timestamp = base.Add(time.Duration(seq-1) * time.Second)
		history = append(history, fill)
	}
	strategy, state := chaseState(t, chaseParams(domain.GiveBehaviorCancel), history)

	book := testBook()
	book.BestBid = d("50050")

	// 间隔从挂单时刻起算，成交流不能重置它
	action := strategy.Decide(state, &domain.MarketSnapshot{Time: base.Add(6 * time.Second), Book: book})
	require.Equal(t, domain.ActionReprice, action.Type)
	assert.Equal(t, "C1", action.ChildID)
	assert.True(t, action.NewPrice.Equal(d("50051")))
}

// TestLimitChase_ExhaustionCancel 追价耗尽且 give=cancel：
// 撤单即终态
func TestLimitChase_ExhaustionCancel(t *testing.T) {
	base := time.Now()
	history := []*domain.AdvancedOrderExecution{
		placedAt(1, "C1", "49991", base),
		repricedAt(2, "C2", "49995", base.Add(5*time.Second)),
		repricedAt(3, "C3", "49999", base.Add(10*time.Second)),
		repricedAt(4, "C4", "50003", base.Add(15*time.Second)),
	}
	strategy, state := chaseState(t, chaseParams(domain.GiveBehaviorCancel), history)

	book := testBook()
	book.BestBid = d("50100")

	action := strategy.Decide(state, &domain.MarketSnapshot{Time: base.Add(21 * time.Second), Book: book})
	require.Equal(t, domain.ActionCancel, action.Type)
	assert.True(t, action.Fatal, "exhausted chase with cancel behavior is terminal")
	assert.Equal(t, "C4", action.ChildID)
}

// TestLimitChase_ExhaustionMarket 追价耗尽且 give=market：
// 先撤限价单，下一轮补市价单吃掉剩余
func TestLimitChase_ExhaustionMarket(t *testing.T) {
	base := time.Now()
	history := []*domain.AdvancedOrderExecution{
		placedAt(1, "C1", "49991", base),
		repricedAt(2, "C2", "49995", base.Add(5*time.Second)),
		repricedAt(3, "C3", "49999", base.Add(10*time.Second)),
		repricedAt(4, "C4", "50003", base.Add(15*time.Second)),
	}
	strategy, state := chaseState(t, chaseParams(domain.GiveBehaviorMarket), history)

	book := testBook()
	book.BestBid = d("50100")

	action := strategy.Decide(state, &domain.MarketSnapshot{Time: base.Add(21 * time.Second), Book: book})
	require.Equal(t, domain.ActionCancel, action.Type)
	assert.False(t, action.Fatal)

	// 撤单落账后子单消失
	cancelRec := record(5, domain.ExecutionActionCancel, domain.ExecutionResultCancelled, "C4")
	state.RecordApplied(cancelRec)

	action = strategy.Decide(state, &domain.MarketSnapshot{Time: base.Add(22 * time.Second), Book: book})
	require.Equal(t, domain.ActionPlace, action.Type)
	assert.Equal(t, domain.ChildOrderMarket, action.Kind)
	assert.True(t, action.Size.Equal(d("2")))
}

// TestLimitChase_ExhaustionWait 追价耗尽且 give=wait：原地等成交
func TestLimitChase_ExhaustionWait(t *testing.T) {
	base := time.Now()
	history := []*domain.AdvancedOrderExecution{
		placedAt(1, "C1", "49991", base),
		repricedAt(2, "C2", "49995", base.Add(5*time.Second)),
		repricedAt(3, "C3", "49999", base.Add(10*time.Second)),
		repricedAt(4, "C4", "50003", base.Add(15*time.Second)),
	}
	strategy, state := chaseState(t, chaseParams(domain.GiveBehaviorWait), history)

	book := testBook()
	book.BestBid = d("50100")

	action := strategy.Decide(state, &domain.MarketSnapshot{Time: base.Add(21 * time.Second), Book: book})
	assert.Equal(t, domain.ActionWait, action.Type)
}

// TestLimitChase_RehydrateGaveUp 崩溃恢复时由日志重建 market 让步阶段
func TestLimitChase_RehydrateGaveUp(t *testing.T) {
	base := time.Now()
	history := []*domain.AdvancedOrderExecution{
		placedAt(1, "C1", "49991", base),
		repricedAt(2, "C2", "49995", base.Add(5*time.Second)),
		repricedAt(3, "C3", "49999", base.Add(10*time.Second)),
		repricedAt(4, "C4", "50003", base.Add(15*time.Second)),
		record(5, domain.ExecutionActionCancel, domain.ExecutionResultCancelled, "C4"),
	}
	strategy, state := chaseState(t, chaseParams(domain.GiveBehaviorMarket), history)

	action := strategy.Decide(state, &domain.MarketSnapshot{Time: base.Add(30 * time.Second), Book: testBook()})
	require.Equal(t, domain.ActionPlace, action.Type)
	assert.Equal(t, domain.ChildOrderMarket, action.Kind, "resumed order continues the give-up leg")
}

// TestLimitChase_CompleteOnFill 全部成交后完成
func TestLimitChase_CompleteOnFill(t *testing.T) {
	base := time.Now()
	placed := placedAt(1, "C1", "49991", base)
	fill := record(2, domain.ExecutionActionFill, domain.ExecutionResultFilled, "C1")
	fill.FilledSize = d("2")
	fill.Timestamp = base.Add(time.Second)

	strategy, state := chaseState(t, chaseParams(domain.GiveBehaviorCancel), []*domain.AdvancedOrderExecution{placed, fill})

	action := strategy.Decide(state, &domain.MarketSnapshot{Time: base.Add(2 * time.Second), Book: testBook()})
	assert.Equal(t, domain.ActionComplete, action.Type)
}
