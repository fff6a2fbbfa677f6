package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
)

func trailingParams() *domain.TrailingTPParams {
	return &domain.TrailingTPParams{
		PositionID:            "POS-1",
		TrailDistance:         d("100"),
		MinProfit:             d("50"),
		UpdateIntervalSeconds: 5,
	}
}

func trailingSetup(t *testing.T, history []*domain.AdvancedOrderExecution) (*domain.TrailingTPStrategy, *domain.RuntimeState) {
	t.Helper()
	params := trailingParams()
	// 平多仓：卖出方向
	order := domain.NewAdvancedOrder("ADV-1", "user-1", domain.OrderTypeTrailingTP, "BTC-USDT", domain.OrderSideSell, d("1"), "{}")
	strategy := domain.NewTrailingTPStrategy(params, order.Side)
	state := domain.NewRuntimeState(order, params)
	state.Rebuild(history)
	require.NoError(t, strategy.Rehydrate(state, history))
	return strategy, state
}

func longPosition(mark, pnl string) *domain.Position {
	return &domain.Position{
		PositionID:    "POS-1",
		Symbol:        "BTC-USDT",
		Side:          domain.OrderSideBuy,
		Size:          d("1"),
		EntryPrice:    d("50000"),
		MarkPrice:     d(mark),
		UnrealizedPnl: d(pnl),
	}
}

// TestTrailingTP_WaitsBelowMinProfit 盈利未达标不挂保护单
func TestTrailingTP_WaitsBelowMinProfit(t *testing.T) {
	strategy, state := trailingSetup(t, nil)

	snap := &domain.MarketSnapshot{Time: time.Now(), Book: testBook(), Position: longPosition("50040", "40")}
	action := strategy.Decide(state, snap)
	assert.Equal(t, domain.ActionWait, action.Type)
}

// TestTrailingTP_ArmsAtMinProfit 盈利达标后在极值回撤处挂只减仓止损
func TestTrailingTP_ArmsAtMinProfit(t *testing.T) {
	strategy, state := trailingSetup(t, nil)

	snap := &domain.MarketSnapshot{Time: time.Now(), Book: testBook(), Position: longPosition("50200", "200")}
	action := strategy.Decide(state, snap)

	require.Equal(t, domain.ActionPlace, action.Type)
	assert.Equal(t, domain.ChildOrderStop, action.Kind)
	assert.True(t, action.ReduceOnly)
	require.NotNil(t, action.TriggerPrice)
	assert.True(t, action.TriggerPrice.Equal(d("50100")), "stop at peak 50200 - trail 100")
}

// TestTrailingTP_RatchetsUpOnly 极值改善才上移止损，回撤不动
func TestTrailingTP_RatchetsUpOnly(t *testing.T) {
	base := time.Now()
	placed := record(1, domain.ExecutionActionPlace, domain.ExecutionResultPending, "STOP-1")
	placed.RequestedSize = d("1")
	placed.RequestedPrice = decimal.NullDecimal{Decimal: d("50100"), Valid: true}
	placed.Timestamp = base

	strategy, state := trailingSetup(t, []*domain.AdvancedOrderExecution{placed})

	// 回撤：不动
	snap := &domain.MarketSnapshot{Time: base.Add(6 * time.Second), Book: testBook(), Position: longPosition("50150", "150")}
	action := strategy.Decide(state, snap)
	assert.Equal(t, domain.ActionWait, action.Type)

	// 新高：上移
	snap = &domain.MarketSnapshot{Time: base.Add(12 * time.Second), Book: testBook(), Position: longPosition("50400", "400")}
	action = strategy.Decide(state, snap)
	require.Equal(t, domain.ActionReprice, action.Type)
	assert.Equal(t, "STOP-1", action.ChildID)
	assert.True(t, action.NewPrice.Equal(d("50300")))
}

// TestTrailingTP_RehydratePeakFromStop 崩溃恢复时由止损触发价反推极值
func TestTrailingTP_RehydratePeakFromStop(t *testing.T) {
	base := time.Now()
	placed := record(1, domain.ExecutionActionPlace, domain.ExecutionResultPending, "STOP-1")
	placed.RequestedSize = d("1")
	placed.RequestedPrice = decimal.NullDecimal{Decimal: d("50100"), Valid: true}
	placed.Timestamp = base

	strategy, state := trailingSetup(t, []*domain.AdvancedOrderExecution{placed})

	// 恢复后的极值是 50200：标记价 50180 低于极值，不应上移
	snap := &domain.MarketSnapshot{Time: base.Add(6 * time.Second), Book: testBook(), Position: longPosition("50180", "180")}
	action := strategy.Decide(state, snap)
	assert.Equal(t, domain.ActionWait, action.Type)
}

// TestTrailingTP_PositionGoneFails 持仓被场外平掉立即失败
func TestTrailingTP_PositionGoneFails(t *testing.T) {
	strategy, state := trailingSetup(t, nil)

	snap := &domain.MarketSnapshot{Time: time.Now(), Book: testBook(), Position: nil}
	action := strategy.Decide(state, snap)
	assert.Equal(t, domain.ActionFail, action.Type)
}

// TestTrailingTP_CompletesWhenFilled 保护单成交即止盈完成
func TestTrailingTP_CompletesWhenFilled(t *testing.T) {
	base := time.Now()
	placed := record(1, domain.ExecutionActionPlace, domain.ExecutionResultPending, "STOP-1")
	placed.RequestedSize = d("1")
	placed.RequestedPrice = decimal.NullDecimal{Decimal: d("50100"), Valid: true}
	fill := record(2, domain.ExecutionActionFill, domain.ExecutionResultFilled, "STOP-1")
	fill.FilledSize = d("1")
	fill.Timestamp = base

	strategy, state := trailingSetup(t, []*domain.AdvancedOrderExecution{placed, fill})

	snap := &domain.MarketSnapshot{Time: base.Add(time.Second), Book: testBook(), Position: longPosition("50100", "100")}
	action := strategy.Decide(state, snap)
	assert.Equal(t, domain.ActionComplete, action.Type)
}
