package application_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/application"
	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
	"github.com/wyfcoding/tradingterminal/pkg/config"
	"github.com/wyfcoding/tradingterminal/pkg/metrics"
	"github.com/wyfcoding/tradingterminal/pkg/utils"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxRetries:        2,
		BaseDelayMs:       1,
		BackoffMultiplier: 2.0,
		DefaultTickMs:     5,
	}
}

type engineFixture struct {
	gateway   *mockGateway
	orders    *memOrderRepo
	execs     *memExecRepo
	publisher *recordingPublisher
	engine    *application.Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		gateway:   newMockGateway(),
		orders:    newMemOrderRepo(),
		execs:     newMemExecRepo(),
		publisher: &recordingPublisher{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = application.NewEngine(
		f.gateway, f.orders, f.execs, f.publisher,
		metrics.New("test"), logger, testEngineConfig(),
		application.WithWaitClamp(5*time.Millisecond),
	)
	return f
}

// activeOrder 建一个已处于 active 状态并落库的订单
func (f *engineFixture) activeOrder(t *testing.T, orderType domain.OrderType, totalSize string, params domain.OrderParams) *domain.AdvancedOrder {
	t.Helper()
	order := domain.NewAdvancedOrder("ADV-1", "user-1", orderType, "BTC-USDT", domain.OrderSideBuy, d(totalSize), utils.ToJSON(params))
	order.Status = domain.OrderStatusActive
	order.CreatedAt = time.Now()
	require.NoError(t, f.orders.Save(context.Background(), order))
	return order
}

// assertSequential 序号从 1 起严格连续递增
func assertSequential(t *testing.T, records []*domain.AdvancedOrderExecution) {
	t.Helper()
	for i, e := range records {
		assert.Equal(t, int64(i+1), e.SequenceNumber, "sequence gap at index %d", i)
	}
}

// TestEngine_TWAPRunsToCompletion TWAP 全程自动执行到完成，
// 切片数量之和精确等于 totalSize
func TestEngine_TWAPRunsToCompletion(t *testing.T) {
	f := newEngineFixture(t)
	f.gateway.autoFill = true

	order := f.activeOrder(t, domain.OrderTypeTWAP, "10",
		&domain.TWAPParams{DurationMinutes: 5, Slices: 4, IntervalSeconds: 1})

	require.NoError(t, f.engine.Drive(context.Background(), order, nil))

	require.Eventually(t, func() bool {
		return f.orders.status("ADV-1") == domain.OrderStatusCompleted
	}, 15*time.Second, 20*time.Millisecond)

	records := f.execs.all("ADV-1")
	assertSequential(t, records)

	sum := decimal.Zero
	places := 0
	for _, e := range records {
		if e.Action == domain.ExecutionActionPlace {
			places++
			sum = sum.Add(e.RequestedSize)
		}
	}
	assert.Equal(t, 4, places)
	assert.True(t, sum.Equal(d("10")), "slice sum %s must equal total", sum)

	last, ok := f.publisher.lastLifecycle()
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusCompleted, last.ToStatus)
}

// TestEngine_PauseResumeTWAP 暂停停止推进但保留日志，
// 恢复后从中断点继续，总量守恒
func TestEngine_PauseResumeTWAP(t *testing.T) {
	f := newEngineFixture(t)
	f.gateway.autoFill = true

	order := f.activeOrder(t, domain.OrderTypeTWAP, "12",
		&domain.TWAPParams{DurationMinutes: 6, Slices: 6, IntervalSeconds: 1})

	require.NoError(t, f.engine.Drive(context.Background(), order, nil))

	require.Eventually(t, func() bool {
		return f.execs.countAction("ADV-1", domain.ExecutionActionPlace) >= 2
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, f.engine.Pause("ADV-1"))
	f.engine.WaitIdle("ADV-1")
	assert.Equal(t, domain.OrderStatusPaused, f.orders.status("ADV-1"))

	pausedCount := len(f.execs.all("ADV-1"))
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, pausedCount, len(f.execs.all("ADV-1")), "paused order must not progress")

	// 恢复：重新迁移到 active 并从日志重建后继续驱动
	resumed, err := f.orders.FindByOrderID(context.Background(), "ADV-1")
	require.NoError(t, err)
	require.NoError(t, resumed.Transition(domain.OrderStatusActive))
	require.NoError(t, f.orders.UpdateStatus(context.Background(), "ADV-1", domain.OrderStatusPaused, domain.OrderStatusActive))

	history, err := f.execs.LoadHistory(context.Background(), "ADV-1")
	require.NoError(t, err)
	require.NoError(t, f.engine.Drive(context.Background(), resumed, history))

	require.Eventually(t, func() bool {
		return f.orders.status("ADV-1") == domain.OrderStatusCompleted
	}, 15*time.Second, 20*time.Millisecond)

	records := f.execs.all("ADV-1")
	assertSequential(t, records)

	sum := decimal.Zero
	places := 0
	for _, e := range records {
		if e.Action == domain.ExecutionActionPlace {
			places++
			sum = sum.Add(e.RequestedSize)
		}
	}
	assert.Equal(t, 6, places)
	assert.True(t, sum.Equal(d("12")), "pause/resume must conserve total, got %s", sum)
}

// TestEngine_LimitChaseExhaustion 追价耗尽且 give=cancel：
// 日志为 1 place + 3 reprice + 1 cancel，订单 failed
func TestEngine_LimitChaseExhaustion(t *testing.T) {
	f := newEngineFixture(t)
	f.gateway.bookDrift = d("5") // 盘口持续上移，每次检查都需要追价

	order := f.activeOrder(t, domain.OrderTypeLimitChase, "2",
		&domain.LimitChaseParams{
			Offset:               d("1"),
			MaxChases:            3,
			ChaseIntervalSeconds: 1,
			GiveBehavior:         domain.GiveBehaviorCancel,
		})

	require.NoError(t, f.engine.Drive(context.Background(), order, nil))

	require.Eventually(t, func() bool {
		return f.orders.status("ADV-1") == domain.OrderStatusFailed
	}, 20*time.Second, 20*time.Millisecond)

	records := f.execs.all("ADV-1")
	assertSequential(t, records)
	require.Len(t, records, 5)

	assert.Equal(t, domain.ExecutionActionPlace, records[0].Action)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, domain.ExecutionActionReprice, records[i].Action, "record %d", i)
	}
	assert.Equal(t, domain.ExecutionActionCancel, records[4].Action, "the cancel record is the failure record")
	assert.Equal(t, domain.ExecutionResultCancelled, records[4].ResultStatus)
}

// TestEngine_OCOOneLegFill 一腿成交后另一腿恰好收到一次撤单，
// 订单 completed 且无后续动作
func TestEngine_OCOOneLegFill(t *testing.T) {
	f := newEngineFixture(t)

	order := f.activeOrder(t, domain.OrderTypeOCO, "1",
		&domain.OCOParams{Legs: []domain.OCOLeg{
			{Type: domain.LegTypeLimit, Price: d("55000"), Size: d("1")},
			{Type: domain.LegTypeStop, Price: d("48000"), Size: d("1")},
		}})

	require.NoError(t, f.engine.Drive(context.Background(), order, nil))

	require.Eventually(t, func() bool {
		return f.execs.countAction("ADV-1", domain.ExecutionActionPlace) == 2
	}, 10*time.Second, 10*time.Millisecond)

	f.gateway.fillChild("CHILD-1", d("1"))

	require.Eventually(t, func() bool {
		return f.orders.status("ADV-1") == domain.OrderStatusCompleted
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.gateway.cancelCount("CHILD-2"), "other leg gets exactly one cancel")
	assert.Equal(t, 1, f.execs.countAction("ADV-1", domain.ExecutionActionFill))
	assertSequential(t, f.execs.all("ADV-1"))
}

// TestEngine_AtMostOneDriver 同一订单不允许两个执行循环
func TestEngine_AtMostOneDriver(t *testing.T) {
	f := newEngineFixture(t)
	f.gateway.autoFill = true

	order := f.activeOrder(t, domain.OrderTypeTWAP, "10",
		&domain.TWAPParams{DurationMinutes: 60, Slices: 10, IntervalSeconds: 60})

	require.NoError(t, f.engine.Drive(context.Background(), order, nil))
	err := f.engine.Drive(context.Background(), order, nil)
	assert.ErrorIs(t, err, application.ErrAlreadyDriven)

	require.NoError(t, f.engine.Cancel("ADV-1"))
	f.engine.WaitIdle("ADV-1")
}

// TestEngine_TransientRetryAppendsErrorRecords Transient 失败
// 重试成功：每次失败占一个新序号，历史从不改写
func TestEngine_TransientRetryAppendsErrorRecords(t *testing.T) {
	f := newEngineFixture(t)
	f.gateway.autoFill = true
	f.gateway.placeErrs = []error{
		domain.NewTransientError("place_order", errors.New("timeout")),
		domain.NewTransientError("place_order", errors.New("timeout")),
	}

	order := f.activeOrder(t, domain.OrderTypeTWAP, "2",
		&domain.TWAPParams{DurationMinutes: 2, Slices: 2, IntervalSeconds: 1})

	require.NoError(t, f.engine.Drive(context.Background(), order, nil))

	require.Eventually(t, func() bool {
		return f.orders.status("ADV-1") == domain.OrderStatusCompleted
	}, 15*time.Second, 20*time.Millisecond)

	records := f.execs.all("ADV-1")
	assertSequential(t, records)
	assert.Equal(t, 2, f.execs.countAction("ADV-1", domain.ExecutionActionError))
	assert.Equal(t, 2, f.execs.countAction("ADV-1", domain.ExecutionActionPlace))
}

// TestEngine_RetryExhaustionFailsOrder 重试预算耗尽订单失败
func TestEngine_RetryExhaustionFailsOrder(t *testing.T) {
	f := newEngineFixture(t)
	f.gateway.placeErrs = []error{
		domain.NewTransientError("place_order", errors.New("timeout")),
		domain.NewTransientError("place_order", errors.New("timeout")),
		domain.NewTransientError("place_order", errors.New("timeout")),
	}

	order := f.activeOrder(t, domain.OrderTypeTWAP, "2",
		&domain.TWAPParams{DurationMinutes: 2, Slices: 2, IntervalSeconds: 1})

	require.NoError(t, f.engine.Drive(context.Background(), order, nil))

	require.Eventually(t, func() bool {
		return f.orders.status("ADV-1") == domain.OrderStatusFailed
	}, 10*time.Second, 10*time.Millisecond)

	// 3 次尝试记录 + 1 条终态故障记录
	assert.Equal(t, 4, f.execs.countAction("ADV-1", domain.ExecutionActionError))
	assert.Equal(t, 0, f.execs.countAction("ADV-1", domain.ExecutionActionPlace))
	assertSequential(t, f.execs.all("ADV-1"))
}

// TestEngine_GatewayCallTimeout 慢网关调用被单次限时截断，
// 超时按瞬时故障重试，预算耗尽后订单失败
func TestEngine_GatewayCallTimeout(t *testing.T) {
	f := newEngineFixture(t)
	f.gateway.placeDelay = 200 * time.Millisecond

	cfg := testEngineConfig()
	cfg.CallTimeoutMs = 20
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := application.NewEngine(
		f.gateway, f.orders, f.execs, f.publisher,
		metrics.New("test"), logger, cfg,
		application.WithWaitClamp(5*time.Millisecond),
	)

	order := f.activeOrder(t, domain.OrderTypeTWAP, "2",
		&domain.TWAPParams{DurationMinutes: 2, Slices: 2, IntervalSeconds: 1})

	require.NoError(t, engine.Drive(context.Background(), order, nil))

	require.Eventually(t, func() bool {
		return f.orders.status("ADV-1") == domain.OrderStatusFailed
	}, 10*time.Second, 10*time.Millisecond)

	// 每次超时尝试都留 error 记录，加 1 条终态故障记录；
	// 没有任何子单落地
	assert.Equal(t, 4, f.execs.countAction("ADV-1", domain.ExecutionActionError))
	assert.Equal(t, 0, f.execs.countAction("ADV-1", domain.ExecutionActionPlace))
	assertSequential(t, f.execs.all("ADV-1"))
}

// TestEngine_ResumesFromHistory 崩溃恢复：运行时状态完全由
// 执行日志重建，恢复后只补剩余切片
func TestEngine_ResumesFromHistory(t *testing.T) {
	f := newEngineFixture(t)
	f.gateway.autoFill = true

	order := f.activeOrder(t, domain.OrderTypeTWAP, "10",
		&domain.TWAPParams{DurationMinutes: 4, Slices: 4, IntervalSeconds: 1})

	// 崩溃前已有两个切片成交
	base := time.Now().Add(-10 * time.Second)
	for seq := int64(1); seq <= 2; seq++ {
		require.NoError(t, f.execs.Append(context.Background(), &domain.AdvancedOrderExecution{
			ExecutionID:     fmt.Sprintf("pre-crash-%d", seq),
			AdvancedOrderID: "ADV-1",
			SequenceNumber:  seq,
			Action:          domain.ExecutionActionPlace,
			ChildID:         "OLD",
			RequestedSize:   d("2.5"),
			ResultStatus:    domain.ExecutionResultFilled,
			FilledSize:      d("2.5"),
			Timestamp:       base.Add(time.Duration(seq) * time.Second),
		}))
	}

	history, err := f.execs.LoadHistory(context.Background(), "ADV-1")
	require.NoError(t, err)
	require.NoError(t, f.engine.Drive(context.Background(), order, history))

	require.Eventually(t, func() bool {
		return f.orders.status("ADV-1") == domain.OrderStatusCompleted
	}, 15*time.Second, 20*time.Millisecond)

	records := f.execs.all("ADV-1")
	assertSequential(t, records)

	sum := decimal.Zero
	places := 0
	for _, e := range records {
		if e.Action == domain.ExecutionActionPlace {
			places++
			sum = sum.Add(e.RequestedSize)
		}
	}
	assert.Equal(t, 4, places, "resume places only the remaining slices")
	assert.True(t, sum.Equal(d("10")), "conservation across crash, got %s", sum)
}

// TestEngine_CancelCleansUpChildren 取消订单尽力撤掉存续子单
func TestEngine_CancelCleansUpChildren(t *testing.T) {
	f := newEngineFixture(t)

	order := f.activeOrder(t, domain.OrderTypeIceberg, "5",
		&domain.IcebergParams{DisplaySize: d("1"), PriceLimit: d("50000"), RefreshBehavior: domain.RefreshImmediate})

	require.NoError(t, f.engine.Drive(context.Background(), order, nil))

	require.Eventually(t, func() bool {
		return f.execs.countAction("ADV-1", domain.ExecutionActionPlace) >= 1
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, f.engine.Cancel("ADV-1"))
	f.engine.WaitIdle("ADV-1")

	assert.Equal(t, domain.OrderStatusCancelled, f.orders.status("ADV-1"))
	assert.Equal(t, 1, f.gateway.cancelCount("CHILD-1"))
	assert.GreaterOrEqual(t, f.execs.countAction("ADV-1", domain.ExecutionActionCancel), 1)
}

// TestEngine_PanicBecomesFault 执行循环 panic 被捕获，
// 订单落 failed 而不是留在 active
func TestEngine_PanicBecomesFault(t *testing.T) {
	f := newEngineFixture(t)
	f.gateway.book = nil // 取盘口快照时空指针诱发 panic

	order := f.activeOrder(t, domain.OrderTypeIceberg, "5",
		&domain.IcebergParams{DisplaySize: d("1"), PriceLimit: d("50000"), RefreshBehavior: domain.RefreshImmediate})

	require.NoError(t, f.engine.Drive(context.Background(), order, nil))

	require.Eventually(t, func() bool {
		return f.orders.status("ADV-1") == domain.OrderStatusFailed
	}, 10*time.Second, 10*time.Millisecond)
}
