package application_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/application"
	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
	"github.com/wyfcoding/tradingterminal/pkg/metrics"
	"github.com/wyfcoding/tradingterminal/pkg/utils"
)

type managerFixture struct {
	gateway *mockGateway
	orders  *memOrderRepo
	execs   *memExecRepo
	manager *application.EngineManager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		gateway: newMockGateway(),
		orders:  newMemOrderRepo(),
		execs:   newMemExecRepo(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.manager = application.NewEngineManager(
		f.gateway, f.orders, f.execs, &recordingPublisher{},
		metrics.New("test"), logger, testEngineConfig(),
		application.WithWaitClamp(5*time.Millisecond),
	)
	return f
}

func (f *managerFixture) seedActive(t *testing.T, orderID, userID string) {
	t.Helper()
	order := domain.NewAdvancedOrder(orderID, userID, domain.OrderTypeTWAP, "BTC-USDT", domain.OrderSideBuy, d("4"),
		utils.ToJSON(&domain.TWAPParams{DurationMinutes: 2, Slices: 2, IntervalSeconds: 1}))
	order.Status = domain.OrderStatusActive
	order.CreatedAt = time.Now()
	require.NoError(t, f.orders.Save(context.Background(), order))
}

// TestEngineManager_EngineFor 同一用户复用同一引擎实例
func TestEngineManager_EngineFor(t *testing.T) {
	f := newManagerFixture(t)
	defer f.manager.Shutdown()

	e1 := f.manager.EngineFor("user-1")
	e2 := f.manager.EngineFor("user-1")
	other := f.manager.EngineFor("user-2")

	assert.Same(t, e1, e2)
	assert.NotSame(t, e1, other)
}

// TestEngineManager_ResumeActive 启动时恢复全部 active 订单
func TestEngineManager_ResumeActive(t *testing.T) {
	f := newManagerFixture(t)
	f.gateway.autoFill = true

	f.seedActive(t, "ADV-10", "user-1")
	f.seedActive(t, "ADV-11", "user-2")

	require.NoError(t, f.manager.ResumeActive(context.Background()))

	assert.True(t, f.manager.Running("user-1", "ADV-10"))
	assert.True(t, f.manager.Running("user-2", "ADV-11"))

	require.Eventually(t, func() bool {
		return f.orders.status("ADV-10") == domain.OrderStatusCompleted &&
			f.orders.status("ADV-11") == domain.OrderStatusCompleted
	}, 15*time.Second, 20*time.Millisecond)

	f.manager.Shutdown()
}

// TestEngineManager_ShutdownLeavesOrdersActive 停机不落终态，
// active 订单留给下次启动恢复
func TestEngineManager_ShutdownLeavesOrdersActive(t *testing.T) {
	f := newManagerFixture(t)

	order := domain.NewAdvancedOrder("ADV-20", "user-1", domain.OrderTypeTWAP, "BTC-USDT", domain.OrderSideBuy, d("10"),
		utils.ToJSON(&domain.TWAPParams{DurationMinutes: 60, Slices: 10, IntervalSeconds: 60}))
	order.Status = domain.OrderStatusActive
	order.CreatedAt = time.Now()
	require.NoError(t, f.orders.Save(context.Background(), order))

	require.NoError(t, f.manager.Drive(order, nil))
	require.True(t, f.manager.Running("user-1", "ADV-20"))

	f.manager.Shutdown()

	assert.False(t, f.manager.Running("user-1", "ADV-20"))
	assert.Equal(t, domain.OrderStatusActive, f.orders.status("ADV-20"))
}
