package application

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
	"github.com/wyfcoding/tradingterminal/pkg/config"
	"github.com/wyfcoding/tradingterminal/pkg/metrics"
)

// EngineManager 按用户维护执行引擎实例。引擎惰性创建，
// singleflight 保证并发请求同一用户时只建一个。
type EngineManager struct {
	gateway domain.ExchangeGateway
	orders  domain.OrderRepository
	execs   domain.ExecutionRepository
	events  domain.EventPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     config.EngineConfig
	opts    []EngineOption

	// 执行循环的生命周期独立于触发它的请求
	runCtx context.Context
	cancel context.CancelFunc

	sf      singleflight.Group
	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewEngineManager 创建引擎管理器
func NewEngineManager(
	gateway domain.ExchangeGateway,
	orders domain.OrderRepository,
	execs domain.ExecutionRepository,
	events domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg config.EngineConfig,
	opts ...EngineOption,
) *EngineManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &EngineManager{
		gateway: gateway,
		orders:  orders,
		execs:   execs,
		events:  events,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		opts:    opts,
		runCtx:  ctx,
		cancel:  cancel,
		engines: make(map[string]*Engine),
	}
}

// EngineFor 返回用户的引擎实例，没有则创建
func (m *EngineManager) EngineFor(userID string) *Engine {
	m.mu.RLock()
	e, ok := m.engines[userID]
	m.mu.RUnlock()
	if ok {
		return e
	}

	v, _, _ := m.sf.Do(userID, func() (interface{}, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if e, ok := m.engines[userID]; ok {
			return e, nil
		}
		e := NewEngine(m.gateway, m.orders, m.execs, m.events, m.metrics, m.logger, m.cfg, m.opts...)
		m.engines[userID] = e
		return e, nil
	})
	return v.(*Engine)
}

// Drive 为订单启动执行循环，循环生命周期跟随管理器而非请求
func (m *EngineManager) Drive(order *domain.AdvancedOrder, history []*domain.AdvancedOrderExecution) error {
	return m.EngineFor(order.UserID).Drive(m.runCtx, order, history)
}

// Pause 暂停订单
func (m *EngineManager) Pause(userID, orderID string) error {
	return m.EngineFor(userID).Pause(orderID)
}

// Cancel 取消订单
func (m *EngineManager) Cancel(userID, orderID string) error {
	return m.EngineFor(userID).Cancel(orderID)
}

// CancelIdle 取消没有循环在驱动的订单并清理其存续子单
func (m *EngineManager) CancelIdle(ctx context.Context, order *domain.AdvancedOrder, history []*domain.AdvancedOrderExecution) error {
	return m.EngineFor(order.UserID).CancelIdle(ctx, order, history)
}

// Running 订单是否正被驱动
func (m *EngineManager) Running(userID, orderID string) bool {
	return m.EngineFor(userID).Running(orderID)
}

// ResumeActive 进程启动时恢复全部 active 订单的执行循环。
// 这是恢复契约的入口：运行时状态全部从执行日志重建。
func (m *EngineManager) ResumeActive(ctx context.Context) error {
	orders, err := m.orders.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, order := range orders {
		history, err := m.execs.LoadHistory(ctx, order.OrderID)
		if err != nil {
			m.logger.ErrorContext(ctx, "load history for resume",
				"order_id", order.OrderID, "error", err)
			continue
		}
		if err := m.Drive(order, history); err != nil {
			m.logger.ErrorContext(ctx, "resume active order",
				"order_id", order.OrderID, "error", err)
			continue
		}
		m.logger.InfoContext(ctx, "active order resumed",
			"order_id", order.OrderID, "records", len(history))
	}
	return nil
}

// Shutdown 停掉全部执行循环并等待退出。循环收到停机信号时
// 不落终态，active 订单留待下次启动恢复。
func (m *EngineManager) Shutdown() {
	m.cancel()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.engines {
		e.Wait()
	}
}
