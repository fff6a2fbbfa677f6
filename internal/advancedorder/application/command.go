package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
	"github.com/wyfcoding/tradingterminal/pkg/metrics"
	"github.com/wyfcoding/tradingterminal/pkg/utils"
)

// CommandService 高级订单命令服务
type CommandService struct {
	orders  domain.OrderRepository
	execs   domain.ExecutionRepository
	manager *EngineManager
	idGen   *utils.SnowflakeID
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCommandService 创建命令服务
func NewCommandService(
	orders domain.OrderRepository,
	execs domain.ExecutionRepository,
	manager *EngineManager,
	idGen *utils.SnowflakeID,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CommandService {
	return &CommandService{
		orders:  orders,
		execs:   execs,
		manager: manager,
		idGen:   idGen,
		metrics: m,
		logger:  logger,
	}
}

// SubmitOrderCommand 提交高级订单命令
type SubmitOrderCommand struct {
	UserID     string
	OrderType  domain.OrderType
	Symbol     string
	Side       domain.OrderSide
	TotalSize  decimal.Decimal
	Parameters json.RawMessage
}

// SubmitOrder 校验参数并持久化订单，订单落库后处于 pending，
// 不自动开始执行
func (s *CommandService) SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (string, error) {
	params, err := domain.ParseParams(cmd.OrderType, string(cmd.Parameters))
	if err != nil {
		return "", &domain.ValidationError{Field: "parameters", Reason: err.Error()}
	}
	if err := domain.ValidateParams(cmd.OrderType, cmd.TotalSize, params); err != nil {
		return "", err
	}

	orderID := fmt.Sprintf("ADV-%d", s.idGen.Generate())
	order := domain.NewAdvancedOrder(orderID, cmd.UserID, cmd.OrderType, cmd.Symbol, cmd.Side, cmd.TotalSize, string(cmd.Parameters))

	if err := s.orders.Save(ctx, order); err != nil {
		return "", err
	}

	s.metrics.OrdersSubmittedTotal.Inc()
	s.logger.InfoContext(ctx, "advanced order submitted",
		"order_id", orderID, "user_id", cmd.UserID,
		"order_type", cmd.OrderType, "symbol", cmd.Symbol, "total_size", cmd.TotalSize)
	return orderID, nil
}

// ExecuteOrder 开始（或恢复）驱动订单。pending 和 paused 订单
// 迁移到 active 后启动执行循环；active 但无循环在驱动的订单
// （崩溃后遗留）直接恢复驱动。
func (s *CommandService) ExecuteOrder(ctx context.Context, userID, orderID string) error {
	order, err := s.loadOwned(ctx, userID, orderID)
	if err != nil {
		return err
	}

	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusPaused:
		from := order.Status
		if err := order.Transition(domain.OrderStatusActive); err != nil {
			return err
		}
		if err := s.orders.UpdateStatus(ctx, orderID, from, domain.OrderStatusActive); err != nil {
			return err
		}
	case domain.OrderStatusActive:
		if s.manager.Running(userID, orderID) {
			return ErrAlreadyDriven
		}
	default:
		return &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusActive}
	}

	history, err := s.execs.LoadHistory(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.manager.Drive(order, history); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "advanced order executing",
		"order_id", orderID, "records", len(history))
	return nil
}

// PauseOrder 暂停订单
func (s *CommandService) PauseOrder(ctx context.Context, userID, orderID string) error {
	order, err := s.loadOwned(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusActive {
		return &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusPaused}
	}
	return s.manager.Pause(userID, orderID)
}

// ResumeOrder 恢复暂停的订单，等价于再次执行
func (s *CommandService) ResumeOrder(ctx context.Context, userID, orderID string) error {
	return s.ExecuteOrder(ctx, userID, orderID)
}

// CancelOrder 取消订单。有执行循环在驱动时交给循环撤子单收尾；
// pending/paused 订单没有存续循环，按执行日志重建状态后清理
// 存续子单再落终态（暂停的冰山/阶梯单可能还有子单挂在场内）。
func (s *CommandService) CancelOrder(ctx context.Context, userID, orderID string) error {
	order, err := s.loadOwned(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusCancelled}
	}

	if err := s.manager.Cancel(userID, orderID); err == nil {
		return nil
	}

	from := order.Status
	history, err := s.execs.LoadHistory(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.manager.CancelIdle(ctx, order, history); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "advanced order cancelled", "order_id", orderID, "from", from)
	return nil
}

// loadOwned 加载订单并校验归属
func (s *CommandService) loadOwned(ctx context.Context, userID, orderID string) (*domain.AdvancedOrder, error) {
	order, err := s.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}
