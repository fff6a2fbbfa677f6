package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
	"github.com/wyfcoding/tradingterminal/pkg/cache"
)

// statusCacheTTL 状态读模型的缓存时长。执行循环高频推进，
// 短 TTL 换读放大，不做主动失效。
const statusCacheTTL = 2 * time.Second

// QueryService 高级订单查询服务
type QueryService struct {
	orders domain.OrderRepository
	execs  domain.ExecutionRepository
	cache  *cache.RedisCache
	logger *slog.Logger
}

// NewQueryService 创建查询服务
func NewQueryService(
	orders domain.OrderRepository,
	execs domain.ExecutionRepository,
	c *cache.RedisCache,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{orders: orders, execs: execs, cache: c, logger: logger}
}

// GetOrder 查询订单详情。累计成交等进度字段从执行日志重算，
// 与恢复路径共用同一套推导，两边永不分叉。
func (s *QueryService) GetOrder(ctx context.Context, userID, orderID string) (*OrderDetail, error) {
	key := statusKey(orderID)
	if s.cache != nil {
		var cached OrderDetail
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil && cached.UserID == userID {
			return &cached, nil
		}
	}

	order, err := s.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}

	history, err := s.execs.LoadHistory(ctx, orderID)
	if err != nil {
		return nil, err
	}

	detail := newOrderDetail(order, history)
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, detail, statusCacheTTL); err != nil {
			s.logger.WarnContext(ctx, "cache order detail", "order_id", orderID, "error", err)
		}
	}
	return detail, nil
}

// ListOrders 分页查询用户订单
func (s *QueryService) ListOrders(ctx context.Context, userID string, statuses []domain.OrderStatus, page, pageSize int) ([]*OrderSummary, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	orders, total, err := s.orders.ListByUserID(ctx, userID, statuses, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]*OrderSummary, 0, len(orders))
	for _, o := range orders {
		summaries = append(summaries, newOrderSummary(o))
	}
	return summaries, total, nil
}

// GetExecutions 查询订单的执行日志
func (s *QueryService) GetExecutions(ctx context.Context, userID, orderID string) ([]*ExecutionView, error) {
	order, err := s.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}

	history, err := s.execs.LoadHistory(ctx, orderID)
	if err != nil {
		return nil, err
	}

	views := make([]*ExecutionView, 0, len(history))
	for _, e := range history {
		views = append(views, newExecutionView(e))
	}
	return views, nil
}

func statusKey(orderID string) string {
	return fmt.Sprintf("advorder:detail:%s", orderID)
}
