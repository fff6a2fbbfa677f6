// Package persistence 高级订单持久化层
package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
)

// GormOrderRepository GORM 订单仓储
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建订单仓储
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Save 保存订单
func (r *GormOrderRepository) Save(ctx context.Context, order *domain.AdvancedOrder) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// FindByOrderID 根据订单号查询
func (r *GormOrderRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.AdvancedOrder, error) {
	var order domain.AdvancedOrder
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ListByUserID 分页查询用户订单，statuses 为空表示不过滤
func (r *GormOrderRepository) ListByUserID(ctx context.Context, userID string, statuses []domain.OrderStatus, page, pageSize int) ([]*domain.AdvancedOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.AdvancedOrder{}).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []*domain.AdvancedOrder
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListActive 查询全部 active 订单
func (r *GormOrderRepository) ListActive(ctx context.Context) ([]*domain.AdvancedOrder, error) {
	var orders []*domain.AdvancedOrder
	if err := r.db.WithContext(ctx).
		Where("status = ?", domain.OrderStatusActive).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus 条件更新状态。from 不匹配时零行命中，
// 返回迁移冲突错误，这是并发控制的最后一道闸。
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	result := r.db.WithContext(ctx).
		Model(&domain.AdvancedOrder{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &domain.InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// GormExecutionRepository GORM 执行日志仓储
type GormExecutionRepository struct {
	db *gorm.DB
}

// NewGormExecutionRepository 创建执行日志仓储
func NewGormExecutionRepository(db *gorm.DB) *GormExecutionRepository {
	return &GormExecutionRepository{db: db}
}

// Append 追加执行记录，(advanced_order_id, sequence_number)
// 唯一索引拒绝重复序号
func (r *GormExecutionRepository) Append(ctx context.Context, execution *domain.AdvancedOrderExecution) error {
	return r.db.WithContext(ctx).Create(execution).Error
}

// LoadHistory 按序号升序加载订单的全部执行记录
func (r *GormExecutionRepository) LoadHistory(ctx context.Context, orderID string) ([]*domain.AdvancedOrderExecution, error) {
	var executions []*domain.AdvancedOrderExecution
	if err := r.db.WithContext(ctx).
		Where("advanced_order_id = ?", orderID).
		Order("sequence_number ASC").
		Find(&executions).Error; err != nil {
		return nil, err
	}
	return executions, nil
}
