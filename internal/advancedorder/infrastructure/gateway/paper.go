// Package gateway 交易所网关适配器
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
)

// PaperGateway 纸面交易网关：进程内模拟交易所。
// 限价单与盘口交叉立即成交，否则挂起等待盘口推进；
// 市价单按对手价全量成交；stop 单在标记价触及触发价时转市价。
// 开发环境与演示用，无真实资金往来。
type PaperGateway struct {
	mu        sync.Mutex
	books     map[string]*domain.OrderBook
	positions map[string]*domain.Position
	children  map[string]*paperChild
}

type paperChild struct {
	req      domain.PlaceOrderRequest
	status   domain.ChildStatus
	filled   decimal.Decimal
	avgPrice decimal.NullDecimal
}

// NewPaperGateway 创建纸面网关
func NewPaperGateway() *PaperGateway {
	return &PaperGateway{
		books:     make(map[string]*domain.OrderBook),
		positions: make(map[string]*domain.Position),
		children:  make(map[string]*paperChild),
	}
}

// SetOrderBook 推进盘口，同时撮合该交易对上的存续子单
func (g *PaperGateway) SetOrderBook(book *domain.OrderBook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.books[book.Symbol] = book
	for _, c := range g.children {
		if c.req.Symbol == book.Symbol {
			g.match(c, book)
		}
	}
}

// SetPosition 设置持仓
func (g *PaperGateway) SetPosition(pos *domain.Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[pos.PositionID] = pos
}

// RemovePosition 移除持仓，模拟场外平仓
func (g *PaperGateway) RemovePosition(positionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.positions, positionID)
}

// PlaceOrder 下子单
func (g *PaperGateway) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (*domain.PlaceOrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !req.Size.IsPositive() {
		return nil, domain.NewRejectedError("place_order", fmt.Errorf("non-positive size %s", req.Size))
	}
	book, ok := g.books[req.Symbol]
	if !ok {
		return nil, domain.NewRejectedError("place_order", fmt.Errorf("unknown symbol %s", req.Symbol))
	}

	c := &paperChild{req: req, status: domain.ChildStatusOpen}
	childID := "PAPER-" + uuid.NewString()
	g.children[childID] = c
	g.match(c, book)

	return &domain.PlaceOrderResult{
		ChildID:      childID,
		Status:       domain.PlaceStatusAccepted,
		FilledSize:   c.filled,
		AvgFillPrice: c.avgPrice,
	}, nil
}

// CancelOrder 撤子单
func (g *PaperGateway) CancelOrder(ctx context.Context, childID string) (domain.CancelStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.children[childID]
	if !ok {
		return domain.CancelStatusNotFound, nil
	}
	switch c.status {
	case domain.ChildStatusFilled:
		return domain.CancelStatusAlreadyFilled, nil
	case domain.ChildStatusCancelled:
		return domain.CancelStatusCancelled, nil
	}
	c.status = domain.ChildStatusCancelled
	return domain.CancelStatusCancelled, nil
}

// GetOrderBook 取盘口快照
func (g *PaperGateway) GetOrderBook(ctx context.Context, symbol string) (*domain.OrderBook, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	book, ok := g.books[symbol]
	if !ok {
		return nil, domain.NewTransientError("get_order_book", fmt.Errorf("no book for %s", symbol))
	}
	snapshot := *book
	return &snapshot, nil
}

// GetPosition 取持仓。持仓不存在返回 nil，由策略判定失败。
func (g *PaperGateway) GetPosition(ctx context.Context, positionID string) (*domain.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pos, ok := g.positions[positionID]
	if !ok {
		return nil, nil
	}
	snapshot := *pos
	return &snapshot, nil
}

// GetChildOrder 取子单快照
func (g *PaperGateway) GetChildOrder(ctx context.Context, childID string) (*domain.ChildOrderSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.children[childID]
	if !ok {
		return nil, domain.NewRejectedError("get_child_order", fmt.Errorf("unknown child %s", childID))
	}
	return &domain.ChildOrderSnapshot{
		ChildID:      childID,
		Status:       c.status,
		FilledSize:   c.filled,
		AvgFillPrice: c.avgPrice,
	}, nil
}

// match 以当前盘口撮合子单。简化的全量成交模型：
// 一旦可成交即按成交价吃满剩余量，不模拟部分深度。
func (g *PaperGateway) match(c *paperChild, book *domain.OrderBook) {
	if c.status == domain.ChildStatusFilled || c.status == domain.ChildStatusCancelled {
		return
	}

	var fillPrice decimal.Decimal
	opposite := book.OppositeQuote(c.req.Side)

	switch c.req.Kind {
	case domain.ChildOrderMarket:
		fillPrice = opposite
	case domain.ChildOrderLimit:
		if c.req.Price == nil {
			return
		}
		crossed := (c.req.Side == domain.OrderSideBuy && opposite.LessThanOrEqual(*c.req.Price)) ||
			(c.req.Side == domain.OrderSideSell && opposite.GreaterThanOrEqual(*c.req.Price))
		if !crossed {
			return
		}
		fillPrice = *c.req.Price
	case domain.ChildOrderStop:
		if c.req.TriggerPrice == nil {
			return
		}
		triggered := (c.req.Side == domain.OrderSideSell && opposite.LessThanOrEqual(*c.req.TriggerPrice)) ||
			(c.req.Side == domain.OrderSideBuy && opposite.GreaterThanOrEqual(*c.req.TriggerPrice))
		if !triggered {
			return
		}
		fillPrice = opposite
	}

	c.filled = c.req.Size
	c.status = domain.ChildStatusFilled
	c.avgPrice = decimal.NullDecimal{Decimal: fillPrice, Valid: true}
}
