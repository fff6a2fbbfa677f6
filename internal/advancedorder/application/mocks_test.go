package application_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
)

// mockGateway 可脚本化的交易所网关
type mockGateway struct {
	mu sync.Mutex

	book      *domain.OrderBook
	positions map[string]*domain.Position
	children  map[string]*domain.ChildOrderSnapshot

	// autoFill 下单立即全部成交（市价撮合语义）
	autoFill bool
	// bookDrift 每次取盘口后最优买价上移的幅度
	bookDrift decimal.Decimal
	// placeErrs 依次弹出的下单错误脚本，弹空后正常受理
	placeErrs []error
	// placeDelay 下单前的人为延迟，模拟慢网关
	placeDelay time.Duration

	placeCalls  int
	cancelCalls map[string]int
	nextChild   int
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		book: &domain.OrderBook{
			Symbol:  "BTC-USDT",
			BestBid: decimal.NewFromInt(49990),
			BestAsk: decimal.NewFromInt(50010),
		},
		positions:   make(map[string]*domain.Position),
		children:    make(map[string]*domain.ChildOrderSnapshot),
		cancelCalls: make(map[string]int),
	}
}

func (g *mockGateway) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (*domain.PlaceOrderResult, error) {
	if g.placeDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.placeDelay):
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.placeCalls++
	if len(g.placeErrs) > 0 {
		err := g.placeErrs[0]
		g.placeErrs = g.placeErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	g.nextChild++
	childID := fmt.Sprintf("CHILD-%d", g.nextChild)
	snap := &domain.ChildOrderSnapshot{ChildID: childID, Status: domain.ChildStatusOpen}
	res := &domain.PlaceOrderResult{ChildID: childID, Status: domain.PlaceStatusAccepted}

	if g.autoFill {
		snap.Status = domain.ChildStatusFilled
		snap.FilledSize = req.Size
		res.FilledSize = req.Size
		res.AvgFillPrice = decimal.NullDecimal{Decimal: g.book.BestAsk, Valid: true}
		snap.AvgFillPrice = res.AvgFillPrice
	}
	g.children[childID] = snap
	return res, nil
}

func (g *mockGateway) CancelOrder(ctx context.Context, childID string) (domain.CancelStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancelCalls[childID]++
	snap, ok := g.children[childID]
	if !ok {
		return domain.CancelStatusNotFound, nil
	}
	if snap.Status == domain.ChildStatusFilled {
		return domain.CancelStatusAlreadyFilled, nil
	}
	snap.Status = domain.ChildStatusCancelled
	return domain.CancelStatusCancelled, nil
}

func (g *mockGateway) GetOrderBook(ctx context.Context, symbol string) (*domain.OrderBook, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	snapshot := *g.book
	if g.bookDrift.IsPositive() {
		g.book.BestBid = g.book.BestBid.Add(g.bookDrift)
		g.book.BestAsk = g.book.BestAsk.Add(g.bookDrift)
	}
	return &snapshot, nil
}

func (g *mockGateway) GetPosition(ctx context.Context, positionID string) (*domain.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pos, ok := g.positions[positionID]
	if !ok {
		return nil, nil
	}
	snapshot := *pos
	return &snapshot, nil
}

func (g *mockGateway) GetChildOrder(ctx context.Context, childID string) (*domain.ChildOrderSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap, ok := g.children[childID]
	if !ok {
		return nil, domain.NewRejectedError("get_child_order", fmt.Errorf("unknown child %s", childID))
	}
	copied := *snap
	return &copied, nil
}

// fillChild 模拟场内成交回报
func (g *mockGateway) fillChild(childID string, size decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if snap, ok := g.children[childID]; ok {
		snap.FilledSize = snap.FilledSize.Add(size)
		snap.Status = domain.ChildStatusFilled
	}
}

func (g *mockGateway) cancelCount(childID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelCalls[childID]
}

// memOrderRepo 内存订单仓储
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.AdvancedOrder
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*domain.AdvancedOrder)}
}

func (r *memOrderRepo) Save(ctx context.Context, order *domain.AdvancedOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *order
	r.orders[order.OrderID] = &copied
	return nil
}

func (r *memOrderRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.AdvancedOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (r *memOrderRepo) ListByUserID(ctx context.Context, userID string, statuses []domain.OrderStatus, page, pageSize int) ([]*domain.AdvancedOrder, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AdvancedOrder
	for _, o := range r.orders {
		if o.UserID != userID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, o.Status) {
			continue
		}
		copied := *o
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

func (r *memOrderRepo) ListActive(ctx context.Context) ([]*domain.AdvancedOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AdvancedOrder
	for _, o := range r.orders {
		if o.Status == domain.OrderStatusActive {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memOrderRepo) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Status != from {
		return &domain.InvalidTransitionError{From: order.Status, To: to}
	}
	order.Status = to
	return nil
}

func (r *memOrderRepo) status(orderID string) domain.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[orderID].Status
}

func containsStatus(statuses []domain.OrderStatus, s domain.OrderStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

// memExecRepo 内存执行日志仓储，强制 (订单, 序号) 唯一
type memExecRepo struct {
	mu      sync.Mutex
	records map[string][]*domain.AdvancedOrderExecution
}

func newMemExecRepo() *memExecRepo {
	return &memExecRepo{records: make(map[string][]*domain.AdvancedOrderExecution)}
}

func (r *memExecRepo) Append(ctx context.Context, execution *domain.AdvancedOrderExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.records[execution.AdvancedOrderID] {
		if e.SequenceNumber == execution.SequenceNumber {
			return fmt.Errorf("duplicate sequence %d for %s", execution.SequenceNumber, execution.AdvancedOrderID)
		}
	}
	copied := *execution
	r.records[execution.AdvancedOrderID] = append(r.records[execution.AdvancedOrderID], &copied)
	return nil
}

func (r *memExecRepo) LoadHistory(ctx context.Context, orderID string) ([]*domain.AdvancedOrderExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := make([]*domain.AdvancedOrderExecution, len(r.records[orderID]))
	copy(history, r.records[orderID])
	return history, nil
}

func (r *memExecRepo) all(orderID string) []*domain.AdvancedOrderExecution {
	history, _ := r.LoadHistory(context.Background(), orderID)
	return history
}

func (r *memExecRepo) countAction(orderID string, action domain.ExecutionAction) int {
	n := 0
	for _, e := range r.all(orderID) {
		if e.Action == action {
			n++
		}
	}
	return n
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu         sync.Mutex
	lifecycles []domain.OrderLifecycleEvent
	executions []domain.ExecutionRecordedEvent
}

func (p *recordingPublisher) PublishLifecycle(event domain.OrderLifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lifecycles = append(p.lifecycles, event)
	return nil
}

func (p *recordingPublisher) PublishExecution(event domain.ExecutionRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executions = append(p.executions, event)
	return nil
}

func (p *recordingPublisher) lastLifecycle() (domain.OrderLifecycleEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lifecycles) == 0 {
		return domain.OrderLifecycleEvent{}, false
	}
	return p.lifecycles[len(p.lifecycles)-1], true
}
