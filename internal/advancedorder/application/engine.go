// Package application 高级订单应用层：执行引擎、引擎管理器与命令/查询服务
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
	"github.com/wyfcoding/tradingterminal/pkg/config"
	"github.com/wyfcoding/tradingterminal/pkg/metrics"
)

var (
	// ErrAlreadyDriven 订单已有执行循环在驱动
	ErrAlreadyDriven = errors.New("order already has an active execution loop")
	// ErrNotRunning 订单没有执行循环在驱动
	ErrNotRunning = errors.New("order has no active execution loop")
)

// Engine 高级订单执行引擎。每个 active 订单由一个独立的执行
// 循环 goroutine 驱动，引擎保证任一订单同一时刻至多一个循环。
// 所有动作先落执行日志再推进内存状态，崩溃后可由日志完整重建。
type Engine struct {
	gateway domain.ExchangeGateway
	orders  domain.OrderRepository
	execs   domain.ExecutionRepository
	events  domain.EventPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     config.EngineConfig

	// waitClamp > 0 时限制单次等待/退避的上限，测试用
	waitClamp time.Duration

	mu      sync.Mutex
	runners map[string]*orderRunner
	wg      sync.WaitGroup
}

// EngineOption 引擎可选配置
type EngineOption func(*Engine)

// WithWaitClamp 限制单次等待上限
func WithWaitClamp(d time.Duration) EngineOption {
	return func(e *Engine) { e.waitClamp = d }
}

// NewEngine 创建执行引擎
func NewEngine(
	gateway domain.ExchangeGateway,
	orders domain.OrderRepository,
	execs domain.ExecutionRepository,
	events domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg config.EngineConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		gateway: gateway,
		orders:  orders,
		execs:   execs,
		events:  events,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		runners: make(map[string]*orderRunner),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// orderRunner 单个订单的执行循环句柄
type orderRunner struct {
	pauseCh  chan struct{}
	cancelCh chan struct{}
	done     chan struct{}

	once sync.Once // pause 与 cancel 互斥，先到者生效
}

func (r *orderRunner) signalPause() {
	r.once.Do(func() { close(r.pauseCh) })
}

func (r *orderRunner) signalCancel() {
	r.once.Do(func() { close(r.cancelCh) })
}

// Drive 为订单启动执行循环。调用前订单必须已处于 active 状态；
// history 是该订单迄今的全部执行日志，用于重建运行时状态。
// 同一订单已有循环在驱动时返回 ErrAlreadyDriven。
func (e *Engine) Drive(ctx context.Context, order *domain.AdvancedOrder, history []*domain.AdvancedOrderExecution) error {
	params, err := domain.ParseParams(order.OrderType, order.Parameters)
	if err != nil {
		return fmt.Errorf("parse parameters: %w", err)
	}
	strategy, err := domain.NewStrategy(order, params)
	if err != nil {
		return err
	}

	state := domain.NewRuntimeState(order, params)
	state.Rebuild(history)
	if err := strategy.Rehydrate(state, history); err != nil {
		return fmt.Errorf("rehydrate strategy: %w", err)
	}

	r := &orderRunner{
		pauseCh:  make(chan struct{}),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}

	e.mu.Lock()
	if _, exists := e.runners[order.OrderID]; exists {
		e.mu.Unlock()
		return ErrAlreadyDriven
	}
	e.runners[order.OrderID] = r
	e.mu.Unlock()

	e.metrics.OrderLoopsActive.Inc()
	e.wg.Add(1)
	go e.run(ctx, r, state, strategy)
	return nil
}

// Wait 阻塞到全部执行循环退出，优雅停机用
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Pause 暂停订单的执行循环。循环在当前动作收尾后退出，
// 已挂出的子单留在场内。
func (e *Engine) Pause(orderID string) error {
	r := e.runner(orderID)
	if r == nil {
		return ErrNotRunning
	}
	r.signalPause()
	return nil
}

// Cancel 取消订单：执行循环尽力撤掉全部存续子单后退出。
// 没有循环在驱动（paused/pending 订单）时返回 ErrNotRunning，
// 由命令服务改走 CancelIdle。
func (e *Engine) Cancel(orderID string) error {
	r := e.runner(orderID)
	if r == nil {
		return ErrNotRunning
	}
	r.signalCancel()
	return nil
}

// CancelIdle 取消没有执行循环在驱动的订单（pending/paused）。
// 与循环内取消走同一条路径：从执行日志重建运行时状态，
// 尽力撤掉存续子单后落终态，暂停期间留在场内的子单不会成为孤儿。
func (e *Engine) CancelIdle(ctx context.Context, order *domain.AdvancedOrder, history []*domain.AdvancedOrderExecution) error {
	params, err := domain.ParseParams(order.OrderType, order.Parameters)
	if err != nil {
		return fmt.Errorf("parse parameters: %w", err)
	}
	state := domain.NewRuntimeState(order, params)
	state.Rebuild(history)

	e.cancelOrder(ctx, state)
	if order.Status != domain.OrderStatusCancelled {
		return &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusCancelled}
	}
	return nil
}

// Running 订单是否有执行循环在驱动
func (e *Engine) Running(orderID string) bool {
	return e.runner(orderID) != nil
}

// WaitIdle 等待指定订单的执行循环退出，测试与优雅停机用
func (e *Engine) WaitIdle(orderID string) {
	r := e.runner(orderID)
	if r == nil {
		return
	}
	<-r.done
}

func (e *Engine) runner(orderID string) *orderRunner {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runners[orderID]
}

func (e *Engine) removeRunner(orderID string) {
	e.mu.Lock()
	delete(e.runners, orderID)
	e.mu.Unlock()
}

// run 订单执行主循环
func (e *Engine) run(ctx context.Context, r *orderRunner, state *domain.RuntimeState, strategy domain.ExecutionStrategy) {
	orderID := state.Order.OrderID

	defer e.wg.Done()
	defer close(r.done)
	defer e.metrics.OrderLoopsActive.Dec()
	defer e.removeRunner(orderID)
	defer func() {
		if p := recover(); p != nil {
			e.logger.ErrorContext(ctx, "execution loop panic",
				"order_id", orderID, "panic", p)
			e.faultOrder(ctx, state, fmt.Sprintf("engine fault: %v", p))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// 进程停机：订单保持 active，重启后由管理器恢复驱动
			e.logger.InfoContext(ctx, "execution loop stopped by shutdown", "order_id", orderID)
			return
		case <-r.pauseCh:
			e.pauseOrder(ctx, state)
			return
		case <-r.cancelCh:
			e.cancelOrder(ctx, state)
			return
		default:
		}

		if done := e.observeFills(ctx, state); done {
			return
		}

		snap, err := e.snapshot(ctx, state)
		if err != nil {
			e.faultOrder(ctx, state, err.Error())
			return
		}

		action := strategy.Decide(state, snap)
		finished, wait := e.apply(ctx, state, action)
		if finished {
			return
		}
		if wait <= 0 {
			wait = e.defaultTick(strategy)
		}
		if !e.sleep(ctx, r, wait) {
			// 信号到达，回到循环头处理
			continue
		}
	}
}

// apply 执行一个策略动作。返回 finished=true 表示订单已进入终态；
// wait 为下一次调度前的等待时长（0 表示用默认间隔）。
func (e *Engine) apply(ctx context.Context, state *domain.RuntimeState, action domain.Action) (finished bool, wait time.Duration) {
	switch action.Type {
	case domain.ActionPlace:
		return e.applyPlace(ctx, state, action), 0
	case domain.ActionCancel:
		return e.applyCancel(ctx, state, action), 0
	case domain.ActionReprice:
		return e.applyReprice(ctx, state, action), 0
	case domain.ActionSkip:
		rec := e.newRecord(state, domain.ExecutionActionSkip, domain.ExecutionResultPending)
		rec.ErrorDetail = action.Reason
		if err := e.appendRecord(ctx, state, rec); err != nil {
			e.faultOrder(ctx, state, err.Error())
			return true, 0
		}
		return false, 0
	case domain.ActionWait:
		return false, action.WaitFor
	case domain.ActionComplete:
		e.finishOrder(ctx, state, domain.OrderStatusCompleted, "")
		return true, 0
	case domain.ActionFail:
		rec := e.newRecord(state, domain.ExecutionActionError, domain.ExecutionResultErrored)
		rec.ErrorDetail = action.Reason
		if err := e.appendRecord(ctx, state, rec); err != nil {
			e.logger.ErrorContext(ctx, "append failure record", "order_id", state.Order.OrderID, "error", err)
		}
		e.finishOrder(ctx, state, domain.OrderStatusFailed, action.Reason)
		return true, 0
	}
	return false, 0
}

// applyPlace 下子单。交易所业务拒绝记 rejected 并使订单失败；
// Transient 错误按退避重试，每次失败都留下 error 记录。
func (e *Engine) applyPlace(ctx context.Context, state *domain.RuntimeState, action domain.Action) (finished bool) {
	req := domain.PlaceOrderRequest{
		Symbol:       state.Order.Symbol,
		Side:         state.Order.Side,
		Size:         action.Size,
		Kind:         action.Kind,
		Price:        action.Price,
		TriggerPrice: action.TriggerPrice,
		ReduceOnly:   action.ReduceOnly,
	}

	var res *domain.PlaceOrderResult
	err := e.callGateway(ctx, state, "place_order", func(callCtx context.Context) error {
		var callErr error
		res, callErr = e.gateway.PlaceOrder(callCtx, req)
		return callErr
	})
	if err != nil {
		e.faultOrder(ctx, state, err.Error())
		return true
	}

	rec := e.newRecord(state, domain.ExecutionActionPlace, domain.ExecutionResultPending)
	rec.ChildID = res.ChildID
	rec.RequestedSize = action.Size
	if action.Price != nil {
		rec.RequestedPrice = decimalNull(*action.Price)
	} else if action.TriggerPrice != nil {
		// stop 单以触发价入档，恢复时由此反推策略水位
		rec.RequestedPrice = decimalNull(*action.TriggerPrice)
	}

	if res.Status == domain.PlaceStatusRejected {
		rec.ResultStatus = domain.ExecutionResultRejected
		if err := e.appendRecord(ctx, state, rec); err != nil {
			e.logger.ErrorContext(ctx, "append rejection record", "order_id", state.Order.OrderID, "error", err)
		}
		e.finishOrder(ctx, state, domain.OrderStatusFailed, "exchange rejected child order")
		return true
	}

	// 市价单可能受理即成交
	if res.FilledSize.IsPositive() {
		rec.FilledSize = res.FilledSize
		rec.AvgFillPrice = res.AvgFillPrice
		if res.FilledSize.GreaterThanOrEqual(action.Size) {
			rec.ResultStatus = domain.ExecutionResultFilled
		} else {
			rec.ResultStatus = domain.ExecutionResultPartial
		}
	}

	if err := e.appendRecord(ctx, state, rec); err != nil {
		e.faultOrder(ctx, state, err.Error())
		return true
	}
	return false
}

// applyCancel 撤子单。Fatal 撤单即终态：撤单记录本身就是
// 失败记录，随后订单进入 failed。
func (e *Engine) applyCancel(ctx context.Context, state *domain.RuntimeState, action domain.Action) (finished bool) {
	var status domain.CancelStatus
	err := e.callGateway(ctx, state, "cancel_order", func(callCtx context.Context) error {
		var callErr error
		status, callErr = e.gateway.CancelOrder(callCtx, action.ChildID)
		return callErr
	})
	if err != nil {
		e.faultOrder(ctx, state, err.Error())
		return true
	}

	if status == domain.CancelStatusAlreadyFilled {
		// 撤单与成交赛跑输了，下一轮成交观察会补上 fill 记录
		return false
	}

	rec := e.newRecord(state, domain.ExecutionActionCancel, domain.ExecutionResultCancelled)
	rec.ChildID = action.ChildID
	rec.ErrorDetail = action.Reason
	if err := e.appendRecord(ctx, state, rec); err != nil {
		e.faultOrder(ctx, state, err.Error())
		return true
	}

	if action.Fatal {
		e.finishOrder(ctx, state, domain.OrderStatusFailed, action.Reason)
		return true
	}
	return false
}

// applyReprice 撤换改价：网关层面是 cancel+place 两次调用，
// 日志层面是一条 reprice 记录，child_id 指向新子单。
func (e *Engine) applyReprice(ctx context.Context, state *domain.RuntimeState, action domain.Action) (finished bool) {
	old, ok := state.Children[action.ChildID]
	if !ok {
		e.faultOrder(ctx, state, fmt.Sprintf("reprice unknown child %s", action.ChildID))
		return true
	}
	size := old.Remaining()

	var status domain.CancelStatus
	err := e.callGateway(ctx, state, "cancel_order", func(callCtx context.Context) error {
		var callErr error
		status, callErr = e.gateway.CancelOrder(callCtx, action.ChildID)
		return callErr
	})
	if err != nil {
		e.faultOrder(ctx, state, err.Error())
		return true
	}
	if status == domain.CancelStatusAlreadyFilled {
		return false
	}

	price := action.NewPrice
	req := domain.PlaceOrderRequest{
		Symbol: state.Order.Symbol,
		Side:   state.Order.Side,
		Size:   size,
		Kind:   domain.ChildOrderLimit,
		Price:  &price,
	}
	if old.Price != nil && state.Order.OrderType == domain.OrderTypeTrailingTP {
		req.Kind = domain.ChildOrderStop
		req.Price = nil
		req.TriggerPrice = &price
		req.ReduceOnly = true
	}

	var res *domain.PlaceOrderResult
	err = e.callGateway(ctx, state, "place_order", func(callCtx context.Context) error {
		var callErr error
		res, callErr = e.gateway.PlaceOrder(callCtx, req)
		return callErr
	})
	if err != nil {
		e.faultOrder(ctx, state, err.Error())
		return true
	}

	rec := e.newRecord(state, domain.ExecutionActionReprice, domain.ExecutionResultPending)
	rec.ChildID = res.ChildID
	rec.RequestedSize = size
	rec.RequestedPrice = decimalNull(action.NewPrice)
	if res.Status == domain.PlaceStatusRejected {
		rec.ResultStatus = domain.ExecutionResultRejected
		if err := e.appendRecord(ctx, state, rec); err != nil {
			e.logger.ErrorContext(ctx, "append rejection record", "order_id", state.Order.OrderID, "error", err)
		}
		e.finishOrder(ctx, state, domain.OrderStatusFailed, "exchange rejected repriced child order")
		return true
	}
	if err := e.appendRecord(ctx, state, rec); err != nil {
		e.faultOrder(ctx, state, err.Error())
		return true
	}
	return false
}

// observeFills 轮询存续子单的成交进度，把增量落成 fill 记录。
// 推模式的网关适配器把回报写入本地缓存后同样经由 GetChildOrder
// 暴露，引擎不感知推拉差异。返回 true 表示订单已进入终态。
func (e *Engine) observeFills(ctx context.Context, state *domain.RuntimeState) bool {
	for _, child := range childIDs(state) {
		c, ok := state.Children[child]
		if !ok {
			continue
		}

		var snap *domain.ChildOrderSnapshot
		err := e.callGateway(ctx, state, "get_child_order", func(callCtx context.Context) error {
			var callErr error
			snap, callErr = e.gateway.GetChildOrder(callCtx, child)
			return callErr
		})
		if err != nil {
			e.faultOrder(ctx, state, err.Error())
			return true
		}

		delta := snap.FilledSize.Sub(c.Filled)
		if delta.IsPositive() {
			rec := e.newRecord(state, domain.ExecutionActionFill, domain.ExecutionResultPartial)
			rec.ChildID = child
			rec.FilledSize = delta
			rec.AvgFillPrice = snap.AvgFillPrice
			if snap.Status == domain.ChildStatusFilled {
				rec.ResultStatus = domain.ExecutionResultFilled
			}
			if err := e.appendRecord(ctx, state, rec); err != nil {
				e.faultOrder(ctx, state, err.Error())
				return true
			}
			continue
		}

		if snap.Status == domain.ChildStatusCancelled {
			// 场外撤单，留痕后交还策略决策
			rec := e.newRecord(state, domain.ExecutionActionCancel, domain.ExecutionResultCancelled)
			rec.ChildID = child
			rec.ErrorDetail = "cancelled externally"
			if err := e.appendRecord(ctx, state, rec); err != nil {
				e.faultOrder(ctx, state, err.Error())
				return true
			}
		}
	}
	return false
}

// snapshot 采集一个调度周期的市场输入
func (e *Engine) snapshot(ctx context.Context, state *domain.RuntimeState) (*domain.MarketSnapshot, error) {
	snap := &domain.MarketSnapshot{Time: time.Now()}

	err := e.callGateway(ctx, state, "get_order_book", func(callCtx context.Context) error {
		var callErr error
		snap.Book, callErr = e.gateway.GetOrderBook(callCtx, state.Order.Symbol)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if p, ok := state.Params.(*domain.TrailingTPParams); ok {
		err := e.callGateway(ctx, state, "get_position", func(callCtx context.Context) error {
			var callErr error
			snap.Position, callErr = e.gateway.GetPosition(callCtx, p.PositionID)
			return callErr
		})
		if err != nil && !domain.IsRejected(err) {
			return nil, err
		}
	}
	return snap, nil
}

// callGateway 带退避重试的网关调用。每次调用受
// cfg.CallTimeoutMs 限时，超时按 Transient 处理；Transient 错误
// 重试 cfg.MaxRetries 次，每次失败都追加一条 error 记录（重试
// 不改写历史，永远占用新序号）；Rejected 错误立即上抛。
func (e *Engine) callGateway(ctx context.Context, state *domain.RuntimeState, op string, fn func(ctx context.Context) error) error {
	delay := time.Duration(e.cfg.BaseDelayMs) * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			e.metrics.GatewayRetriesTotal.Inc()
			timer := time.NewTimer(e.clamp(delay))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * e.cfg.BackoffMultiplier)
		}

		attemptCtx := ctx
		cancel := func() {}
		if e.cfg.CallTimeoutMs > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.CallTimeoutMs)*time.Millisecond)
		}
		start := time.Now()
		err := fn(attemptCtx)
		cancel()
		e.metrics.GatewayCallDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}
		// 单次调用超时但循环自身还活着，按瞬时故障走重试
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = domain.NewTransientError(op, err)
		}
		lastErr = err

		if !domain.IsTransient(err) {
			e.metrics.GatewayErrorsTotal.WithLabelValues("rejected").Inc()
			return err
		}
		e.metrics.GatewayErrorsTotal.WithLabelValues("transient").Inc()
		e.logger.WarnContext(ctx, "transient gateway failure",
			"order_id", state.Order.OrderID, "op", op, "attempt", attempt+1, "error", err)

		rec := e.newRecord(state, domain.ExecutionActionError, domain.ExecutionResultErrored)
		rec.ErrorDetail = fmt.Sprintf("%s: %v", op, err)
		if appendErr := e.appendRecord(ctx, state, rec); appendErr != nil {
			return appendErr
		}
	}
	return fmt.Errorf("retries exhausted for %s: %w", op, lastErr)
}

// newRecord 分配下一个序号的执行记录
func (e *Engine) newRecord(state *domain.RuntimeState, action domain.ExecutionAction, result domain.ExecutionResult) *domain.AdvancedOrderExecution {
	return &domain.AdvancedOrderExecution{
		ExecutionID:     uuid.NewString(),
		AdvancedOrderID: state.Order.OrderID,
		SequenceNumber:  state.NextSequence,
		Action:          action,
		ResultStatus:    result,
		Timestamp:       time.Now(),
	}
}

// appendRecord 先落日志再推进内存状态
func (e *Engine) appendRecord(ctx context.Context, state *domain.RuntimeState, rec *domain.AdvancedOrderExecution) error {
	if err := e.execs.Append(ctx, rec); err != nil {
		return fmt.Errorf("append execution record: %w", err)
	}
	state.RecordApplied(rec)
	e.metrics.ExecutionsTotal.WithLabelValues(string(rec.Action)).Inc()

	if e.events != nil {
		event := domain.ExecutionRecordedEvent{
			EventID:        uuid.NewString(),
			OrderID:        rec.AdvancedOrderID,
			SequenceNumber: rec.SequenceNumber,
			Action:         rec.Action,
			Result:         rec.ResultStatus,
			ChildID:        rec.ChildID,
			OccurredAt:     rec.Timestamp,
		}
		if err := e.events.PublishExecution(event); err != nil {
			e.logger.WarnContext(ctx, "publish execution event", "order_id", rec.AdvancedOrderID, "error", err)
		}
	}
	return nil
}

// pauseOrder 执行循环响应暂停信号
func (e *Engine) pauseOrder(ctx context.Context, state *domain.RuntimeState) {
	if err := e.transition(ctx, state, domain.OrderStatusPaused, "paused by user"); err != nil {
		e.logger.ErrorContext(ctx, "pause transition", "order_id", state.Order.OrderID, "error", err)
		return
	}
	e.logger.InfoContext(ctx, "order paused", "order_id", state.Order.OrderID)
}

// cancelOrder 执行循环响应取消信号：尽力撤掉全部存续子单
func (e *Engine) cancelOrder(ctx context.Context, state *domain.RuntimeState) {
	for _, child := range childIDs(state) {
		var status domain.CancelStatus
		err := e.callGateway(ctx, state, "cancel_order", func(callCtx context.Context) error {
			var callErr error
			status, callErr = e.gateway.CancelOrder(callCtx, child)
			return callErr
		})
		if err != nil {
			e.logger.WarnContext(ctx, "best-effort child cancel failed",
				"order_id", state.Order.OrderID, "child_id", child, "error", err)
			continue
		}
		if status == domain.CancelStatusAlreadyFilled {
			continue
		}
		rec := e.newRecord(state, domain.ExecutionActionCancel, domain.ExecutionResultCancelled)
		rec.ChildID = child
		rec.ErrorDetail = "order cancelled by user"
		if err := e.appendRecord(ctx, state, rec); err != nil {
			e.logger.WarnContext(ctx, "append cancel record", "order_id", state.Order.OrderID, "error", err)
		}
	}
	e.finishOrder(ctx, state, domain.OrderStatusCancelled, "cancelled by user")
}

// finishOrder 订单进入终态
func (e *Engine) finishOrder(ctx context.Context, state *domain.RuntimeState, to domain.OrderStatus, reason string) {
	if err := e.transition(ctx, state, to, reason); err != nil {
		e.logger.ErrorContext(ctx, "terminal transition",
			"order_id", state.Order.OrderID, "to", to, "error", err)
		return
	}
	e.metrics.OrdersFinishedTotal.WithLabelValues(string(to)).Inc()
	e.logger.InfoContext(ctx, "order finished",
		"order_id", state.Order.OrderID, "status", to,
		"cum_filled", state.CumFilled, "reason", reason)
}

// faultOrder 引擎故障路径：留 error 记录后置 failed
func (e *Engine) faultOrder(ctx context.Context, state *domain.RuntimeState, detail string) {
	rec := e.newRecord(state, domain.ExecutionActionError, domain.ExecutionResultErrored)
	rec.ErrorDetail = detail
	if err := e.execs.Append(ctx, rec); err != nil {
		e.logger.ErrorContext(ctx, "append fault record", "order_id", state.Order.OrderID, "error", err)
	} else {
		state.RecordApplied(rec)
		e.metrics.ExecutionsTotal.WithLabelValues(string(rec.Action)).Inc()
	}
	e.finishOrder(ctx, state, domain.OrderStatusFailed, detail)
}

// transition 以 CAS 方式落状态并发布生命周期事件
func (e *Engine) transition(ctx context.Context, state *domain.RuntimeState, to domain.OrderStatus, reason string) error {
	from := state.Order.Status
	if err := state.Order.Transition(to); err != nil {
		return err
	}
	if err := e.orders.UpdateStatus(ctx, state.Order.OrderID, from, to); err != nil {
		state.Order.Status = from
		return err
	}
	e.publishLifecycle(ctx, state, from, to, reason)
	return nil
}

func (e *Engine) publishLifecycle(ctx context.Context, state *domain.RuntimeState, from, to domain.OrderStatus, reason string) {
	if e.events == nil {
		return
	}
	event := domain.OrderLifecycleEvent{
		EventID:    uuid.NewString(),
		OrderID:    state.Order.OrderID,
		UserID:     state.Order.UserID,
		Symbol:     state.Order.Symbol,
		OrderType:  state.Order.OrderType,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		CumFilled:  state.CumFilled,
		OccurredAt: time.Now(),
	}
	if err := e.events.PublishLifecycle(event); err != nil {
		e.logger.WarnContext(ctx, "publish lifecycle event", "order_id", state.Order.OrderID, "error", err)
	}
}

// sleep 可被信号打断的等待。返回 true 表示等满了指定时长。
func (e *Engine) sleep(ctx context.Context, r *orderRunner, d time.Duration) bool {
	timer := time.NewTimer(e.clamp(d))
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-r.pauseCh:
		return false
	case <-r.cancelCh:
		return false
	}
}

func (e *Engine) clamp(d time.Duration) time.Duration {
	if e.waitClamp > 0 && d > e.waitClamp {
		return e.waitClamp
	}
	return d
}

func (e *Engine) defaultTick(strategy domain.ExecutionStrategy) time.Duration {
	if tick := strategy.TickInterval(); tick > 0 {
		return tick
	}
	return time.Duration(e.cfg.DefaultTickMs) * time.Millisecond
}

func childIDs(state *domain.RuntimeState) []string {
	ids := make([]string, 0, len(state.Children))
	for id := range state.Children {
		ids = append(ids, id)
	}
	return ids
}

func decimalNull(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
