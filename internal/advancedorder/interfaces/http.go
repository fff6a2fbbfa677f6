// Package interfaces 高级订单接口层
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/tradingterminal/internal/advancedorder/application"
	"github.com/wyfcoding/tradingterminal/internal/advancedorder/domain"
)

// userIDHeader 网关透传的用户身份头
const userIDHeader = "X-User-ID"

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	commandService *application.CommandService
	queryService   *application.QueryService
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(
	commandService *application.CommandService,
	queryService *application.QueryService,
) *HTTPHandler {
	return &HTTPHandler{
		commandService: commandService,
		queryService:   queryService,
	}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/advanced-orders")
	{
		orders.POST("", h.SubmitOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.GET("/:id/executions", h.GetExecutions)
		orders.POST("/:id/execute", h.ExecuteOrder)
		orders.POST("/:id/pause", h.PauseOrder)
		orders.POST("/:id/resume", h.ResumeOrder)
		orders.POST("/:id/cancel", h.CancelOrder)
	}
}

// SubmitOrderRequest 提交高级订单请求
type SubmitOrderRequest struct {
	OrderType  string          `json:"order_type" binding:"required"`
	Symbol     string          `json:"symbol" binding:"required"`
	Side       string          `json:"side" binding:"required"`
	TotalSize  decimal.Decimal `json:"total_size" binding:"required"`
	Parameters json.RawMessage `json:"parameters" binding:"required"`
}

// SubmitOrder 提交高级订单
func (h *HTTPHandler) SubmitOrder(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd := application.SubmitOrderCommand{
		UserID:     userID,
		OrderType:  domain.OrderType(req.OrderType),
		Symbol:     req.Symbol,
		Side:       domain.OrderSide(req.Side),
		TotalSize:  req.TotalSize,
		Parameters: req.Parameters,
	}

	id, err := h.commandService.SubmitOrder(c.Request.Context(), cmd)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": id})
}

// ListOrders 分页查询订单
func (h *HTTPHandler) ListOrders(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var statuses []domain.OrderStatus
	for _, s := range c.QueryArray("status") {
		statuses = append(statuses, domain.OrderStatus(s))
	}
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	orders, total, err := h.queryService.ListOrders(c.Request.Context(), userID, statuses, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total, "page": page, "page_size": pageSize})
}

// GetOrder 查询订单详情
func (h *HTTPHandler) GetOrder(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	detail, err := h.queryService.GetOrder(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GetExecutions 查询订单执行日志
func (h *HTTPHandler) GetExecutions(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	executions, err := h.queryService.GetExecutions(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": executions})
}

// ExecuteOrder 开始执行订单
func (h *HTTPHandler) ExecuteOrder(c *gin.Context) {
	h.command(c, h.commandService.ExecuteOrder, "executing")
}

// PauseOrder 暂停订单
func (h *HTTPHandler) PauseOrder(c *gin.Context) {
	h.command(c, h.commandService.PauseOrder, "paused")
}

// ResumeOrder 恢复订单
func (h *HTTPHandler) ResumeOrder(c *gin.Context) {
	h.command(c, h.commandService.ResumeOrder, "executing")
}

// CancelOrder 取消订单
func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	h.command(c, h.commandService.CancelOrder, "cancelling")
}

func (h *HTTPHandler) command(c *gin.Context, fn func(ctx context.Context, userID, orderID string) error, status string) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "status": status})
}

func (h *HTTPHandler) userID(c *gin.Context) (string, bool) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + userIDHeader + " header"})
		return "", false
	}
	return userID, true
}

// writeError 业务错误到 HTTP 状态码的映射
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	var (
		validationErr *domain.ValidationError
		transitionErr *domain.InvalidTransitionError
		notFoundErr   *domain.NotFoundError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, application.ErrAlreadyDriven):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n < 1 {
		return def
	}
	return n
}
