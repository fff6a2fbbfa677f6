package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExecutionAction 子执行动作类型
type ExecutionAction string

const (
	ExecutionActionPlace   ExecutionAction = "place"
	ExecutionActionCancel  ExecutionAction = "cancel"
	ExecutionActionReprice ExecutionAction = "reprice"
	ExecutionActionSkip    ExecutionAction = "skip"
	ExecutionActionFill    ExecutionAction = "fill" // 轮询观察到的成交增量
	ExecutionActionError   ExecutionAction = "error"
)

// ExecutionResult 子执行结果
type ExecutionResult string

const (
	ExecutionResultFilled    ExecutionResult = "filled"
	ExecutionResultPartial   ExecutionResult = "partial"
	ExecutionResultRejected  ExecutionResult = "rejected"
	ExecutionResultPending   ExecutionResult = "pending"
	ExecutionResultErrored   ExecutionResult = "errored"
	ExecutionResultCancelled ExecutionResult = "cancelled"
)

// AdvancedOrderExecution 执行记录，append-only，按 sequence_number 严格递增。
// 该日志从不修改或删除，是恢复运行时状态的唯一依据。
type AdvancedOrderExecution struct {
	gorm.Model
	ExecutionID     string              `gorm:"column:execution_id;type:varchar(64);uniqueIndex;not null" json:"execution_id"`
	AdvancedOrderID string              `gorm:"column:advanced_order_id;type:varchar(64);uniqueIndex:idx_order_seq;not null" json:"advanced_order_id"`
	SequenceNumber  int64               `gorm:"column:sequence_number;uniqueIndex:idx_order_seq;not null" json:"sequence_number"`
	Action          ExecutionAction     `gorm:"column:action;type:varchar(16);not null" json:"action"`
	ChildID         string              `gorm:"column:child_id;type:varchar(64)" json:"child_id,omitempty"`
	RequestedSize   decimal.Decimal     `gorm:"column:requested_size;type:decimal(32,16);default:0" json:"requested_size"`
	RequestedPrice  decimal.NullDecimal `gorm:"column:requested_price;type:decimal(32,16)" json:"requested_price"`
	ResultStatus    ExecutionResult     `gorm:"column:result_status;type:varchar(16);not null" json:"result_status"`
	FilledSize      decimal.Decimal     `gorm:"column:filled_size;type:decimal(32,16);default:0" json:"filled_size"`
	AvgFillPrice    decimal.NullDecimal `gorm:"column:avg_fill_price;type:decimal(32,16)" json:"avg_fill_price"`
	ErrorDetail     string              `gorm:"column:error_detail;type:text" json:"error_detail,omitempty"`
	Timestamp       time.Time           `gorm:"column:timestamp;not null" json:"timestamp"`
}

// TableName 表名
func (AdvancedOrderExecution) TableName() string {
	return "advanced_order_executions"
}

// CountsAsFill 是否计入累计成交
func (e *AdvancedOrderExecution) CountsAsFill() bool {
	return e.ResultStatus == ExecutionResultFilled || e.ResultStatus == ExecutionResultPartial
}

// CumulativeFilled 按 append-only 日志重算累计成交量，恢复契约的核心
func CumulativeFilled(history []*AdvancedOrderExecution) decimal.Decimal {
	total := decimal.Zero
	for _, e := range history {
		if e.CountsAsFill() {
			total = total.Add(e.FilledSize)
		}
	}
	return total
}
