package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderParams 每种订单类型的参数变体
type OrderParams interface {
	Kind() OrderType
}

// GiveBehavior 追价次数耗尽后的处理方式
type GiveBehavior string

const (
	GiveBehaviorCancel GiveBehavior = "cancel"
	GiveBehaviorMarket GiveBehavior = "market"
	GiveBehaviorWait   GiveBehavior = "wait"
)

// Distribution 阶梯订单的价格/数量分布方式
type Distribution string

const (
	DistributionLinear    Distribution = "linear"
	DistributionGeometric Distribution = "geometric"
	DistributionCustom    Distribution = "custom"
)

// RefreshBehavior 冰山订单的补单方式
type RefreshBehavior string

const (
	RefreshImmediate RefreshBehavior = "immediate"
	RefreshDelayed   RefreshBehavior = "delayed"
)

// LegType OCO 子腿类型
type LegType string

const (
	LegTypeLimit LegType = "limit"
	LegTypeStop  LegType = "stop"
)

// TWAPParams 时间加权平均价格参数
type TWAPParams struct {
	DurationMinutes    int              `json:"duration_minutes"`
	Slices             int              `json:"slices"`
	IntervalSeconds    int              `json:"interval_seconds,omitempty"`
	PriceLimit         *decimal.Decimal `json:"price_limit,omitempty"`
	RandomizeIntervals bool             `json:"randomize_intervals,omitempty"`
	AdaptToVolume      bool             `json:"adapt_to_volume,omitempty"`
}

func (p *TWAPParams) Kind() OrderType { return OrderTypeTWAP }

// LimitChaseParams 限价追价参数
type LimitChaseParams struct {
	Offset               decimal.Decimal  `json:"offset"` // 相对最优报价的带符号价差
	MaxChases            int              `json:"max_chases"`
	ChaseIntervalSeconds int              `json:"chase_interval_seconds"`
	PriceLimit           *decimal.Decimal `json:"price_limit,omitempty"`
	GiveBehavior         GiveBehavior     `json:"give_behavior,omitempty"`
}

func (p *LimitChaseParams) Kind() OrderType { return OrderTypeLimitChase }

// ScaledParams 阶梯订单参数
type ScaledParams struct {
	Levels           int               `json:"levels"`
	PriceStart       decimal.Decimal   `json:"price_start"`
	PriceEnd         decimal.Decimal   `json:"price_end"`
	Distribution     Distribution      `json:"distribution"`
	SizeDistribution []decimal.Decimal `json:"size_distribution,omitempty"`
}

func (p *ScaledParams) Kind() OrderType { return OrderTypeScaled }

// IcebergParams 冰山订单参数
type IcebergParams struct {
	DisplaySize         decimal.Decimal `json:"display_size"`
	PriceLimit          decimal.Decimal `json:"price_limit"`
	RefreshBehavior     RefreshBehavior `json:"refresh_behavior"`
	RefreshDelaySeconds int             `json:"refresh_delay_seconds,omitempty"`
}

func (p *IcebergParams) Kind() OrderType { return OrderTypeIceberg }

// OCOLeg OCO 子腿
type OCOLeg struct {
	Type  LegType         `json:"type"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OCOParams one-cancels-other 参数
type OCOParams struct {
	Legs []OCOLeg `json:"legs"`
}

func (p *OCOParams) Kind() OrderType { return OrderTypeOCO }

// TrailingTPParams 移动止盈参数
type TrailingTPParams struct {
	PositionID            string          `json:"position_id"`
	TrailDistance         decimal.Decimal `json:"trail_distance"`
	MinProfit             decimal.Decimal `json:"min_profit"`
	UpdateIntervalSeconds int             `json:"update_interval_seconds"`
}

func (p *TrailingTPParams) Kind() OrderType { return OrderTypeTrailingTP }

// ParseParams 按订单类型严格解码参数 JSON，未知字段视为错误
func ParseParams(orderType OrderType, raw string) (OrderParams, error) {
	var params OrderParams
	switch orderType {
	case OrderTypeTWAP:
		params = &TWAPParams{}
	case OrderTypeLimitChase:
		params = &LimitChaseParams{}
	case OrderTypeScaled:
		params = &ScaledParams{}
	case OrderTypeIceberg:
		params = &IcebergParams{}
	case OrderTypeOCO:
		params = &OCOParams{}
	case OrderTypeTrailingTP:
		params = &TrailingTPParams{}
	default:
		return nil, fmt.Errorf("unknown order type: %s", orderType)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(params); err != nil {
		return nil, fmt.Errorf("failed to decode %s parameters: %w", orderType, err)
	}
	return params, nil
}
