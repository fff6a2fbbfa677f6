package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError 参数校验错误，携带首个违反的字段与原因
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// sizeDistributionTolerance 自定义数量分布之和与 1.0 的允许偏差
var sizeDistributionTolerance = decimal.NewFromFloat(1e-6)

// ValidateParams 按订单类型校验参数，纯函数，返回首个违反的约束
func ValidateParams(orderType OrderType, totalSize decimal.Decimal, params OrderParams) error {
	if !totalSize.IsPositive() {
		return invalid("total_size", "must be positive")
	}
	if params == nil {
		return invalid("parameters", "required")
	}
	if params.Kind() != orderType {
		return invalid("parameters", fmt.Sprintf("parameter shape does not match order type %s", orderType))
	}

	switch p := params.(type) {
	case *TWAPParams:
		return validateTWAP(p)
	case *LimitChaseParams:
		return validateLimitChase(p)
	case *ScaledParams:
		return validateScaled(p)
	case *IcebergParams:
		return validateIceberg(p, totalSize)
	case *OCOParams:
		return validateOCO(p)
	case *TrailingTPParams:
		return validateTrailingTP(p)
	}
	return invalid("parameters", "unsupported parameter shape")
}

func validateTWAP(p *TWAPParams) error {
	if p.DurationMinutes <= 0 {
		return invalid("duration_minutes", "must be greater than 0")
	}
	if p.Slices < 2 {
		return invalid("slices", "must be at least 2")
	}
	if p.IntervalSeconds < 0 {
		return invalid("interval_seconds", "must be greater than 0 when set")
	}
	if p.PriceLimit != nil && !p.PriceLimit.IsPositive() {
		return invalid("price_limit", "must be positive when set")
	}
	return nil
}

func validateLimitChase(p *LimitChaseParams) error {
	if p.MaxChases < 1 {
		return invalid("max_chases", "must be at least 1")
	}
	if p.ChaseIntervalSeconds <= 0 {
		return invalid("chase_interval_seconds", "must be greater than 0")
	}
	if p.PriceLimit != nil && !p.PriceLimit.IsPositive() {
		return invalid("price_limit", "must be positive when set")
	}
	switch p.GiveBehavior {
	case "", GiveBehaviorCancel, GiveBehaviorMarket, GiveBehaviorWait:
	default:
		return invalid("give_behavior", "must be one of cancel, market, wait")
	}
	return nil
}

func validateScaled(p *ScaledParams) error {
	if p.Levels < 2 {
		return invalid("levels", "must be at least 2")
	}
	if !p.PriceStart.IsPositive() {
		return invalid("price_start", "must be positive")
	}
	if !p.PriceEnd.IsPositive() {
		return invalid("price_end", "must be positive")
	}
	switch p.Distribution {
	case DistributionLinear, DistributionGeometric:
		if len(p.SizeDistribution) != 0 {
			return invalid("size_distribution", "only allowed with custom distribution")
		}
	case DistributionCustom:
		if len(p.SizeDistribution) != p.Levels {
			return invalid("size_distribution", fmt.Sprintf("length must equal levels (%d)", p.Levels))
		}
		sum := decimal.Zero
		for i, w := range p.SizeDistribution {
			if !w.IsPositive() {
				return invalid("size_distribution", fmt.Sprintf("weight %d must be positive", i))
			}
			sum = sum.Add(w)
		}
		if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(sizeDistributionTolerance) {
			return invalid("size_distribution", fmt.Sprintf("weights must sum to 1.0, got %s", sum))
		}
	default:
		return invalid("distribution", "must be one of linear, geometric, custom")
	}
	return nil
}

func validateIceberg(p *IcebergParams, totalSize decimal.Decimal) error {
	if !p.DisplaySize.IsPositive() {
		return invalid("display_size", "must be positive")
	}
	if p.DisplaySize.GreaterThan(totalSize) {
		return invalid("display_size", "must not exceed total size")
	}
	if !p.PriceLimit.IsPositive() {
		return invalid("price_limit", "required and must be positive")
	}
	switch p.RefreshBehavior {
	case RefreshImmediate:
	case RefreshDelayed:
		if p.RefreshDelaySeconds <= 0 {
			return invalid("refresh_delay_seconds", "must be greater than 0 for delayed refresh")
		}
	default:
		return invalid("refresh_behavior", "must be one of immediate, delayed")
	}
	return nil
}

func validateOCO(p *OCOParams) error {
	if len(p.Legs) != 2 {
		return invalid("legs", "exactly two legs required")
	}
	for i, leg := range p.Legs {
		if leg.Type != LegTypeLimit && leg.Type != LegTypeStop {
			return invalid("legs", fmt.Sprintf("leg %d type must be limit or stop", i))
		}
		if !leg.Price.IsPositive() {
			return invalid("legs", fmt.Sprintf("leg %d price must be positive", i))
		}
		if !leg.Size.IsPositive() {
			return invalid("legs", fmt.Sprintf("leg %d size must be positive", i))
		}
	}
	return nil
}

func validateTrailingTP(p *TrailingTPParams) error {
	// position 是否存在由引擎在执行时检查，校验阶段只做形状约束
	if p.PositionID == "" {
		return invalid("position_id", "required")
	}
	if !p.TrailDistance.IsPositive() {
		return invalid("trail_distance", "must be greater than 0")
	}
	if p.MinProfit.IsNegative() {
		return invalid("min_profit", "must not be negative")
	}
	if p.UpdateIntervalSeconds <= 0 {
		return invalid("update_interval_seconds", "must be greater than 0")
	}
	return nil
}
