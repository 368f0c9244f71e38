// Package evaluator turns a selected pricing rule into a minor-unit amount.
package evaluator

import (
	"errors"
	"math"

	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	"github.com/shopspring/decimal"
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// InRange reports whether base falls inside the rule's inclusive
// [MinOrderValue, MaxOrderValue] bounds. A missing bound is unbounded.
func InRange(rule pricingruledomain.PricingRule, base int64) bool {
	if rule.MinOrderValue != nil && base < *rule.MinOrderValue {
		return false
	}
	if rule.MaxOrderValue != nil && base > *rule.MaxOrderValue {
		return false
	}
	return true
}

// BaseAmount is the amount a rule type is charged against. Every type uses
// the subtotal, so fees never compound.
func BaseAmount(_ pricingruledomain.RuleType, ctx pricingdomain.EvaluationContext) int64 {
	return ctx.Subtotal
}

// Amount computes the rule's contribution for base. Percentages round half
// up to the nearest minor unit.
func Amount(rule pricingruledomain.PricingRule, base int64) (int64, error) {
	if err := CheckRule(rule); err != nil {
		return 0, err
	}
	switch rule.FeeType {
	case pricingruledomain.FeeTypePercentage:
		return decimal.NewFromInt(base).Mul(rule.FeeValue).Shift(-2).Round(0).IntPart(), nil
	default:
		if rule.FeeValue.GreaterThan(maxAmount) {
			return 0, pricingdomain.NewValidationError("amount_overflow", "fixed fee exceeds the supported range")
		}
		return rule.FeeValue.IntPart(), nil
	}
}

// CheckRule rejects rules that cannot be evaluated, such as a category rule
// without a category. Such rules are configuration errors, never skipped.
func CheckRule(rule pricingruledomain.PricingRule) error {
	if err := pricingruledomain.ValidateRule(rule); err != nil {
		return pricingdomain.NewConfigurationError(configurationCode(err), "pricing rule is malformed", rule.ID, err)
	}
	return nil
}

func configurationCode(err error) string {
	switch {
	case errors.Is(err, pricingruledomain.ErrMissingScopeValue):
		return "rule_missing_scope_value"
	case errors.Is(err, pricingruledomain.ErrInvalidFeeValue):
		return "rule_invalid_fee_value"
	case errors.Is(err, pricingruledomain.ErrInvalidOrderRange):
		return "rule_invalid_order_range"
	default:
		return "rule_malformed"
	}
}
