package domain

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ValidateRule checks a rule for structural consistency. The same check runs
// on admin writes and on every evaluation snapshot.
func ValidateRule(r PricingRule) error {
	if !r.Scope.Valid() {
		return ErrInvalidScope
	}
	if r.Scope == ScopeGlobal {
		if r.ScopeValue != nil && *r.ScopeValue != "" {
			return ErrUnexpectedScopeValue
		}
	} else if r.ScopeValue == nil || NormalizeScopeValue(r.Scope, *r.ScopeValue) == "" {
		return ErrMissingScopeValue
	}
	if r.Scope == ScopeCountry && len(NormalizeScopeValue(r.Scope, *r.ScopeValue)) != 2 {
		return ErrInvalidCountry
	}
	if !r.RuleType.Valid() {
		return ErrInvalidRuleType
	}
	if !r.FeeType.Valid() {
		return ErrInvalidFeeType
	}
	if r.FeeValue.IsNegative() {
		return ErrInvalidFeeValue
	}
	switch r.FeeType {
	case FeeTypePercentage:
		if r.FeeValue.GreaterThan(hundred) {
			return ErrInvalidFeeValue
		}
	case FeeTypeFixed:
		// minor units are integral
		if !r.FeeValue.IsInteger() {
			return ErrInvalidFeeValue
		}
	}
	if r.MinOrderValue != nil && *r.MinOrderValue < 0 {
		return ErrInvalidOrderRange
	}
	if r.MaxOrderValue != nil && *r.MaxOrderValue < 0 {
		return ErrInvalidOrderRange
	}
	if r.MinOrderValue != nil && r.MaxOrderValue != nil && *r.MinOrderValue > *r.MaxOrderValue {
		return ErrInvalidOrderRange
	}
	if r.EffectiveFrom != nil && r.EffectiveTo != nil && !r.EffectiveFrom.Before(*r.EffectiveTo) {
		return ErrInvalidEffectiveWindow
	}
	return nil
}
