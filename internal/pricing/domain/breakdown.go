package domain

import (
	"context"
	"fmt"
	"time"

	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	"github.com/shopspring/decimal"
)

// AppliedRule is one selected rule and what it contributed.
type AppliedRule struct {
	RuleID         string                     `json:"rule_id"`
	RuleType       pricingruledomain.RuleType `json:"rule_type"`
	Scope          pricingruledomain.Scope    `json:"scope"`
	ScopeValue     *string                    `json:"scope_value,omitempty"`
	FeeType        pricingruledomain.FeeType  `json:"fee_type"`
	FeeValue       decimal.Decimal            `json:"fee_value"`
	Priority       int                        `json:"priority"`
	BaseAmount     int64                      `json:"base_amount"`
	ComputedAmount int64                      `json:"computed_amount"`
}

// PriceBreakdown is the immutable result of one evaluation. Amounts are
// minor units of Currency.
type PriceBreakdown struct {
	Subtotal    int64 `json:"subtotal"`
	PlatformFee int64 `json:"platform_fee"`
	BuyerFee    int64 `json:"buyer_fee"`
	SupplierFee int64 `json:"supplier_fee"`
	Commission  int64 `json:"commission"`
	Shipping    int64 `json:"shipping"`
	// ShippingPending marks quotes whose shipping is still to be calculated.
	ShippingPending bool          `json:"shipping_pending"`
	Tax             int64         `json:"tax"`
	TaxWithheld     int64         `json:"tax_withheld"`
	Total           int64         `json:"total"`
	Currency        string        `json:"currency"`
	AppliedRules    []AppliedRule `json:"applied_rules"`
	AppliedTaxes    []AppliedTax  `json:"applied_taxes,omitempty"`
	RuleSetVersion  int64         `json:"rule_set_version"`
	EvaluatedAt     time.Time     `json:"evaluated_at"`
}

// CheckInvariant verifies total == subtotal + platformFee + buyerFee + shipping + tax.
func (b PriceBreakdown) CheckInvariant() error {
	want, err := SumAmounts(b.Subtotal, b.PlatformFee, b.BuyerFee, b.Shipping, b.Tax)
	if err != nil {
		return err
	}
	if b.Total != want {
		return NewConfigurationError("total_mismatch",
			fmt.Sprintf("total %d does not equal component sum %d", b.Total, want), "", nil)
	}
	return nil
}

// SelectionKey identifies the applied-rule selection independent of amounts.
// Two breakdowns with equal keys resolved the same rules.
func (b PriceBreakdown) SelectionKey() []string {
	key := make([]string, 0, len(b.AppliedRules))
	for _, rule := range b.AppliedRules {
		key = append(key, string(rule.RuleType)+":"+rule.RuleID)
	}
	return key
}

// SameSelection reports whether a and b applied the same rules in the same order.
func SameSelection(a, b PriceBreakdown) bool {
	ka, kb := a.SelectionKey(), b.SelectionKey()
	if len(ka) != len(kb) {
		return false
	}
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

// Engine computes price breakdowns.
type Engine interface {
	ComputePriceBreakdown(ctx context.Context, in EvaluationContext) (*PriceBreakdown, error)
}

// AppliedTax is one tax rate looked up for a breakdown.
type AppliedTax struct {
	Kind           string          `json:"kind"`
	Country        string          `json:"country,omitempty"`
	Category       string          `json:"category,omitempty"`
	Code           string          `json:"code,omitempty"`
	Rate           decimal.Decimal `json:"rate"`
	Source         string          `json:"source"`
	BaseAmount     int64           `json:"base_amount"`
	ComputedAmount int64           `json:"computed_amount"`
}
