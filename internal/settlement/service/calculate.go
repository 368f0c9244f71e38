package service

import (
	"fmt"

	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	settlementdomain "github.com/banadama/pricing/internal/settlement/domain"
)

// Calculate derives the escrow settlement of a breakdown. Supplier side
// deductions larger than the subtotal are a configuration error; the payout
// is never clamped.
func Calculate(b pricingdomain.PriceBreakdown) (settlementdomain.EscrowSettlement, error) {
	if err := b.CheckInvariant(); err != nil {
		return settlementdomain.EscrowSettlement{}, err
	}

	net := b.Subtotal - b.SupplierFee - b.Commission - b.TaxWithheld
	if net < 0 {
		perr := pricingdomain.NewConfigurationError("negative_supplier_payout",
			fmt.Sprintf("supplier deductions %d exceed subtotal %d", b.SupplierFee+b.Commission+b.TaxWithheld, b.Subtotal),
			supplierSideRuleID(b), nil)
		return settlementdomain.EscrowSettlement{}, perr.WithContext(map[string]any{
			"subtotal":     b.Subtotal,
			"supplier_fee": b.SupplierFee,
			"commission":   b.Commission,
			"tax_withheld": b.TaxWithheld,
			"currency":     b.Currency,
		})
	}

	return settlementdomain.EscrowSettlement{
		CollectFromBuyer:  b.Total,
		SupplierNetPayout: net,
		PlatformRevenue:   b.PlatformFee + b.BuyerFee + b.Commission + b.SupplierFee,
		TaxWithheld:       b.TaxWithheld,
		TaxPayable:        b.Tax + b.TaxWithheld,
		ShippingPayable:   b.Shipping,
		Currency:          b.Currency,
	}, nil
}

// supplierSideRuleID names the largest supplier-side rule, the likeliest
// misconfiguration.
func supplierSideRuleID(b pricingdomain.PriceBreakdown) string {
	var (
		id     string
		amount int64 = -1
	)
	for _, rule := range b.AppliedRules {
		if rule.RuleType != pricingruledomain.RuleTypeSupplierFee && rule.RuleType != pricingruledomain.RuleTypeCommission {
			continue
		}
		if rule.ComputedAmount > amount {
			id, amount = rule.RuleID, rule.ComputedAmount
		}
	}
	return id
}
