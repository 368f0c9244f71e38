package service

import (
	"testing"

	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate_SeedOrder(t *testing.T) {
	b := pricingdomain.PriceBreakdown{
		Subtotal:    750000,
		PlatformFee: 39000,
		Shipping:    36000,
		Total:       825000,
		Currency:    "NGN",
	}

	settlement, err := Calculate(b)
	require.NoError(t, err)
	assert.Equal(t, int64(825000), settlement.CollectFromBuyer)
	assert.Equal(t, int64(750000), settlement.SupplierNetPayout)
	assert.Equal(t, int64(39000), settlement.PlatformRevenue)
	assert.Equal(t, int64(36000), settlement.ShippingPayable)
}

func TestCalculate_SupplierSideDeductions(t *testing.T) {
	b := pricingdomain.PriceBreakdown{
		Subtotal:    100000,
		PlatformFee: 5000,
		BuyerFee:    1000,
		SupplierFee: 1500,
		Commission:  2000,
		Tax:         7500,
		TaxWithheld: 5000,
		Total:       113500,
		Currency:    "NGN",
	}

	settlement, err := Calculate(b)
	require.NoError(t, err)
	assert.Equal(t, int64(91500), settlement.SupplierNetPayout)
	assert.Equal(t, int64(9500), settlement.PlatformRevenue)
	assert.Equal(t, int64(12500), settlement.TaxPayable)
	assert.Equal(t, settlement.CollectFromBuyer,
		settlement.SupplierNetPayout+settlement.PlatformRevenue+settlement.TaxPayable+settlement.ShippingPayable)
}

func TestCalculate_NegativePayoutIsConfigurationError(t *testing.T) {
	b := pricingdomain.PriceBreakdown{
		Subtotal:    10000,
		SupplierFee: 6000,
		Commission:  5000,
		Total:       10000,
		Currency:    "NGN",
		AppliedRules: []pricingdomain.AppliedRule{
			{RuleID: "01SUPPLIER", RuleType: "supplier_fee", ComputedAmount: 6000},
			{RuleID: "02COMMISSION", RuleType: "commission", ComputedAmount: 5000},
		},
	}

	_, err := Calculate(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, pricingdomain.ErrConfiguration)
	perr, ok := pricingdomain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "negative_supplier_payout", perr.Code)
	assert.Equal(t, "01SUPPLIER", perr.RuleID)
}

func TestCalculate_RejectsBrokenInvariant(t *testing.T) {
	_, err := Calculate(pricingdomain.PriceBreakdown{Subtotal: 100, Total: 99, Currency: "NGN"})
	assert.ErrorIs(t, err, pricingdomain.ErrConfiguration)
}
