package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validContext() EvaluationContext {
	return EvaluationContext{
		Currency:     "ngn",
		AccountID:    " acct_1 ",
		Country:      "ng",
		CategorySlug: "Industrial Pumps",
		LineItems: []LineItem{
			{SKU: "PUMP-1", UnitPrice: 250000, Quantity: 3, Currency: "NGN"},
		},
	}
}

func TestNormalize(t *testing.T) {
	out, err := validContext().Normalize()
	require.NoError(t, err)
	assert.Equal(t, "NGN", out.Currency)
	assert.Equal(t, "acct_1", out.AccountID)
	assert.Equal(t, "NG", out.Country)
	assert.Equal(t, "industrial-pumps", out.CategorySlug)
	assert.Equal(t, int64(750000), out.Subtotal)
}

func TestNormalizeRejects(t *testing.T) {
	negativeShipping := int64(-1)
	cases := map[string]func(*EvaluationContext){
		"negative_subtotal":  func(c *EvaluationContext) { c.LineItems = nil; c.Subtotal = -1 },
		"currency_mismatch":  func(c *EvaluationContext) { c.LineItems[0].Currency = "USD" },
		"invalid_currency":   func(c *EvaluationContext) { c.Currency = "" },
		"missing_account_id": func(c *EvaluationContext) { c.AccountID = "  " },
		"invalid_country":    func(c *EvaluationContext) { c.Country = "" },
		"invalid_line_item":  func(c *EvaluationContext) { c.LineItems[0].Quantity = 0 },
		"subtotal_mismatch":  func(c *EvaluationContext) { c.Subtotal = 1 },
		"negative_shipping":  func(c *EvaluationContext) { c.ShippingEstimate = &negativeShipping },
	}
	for code, mutate := range cases {
		t.Run(code, func(t *testing.T) {
			in := validContext()
			in.LineItems = append([]LineItem(nil), in.LineItems...)
			mutate(&in)

			_, err := in.Normalize()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			perr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, code, perr.Code)
		})
	}
}

func TestNormalizeRejectsAmountOverflow(t *testing.T) {
	cases := map[string][]LineItem{
		"line amount": {
			{SKU: "BULK-1", UnitPrice: 1 << 62, Quantity: 4, Currency: "NGN"},
			{SKU: "BULK-2", UnitPrice: 5, Quantity: 1, Currency: "NGN"},
		},
		"subtotal sum": {
			{SKU: "BULK-1", UnitPrice: math.MaxInt64 - 1, Quantity: 1, Currency: "NGN"},
			{SKU: "BULK-2", UnitPrice: 5, Quantity: 1, Currency: "NGN"},
		},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			in := validContext()
			in.LineItems = items

			_, err := in.Normalize()
			require.ErrorIs(t, err, ErrValidation)
			perr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, "amount_overflow", perr.Code)
		})
	}
}

func TestSumAmounts(t *testing.T) {
	total, err := SumAmounts(750000, 39000, 36000)
	require.NoError(t, err)
	assert.Equal(t, int64(825000), total)

	_, err = SumAmounts(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrValidation)

	_, ok := MulAmount(-1, 2)
	assert.False(t, ok)
}

func TestCheckInvariant(t *testing.T) {
	b := PriceBreakdown{Subtotal: 750000, PlatformFee: 39000, Shipping: 36000, Total: 825000, Commission: 15000}
	assert.NoError(t, b.CheckInvariant())

	b.Total++
	assert.ErrorIs(t, b.CheckInvariant(), ErrConfiguration)

	b.Subtotal = math.MaxInt64
	assert.ErrorIs(t, b.CheckInvariant(), ErrValidation)
}

func TestSameSelection(t *testing.T) {
	quote := PriceBreakdown{AppliedRules: []AppliedRule{{RuleID: "a", RuleType: "platform_fee", ComputedAmount: 10}}}
	final := PriceBreakdown{AppliedRules: []AppliedRule{{RuleID: "a", RuleType: "platform_fee", ComputedAmount: 12}}}
	assert.True(t, SameSelection(quote, final))

	final.AppliedRules[0].RuleID = "b"
	assert.False(t, SameSelection(quote, final))
}

func TestErrorIs(t *testing.T) {
	cause := NewNotFoundError("gone", "r9")
	err := NewConfigurationError("stale_rule_set", "still missing", "r9", cause)

	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "r9")
}
