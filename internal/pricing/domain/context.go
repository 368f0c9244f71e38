package domain

import (
	"fmt"
	"strings"
	"time"

	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
)

// LineItem is a priced catalog line. Amounts are minor units.
type LineItem struct {
	SKU       string `json:"sku"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	Currency  string `json:"currency,omitempty"`
}

// Amount is UnitPrice * Quantity; ok is false when the product overflows.
func (l LineItem) Amount() (int64, bool) {
	return MulAmount(l.UnitPrice, l.Quantity)
}

// EvaluationContext is the input of one price evaluation.
type EvaluationContext struct {
	Currency          string     `json:"currency"`
	LineItems         []LineItem `json:"line_items,omitempty"`
	Subtotal          int64      `json:"subtotal"`
	AccountID         string     `json:"account_id"`
	SupplierAccountID string     `json:"supplier_account_id,omitempty"`
	Country           string     `json:"country"`
	SupplierCountry   string     `json:"supplier_country,omitempty"`
	CategorySlug      string     `json:"category_slug,omitempty"`
	// ShippingEstimate is nil while shipping is still to be calculated.
	ShippingEstimate *int64    `json:"shipping_estimate,omitempty"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// Normalize validates the context and returns a canonical copy: codes are
// upper-cased, the category is slugged and the subtotal is derived from
// line items when any are present.
func (c EvaluationContext) Normalize() (EvaluationContext, error) {
	out := c
	out.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	out.AccountID = strings.TrimSpace(c.AccountID)
	out.SupplierAccountID = strings.TrimSpace(c.SupplierAccountID)
	out.Country = pricingruledomain.NormalizeScopeValue(pricingruledomain.ScopeCountry, c.Country)
	out.SupplierCountry = pricingruledomain.NormalizeScopeValue(pricingruledomain.ScopeCountry, c.SupplierCountry)
	out.CategorySlug = pricingruledomain.NormalizeScopeValue(pricingruledomain.ScopeCategory, c.CategorySlug)
	out.EvaluatedAt = c.EvaluatedAt.UTC()

	if len(out.Currency) != 3 {
		return c, NewValidationError("invalid_currency", "currency must be an ISO 4217 code")
	}
	if out.AccountID == "" {
		return c, NewValidationError("missing_account_id", "account id is required")
	}
	if len(out.Country) != 2 {
		return c, NewValidationError("invalid_country", "country must be an ISO 3166 alpha-2 code")
	}
	if out.SupplierCountry != "" && len(out.SupplierCountry) != 2 {
		return c, NewValidationError("invalid_supplier_country", "supplier country must be an ISO 3166 alpha-2 code")
	}

	if len(c.LineItems) > 0 {
		items := make([]LineItem, len(c.LineItems))
		var subtotal int64
		for i, item := range c.LineItems {
			item.Currency = strings.ToUpper(strings.TrimSpace(item.Currency))
			if item.Currency != "" && item.Currency != out.Currency {
				return c, NewValidationError("currency_mismatch",
					fmt.Sprintf("line item %d is priced in %s, expected %s", i, item.Currency, out.Currency))
			}
			if item.UnitPrice < 0 || item.Quantity <= 0 {
				return c, NewValidationError("invalid_line_item",
					fmt.Sprintf("line item %d needs a non-negative unit price and a positive quantity", i))
			}
			item.Currency = out.Currency
			items[i] = item
			amount, ok := item.Amount()
			if !ok {
				return c, errAmountOverflow().WithContext(map[string]any{"line_item": i})
			}
			if subtotal, ok = AddAmount(subtotal, amount); !ok {
				return c, errAmountOverflow().WithContext(map[string]any{"line_item": i})
			}
		}
		if c.Subtotal != 0 && c.Subtotal != subtotal {
			return c, NewValidationError("subtotal_mismatch", "subtotal does not match the sum of line items")
		}
		out.LineItems = items
		out.Subtotal = subtotal
	}

	if out.Subtotal < 0 {
		return c, NewValidationError("negative_subtotal", "subtotal cannot be negative")
	}
	if out.ShippingEstimate != nil && *out.ShippingEstimate < 0 {
		return c, NewValidationError("negative_shipping", "shipping estimate cannot be negative")
	}
	return out, nil
}

// Summary is the log/error form of the context.
func (c EvaluationContext) Summary() map[string]any {
	summary := map[string]any{
		"currency":   c.Currency,
		"subtotal":   c.Subtotal,
		"account_id": c.AccountID,
		"country":    c.Country,
		"category":   c.CategorySlug,
		"line_items": len(c.LineItems),
	}
	if c.SupplierAccountID != "" {
		summary["supplier_account_id"] = c.SupplierAccountID
	}
	if c.SupplierCountry != "" {
		summary["supplier_country"] = c.SupplierCountry
	}
	if c.ShippingEstimate != nil {
		summary["shipping_estimate"] = *c.ShippingEstimate
	}
	return summary
}
